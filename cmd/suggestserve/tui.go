package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/internal/tui"
	"github.com/bastiangx/suggestserve/pkg/client"
	"github.com/bastiangx/suggestserve/pkg/gateway"
)

var (
	tuiAddr     string
	tuiLang     string
	tuiLimit    int
	tuiDebounce time.Duration
	tuiMsgpack  bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Type-ahead against a running gateway",
	Long: `Opens an input box that queries a running gateway as you type.
Keystrokes are debounced and stale responses are dropped, so the list always
matches the latest input. Enter prints the selected suggestion.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().StringVar(&tuiAddr, "addr", "", "gateway base URL (default from config)")
	tuiCmd.Flags().StringVar(&tuiLang, "lang", "", "language filter")
	tuiCmd.Flags().IntVarP(&tuiLimit, "limit", "n", 0, "number of suggestions")
	tuiCmd.Flags().DurationVar(&tuiDebounce, "debounce", 120*time.Millisecond, "quiet period before a query is sent")
	tuiCmd.Flags().BoolVar(&tuiMsgpack, "msgpack", false, "use MessagePack responses")
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	addr := tuiAddr
	if addr == "" {
		addr = "http://" + cfg.Server.Addr
	}

	opts := []client.Option{client.WithClientID(AppName + "-tui")}
	if tuiMsgpack {
		opts = append(opts, client.WithMsgpack())
	}
	c, err := client.New(addr, opts...)
	if err != nil {
		return err
	}

	fetch := func(ctx context.Context, text string) (*gateway.SuggestResponse, error) {
		return c.Suggest(ctx, text, tuiLang, tuiLimit)
	}
	chosen, err := tui.Run(addr, tuiDebounce, fetch)
	if err != nil {
		return err
	}
	if chosen != "" {
		cmd.Println(chosen)
	}
	return nil
}
