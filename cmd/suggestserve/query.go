package main

import (
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/internal/cli"
)

var (
	queryLimit    int
	queryLang     string
	queryNoFilter bool
	querySeed     string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the local index interactively",
	Long: `Reads queries from stdin and prints ranked suggestions. Useful for
testing and debugging; any new ranking or normalization change should be
tried here first.`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryLimit, "limit", "n", 0, "number of suggestions (0 uses the configured default)")
	queryCmd.Flags().StringVar(&queryLang, "lang", "", "language filter")
	queryCmd.Flags().BoolVar(&queryNoFilter, "no-filter", false, "disable input filtering (DBG only)")
	queryCmd.Flags().StringVar(&querySeed, "seed", "", "seed file to load first")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, querySeed)
	if err != nil {
		return err
	}
	defer a.Close()

	log.SetReportTimestamp(false)
	log.Debug("Input info:", "limit", queryLimit, "lang", queryLang, "noFilter", queryNoFilter)

	h := cli.NewInputHandler(a.engine, cmd.InOrStdin(), cmd.OutOrStdout(), queryLimit, queryNoFilter)
	if queryLang != "" {
		h.SetLanguage(queryLang)
	}
	return h.Start(ctx)
}
