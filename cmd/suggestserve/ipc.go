package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/pkg/server"
)

var ipcSeed string

var ipcCmd = &cobra.Command{
	Use:   "ipc",
	Short: "Serve MessagePack requests over stdin/stdout",
	Long: `Reads MessagePack requests from stdin and writes responses to stdout.
Logs go to stderr so they never interleave with responses.`,
	Args: cobra.NoArgs,
	RunE: runIPC,
}

func init() {
	ipcCmd.Flags().StringVar(&ipcSeed, "seed", "", "seed file to load at startup (overrides config)")
	rootCmd.AddCommand(ipcCmd)
}

func runIPC(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := cfg.Store.SeedFile
	if ipcSeed != "" {
		seed = ipcSeed
	}
	a, err := openApp(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Debug("spawning IPC")
	srv := server.NewServer(a.engine,
		server.WithRefresher(a.catalog),
		server.WithMaxQueryRunes(cfg.Server.MaxQueryRunes))

	// Start blocks on stdin, so a signal ends the command without waiting
	// for the pending read.
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Debug("IPC interrupted")
		return nil
	}
}
