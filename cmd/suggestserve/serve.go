package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/bastiangx/suggestserve/pkg/config"
	"github.com/bastiangx/suggestserve/pkg/gateway"
	"github.com/bastiangx/suggestserve/pkg/ingest"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

var (
	serveAddr  string
	serveSeed  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP gateway",
	Long: `Runs the HTTP gateway until interrupted.
GET /v1/suggest is public and rate limited. Operator routes under /v1/items
and /v1/index require the admin token when one is configured.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "seed file to load at startup (overrides config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the seed file when it changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := cfg.Store.SeedFile
	if serveSeed != "" {
		seed = serveSeed
	}
	a, err := openApp(ctx, cfg, seed)
	if err != nil {
		return err
	}
	defer a.Close()

	gw := gateway.New(gatewayConfig(cfg), a.engine, a.catalog)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gw.ListenAndServe(egCtx)
	})

	if seed != "" && (serveWatch || cfg.Store.WatchSeed) {
		w, err := ingest.NewWatcher(seed, a.catalog, ingest.DefaultQuietPeriod)
		if err != nil {
			stop()
			_ = eg.Wait()
			return err
		}
		defer w.Close()
		eg.Go(func() error {
			if err := w.Run(egCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	showStartupInfo(a.engine.Stats(), seed)

	if err := eg.Wait(); err != nil {
		return err
	}
	log.Info("Exiting...")
	return nil
}

func gatewayConfig(c *config.Config) gateway.Config {
	addr := c.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	return gateway.Config{
		Addr:              addr,
		ReadTimeout:       c.Server.ReadTimeout.Duration,
		WriteTimeout:      c.Server.WriteTimeout.Duration,
		IdleTimeout:       c.Server.IdleTimeout.Duration,
		ShutdownPeriod:    c.Server.ShutdownPeriod.Duration,
		MaxQueryRunes:     c.Server.MaxQueryRunes,
		AdminToken:        c.Server.AdminToken,
		RequestsPerSecond: c.RateLimit.RequestsPerSecond,
		Burst:             c.RateLimit.Burst,
		MaxInFlight:       c.RateLimit.MaxInFlight,
		ClientTTL:         c.RateLimit.ClientTTL.Duration,
		MaxClients:        c.RateLimit.MaxClients,
		TrustClientID:     c.RateLimit.TrustClientID,
	}
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(st suggest.Stats, seed string) {
	log.Info("SuggestServe", "version", Version, "pid", os.Getpid())
	log.Info("index", "items", st.Items, "keys", st.Keys, "generation", st.Generation)
	log.Info("store", "driver", cfg.Store.Driver, "seed", seed)
	log.Info("status: ready")
}
