package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bastiangx/suggestserve/internal/logger"
	"github.com/bastiangx/suggestserve/internal/utils"
	"github.com/bastiangx/suggestserve/pkg/catalog"
	"github.com/bastiangx/suggestserve/pkg/config"
	"github.com/bastiangx/suggestserve/pkg/index"
	"github.com/bastiangx/suggestserve/pkg/ingest"
	"github.com/bastiangx/suggestserve/pkg/normalize"
	"github.com/bastiangx/suggestserve/pkg/store"
	"github.com/bastiangx/suggestserve/pkg/store/sqlite"
	"github.com/bastiangx/suggestserve/pkg/suggest"
)

var (
	configPath string
	debugMode  bool

	cfg           *config.Config
	activeCfgPath string
)

var rootCmd = &cobra.Command{
	Use:           AppName,
	Short:         "Serves ranked prefix suggestions",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, path, err := config.LoadConfigWithPriority(configPath)
		if err != nil {
			return err
		}
		cfg, activeCfgPath = loaded, path
		if err := logger.Setup(cfg.Log.Level, cfg.Log.Formatter, debugMode); err != nil {
			return err
		}
		log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(activeCfgPath))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml")
	rootCmd.PersistentFlags().BoolVarP(&debugMode, "debug", "d", false, "toggle debug logging")
}

// app wires the store, index, engine and catalog for one process.
type app struct {
	store   store.Store
	index   *index.Index
	engine  *suggest.Engine
	catalog *catalog.Catalog
}

// openStore opens the store selected in config.
func openStore(c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case config.DriverMemory:
		return store.NewMemory(), nil
	case config.DriverSQLite:
		pr, err := utils.NewPathResolver()
		if err != nil {
			return nil, fmt.Errorf("resolving paths: %w", err)
		}
		dbPath := pr.GetDataPath(c.Store.Path)
		log.Debugf("Using sqlite store at: %s", dbPath)
		return sqlite.Open(dbPath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
}

// openApp builds the components and indexes the current store contents.
// With a seed file configured the seed is upserted first.
func openApp(ctx context.Context, c *config.Config, seedFile string) (*app, error) {
	st, err := openStore(c)
	if err != nil {
		return nil, err
	}

	engineCfg := c.SuggestConfig()
	ix := index.New(normalize.New(c.Normalize))
	engine := suggest.NewEngine(ix, engineCfg)
	engine.WatchStore(st)
	cat := catalog.New(st, ix, engineCfg.Languages, c.Store.StoreTimeout.Duration)

	a := &app{store: st, index: ix, engine: engine, catalog: cat}

	if seedFile != "" {
		start := time.Now()
		n, err := ingest.Seed(ctx, seedFile, cat)
		if err != nil {
			st.Close()
			return nil, err
		}
		log.Infof("Seeded %d items from %s in %v", n, seedFile, time.Since(start))
		return a, nil
	}

	snap, err := cat.Refresh(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building index: %w", err)
	}
	log.Debugf("Index ready: items=[%d] keys=[%d] generation=[%d]", snap.Len(), snap.Keys(), snap.Generation())
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
