// Command ncov loads epidemiological source files into SQLite and derives
// daily summaries from them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/config"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/pipeline"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

type globalFlags struct {
	config  string
	db      string
	dataDir string
	verbose bool
}

func (g *globalFlags) register(pf *pflag.FlagSet) {
	pf.StringVar(&g.config, "config", "ncov.yaml", "path to config file")
	pf.StringVar(&g.db, "db", "", "database file (overrides config)")
	pf.StringVar(&g.dataDir, "data-dir", "", "base directory of source files (overrides config)")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "log every statement and row decision")
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		g                         globalFlags
		firstRun, update, cleanup bool
	)
	root := &cobra.Command{
		Use:           "ncov",
		Short:         "Load nCoV source files and rebuild daily summaries",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !firstRun && !update && !cleanup {
				return cmd.Help()
			}
			return runBatch(cmd, g, firstRun, update, cleanup)
		},
	}

	g.register(root.PersistentFlags())

	f := root.Flags()
	f.BoolVar(&firstRun, "first-run", false, "create the schema and load reference tables")
	f.BoolVar(&update, "update", false, "run every source loader, then rebuild summaries")
	f.BoolVar(&cleanup, "cleanup", false, "drop tables left by interrupted rebuilds")

	root.AddCommand(newServeCmd(&g), newMCPCmd(&g), newLedgerCmd(&g))
	return root
}

// setup loads the configuration and applies flag overrides.
func setup(cmd *cobra.Command, g globalFlags) (config.Config, *slog.Logger, error) {
	logger := newLogger(g.verbose)
	slog.SetDefault(logger)
	cfg, err := config.Load(g.config, logger)
	if err != nil {
		return cfg, logger, err
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = g.db
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = g.dataDir
	}
	return cfg, logger, nil
}

func runBatch(cmd *cobra.Command, g globalFlags, firstRun, update, cleanup bool) error {
	cfg, logger, err := setup(cmd, g)
	if err != nil {
		return err
	}

	lock, err := pipeline.AcquireLock(pipeline.LockPath(cfg.Database))
	if err != nil {
		return err
	}
	defer lock.Release()

	db, err := store.Open(cfg.Database, schema.Default(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := pipeline.New(cfg, db, pipeline.WithLogger(logger), pipeline.WithMetrics(metrics.New()))
	modes := []struct {
		on  bool
		run func(context.Context) (*pipeline.Report, error)
	}{
		{cleanup, p.Cleanup},
		{firstRun, p.FirstRun},
		{update, p.Update},
	}

	var failed int
	for _, m := range modes {
		if !m.on {
			continue
		}
		start := time.Now()
		rep, err := m.run(ctx)
		if rep != nil {
			rep.Render(cmd.OutOrStdout())
			failed += len(rep.Failures())
		}
		if err != nil {
			return err
		}
		logger.Info("run finished", "mode", rep.Mode, "run_id", rep.RunID,
			"duration", time.Since(start).Round(time.Millisecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed to load", failed)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	// Stdout carries reports and the MCP stdio stream.
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if s, ok := a.Value.Any().(string); ok && s == "" {
				return slog.Attr{}
			}
			return a
		},
	}))
}
