package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/api"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/spf13/cobra"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the daily summaries over HTTP (read-only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *g)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Serve.Addr = addr
			}

			db, err := store.Open(cfg.Database, schema.Default(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			if entities, err := aggregate.Entities(ctx, db); err == nil {
				var rows int
				for _, e := range entities {
					r, err := aggregate.Summary(ctx, db, e)
					if err != nil {
						break
					}
					rows += len(r)
				}
				m.Summary(len(entities), rows)
			} else {
				logger.Warn("no summary table yet, run --update", "error", err)
			}

			srv := &http.Server{
				Addr:              cfg.Serve.Addr,
				Handler:           api.NewRouter(db, m, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				logger.Info("ncov listening", "addr", cfg.Serve.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
