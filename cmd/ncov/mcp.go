package main

import (
	"github.com/hazyhaar/ncov-pipeline/pkg/api"
	"github.com/hazyhaar/ncov-pipeline/pkg/kit"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Expose the daily summaries as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *g)
			if err != nil {
				return err
			}
			db, err := store.Open(cfg.Database, schema.Default(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			srv := server.NewMCPServer("ncov", version, server.WithToolCapabilities(false))
			api.RegisterMCPTools(srv, api.NewEndpoints(db, func(name string) kit.Middleware {
				return kit.Logging(logger, name)
			}))
			logger.Info("mcp server on stdio", "database", cfg.Database)
			return server.ServeStdio(srv)
		},
	}
}
