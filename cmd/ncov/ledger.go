package main

import (
	"context"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List the files recorded as processed",
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

			entries, err := ledger.List(context.Background(), db, source)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Source", "File", "Processed", "Rows", "Run"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Source, e.Filename, e.ProcessedAt.Format(time.DateTime), e.Rows, e.RunID})
			}
			t.AppendFooter(table.Row{"", len(entries), "", "", ""})
			t.SetStyle(table.StyleRounded)
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "only this source kind (e.g. JHU, 3GDXY)")
	return cmd
}
