package store

import (
	"context"
	"fmt"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
)

// stalePatterns match tables left behind by an interrupted summary rebuild
// and the punctuation-mangled per-entity tables of older databases.
var stalePatterns = []string{
	`%\_\_rebuild`,
	`%.temp`,
	`%.0`,
	`%#%`,
}

// StaleTables lists tables whose names match a leftover naming state.
func (d *DB) StaleTables(ctx context.Context) ([]string, error) {
	q := `SELECT name FROM sqlite_master WHERE type = 'table' AND (`
	args := make([]any, len(stalePatterns))
	for i, p := range stalePatterns {
		if i > 0 {
			q += " OR "
		}
		q += `name LIKE ? ESCAPE '\'`
		args[i] = p
	}
	q += `) ORDER BY name`

	rows, err := d.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list stale tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan stale table: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Cleanup drops every stale table in one transaction and returns their names.
func (d *DB) Cleanup(ctx context.Context) ([]string, error) {
	names, err := d.StaleTables(ctx)
	if err != nil || len(names) == 0 {
		return nil, err
	}
	err = d.WithTx(ctx, func(tx *Tx) error {
		for _, name := range names {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(name)); err != nil {
				return fmt.Errorf("drop %s: %w", name, err)
			}
			d.logger.Info("dropped stale table", "table", name)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
