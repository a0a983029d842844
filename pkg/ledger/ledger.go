// Package ledger records which source files have been committed. An entry is
// written in the same transaction as the file's fact rows, so a file is
// marked if and only if all of its rows are visible.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jonboulle/clockwork"
)

// Source kinds as stored in the files table.
const (
	KindSnapshots     = "3GDXY"
	KindDailyReports  = "JHU"
	KindUSReports     = "JHU_US"
	KindHGIS          = "HGIS"
	KindPressReleases = "HKSARG"
	KindReference     = "REFERENCE"
)

// Entry is one row of the files table.
type Entry struct {
	Filename    string    `json:"filename"`
	Source      string    `json:"source"`
	ProcessedAt time.Time `json:"processed_at"`
	RunID       string    `json:"run_id"`
	Rows        int64     `json:"rows"`
}

// Querier is satisfied by *store.DB and *store.Tx.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Ledger reads and appends ledger entries for one run.
type Ledger struct {
	clock clockwork.Clock
	runID string
}

// New returns a ledger stamping entries with clock and runID.
func New(clock clockwork.Clock, runID string) *Ledger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Ledger{clock: clock, runID: runID}
}

// RunID returns the identifier written with every entry of this run.
func (l *Ledger) RunID() string { return l.runID }

// IsProcessed reports whether id has an entry for kind.
func (l *Ledger) IsProcessed(ctx context.Context, q Querier, id, kind string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM files WHERE filename = ? AND source = ?`, id, kind).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("ledger lookup %s/%s: %w", kind, id, err)
	}
	return n > 0, nil
}

// Processed returns the set of identifiers already committed for kind.
func (l *Ledger) Processed(ctx context.Context, q Querier, kind string) (map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT filename FROM files WHERE source = ?`, kind)
	if err != nil {
		return nil, fmt.Errorf("ledger list %s: %w", kind, err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		done[name] = true
	}
	return done, rows.Err()
}

// MarkProcessed appends an entry inside tx. A second entry for the same
// (id, kind) violates the unique key and fails the transaction.
func (l *Ledger) MarkProcessed(ctx context.Context, tx *store.Tx, id, kind string, rows int) error {
	_, err := tx.Insert(ctx, schema.Files, map[string]any{
		"filename":       id,
		"source":         kind,
		"date_processed": l.clock.Now().UTC().Format(time.RFC3339),
		"run_id":         l.runID,
		"rows":           int64(rows),
	}, store.Append)
	if err != nil {
		return fmt.Errorf("mark processed %s/%s: %w", kind, id, err)
	}
	return nil
}

// List returns entries ordered by processing time, optionally for one kind.
func List(ctx context.Context, q Querier, kind string) ([]Entry, error) {
	query := `SELECT filename, source, date_processed, COALESCE(run_id, ''), COALESCE(rows, 0) FROM files`
	var args []any
	if kind != "" {
		query += ` WHERE source = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY date_processed, source, filename`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			at string
		)
		if err := rows.Scan(&e.Filename, &e.Source, &at, &e.RunID, &e.Rows); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		e.ProcessedAt, _ = time.Parse(time.RFC3339, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
