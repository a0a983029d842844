// Package store owns the single SQLite handle of a pipeline run. Every
// statement goes through it so that verbose runs can echo them, and every
// dynamically keyed insert is checked against the schema registry before any
// SQL text is built.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"

	_ "modernc.org/sqlite"
)

// Mode selects the conflict behavior of an insert.
type Mode int

const (
	// Append fails on a constraint violation.
	Append Mode = iota
	// Ignore skips rows that collide with a unique key.
	Ignore
)

// DB wraps the database handle together with the registry that describes it.
type DB struct {
	db     *sql.DB
	reg    *schema.Registry
	logger *slog.Logger
}

// Open opens (or creates) the database file at path. All access goes through
// a single connection.
func Open(path string, reg *schema.Registry, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &DB{db: db, reg: reg, logger: logger}, nil
}

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }

// Registry returns the schema registry the store checks inserts against.
func (d *DB) Registry() *schema.Registry { return d.reg }

// ExecContext runs a statement outside any transaction.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	d.echo(query, args)
	return d.db.ExecContext(ctx, query, args...)
}

// QueryContext runs a query outside any transaction.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	d.echo(query, args)
	return d.db.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query outside any transaction.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	d.echo(query, args)
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *DB) echo(query string, args []any) {
	d.logger.Debug("sql", "stmt", oneLine(query), "args", args)
}

func oneLine(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

// CreateSchema creates every declared table of the given kinds (all kinds
// when none is given). Existing tables are left untouched.
func (d *DB) CreateSchema(ctx context.Context, kinds ...schema.Kind) error {
	return d.WithTx(ctx, func(tx *Tx) error {
		for _, t := range d.reg.Tables(kinds...) {
			for _, stmt := range t.CreateSQL() {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("create %s: %w", t.Name, err)
				}
			}
		}
		return nil
	})
}

// Verify checks the live schema against the registry.
func (d *DB) Verify(ctx context.Context, kinds ...schema.Kind) error {
	return d.reg.Verify(ctx, d.db, kinds...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	d.echo("BEGIN", nil)
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	tx := &Tx{tx: sqlTx, db: d}
	if err := fn(tx); err != nil {
		d.echo("ROLLBACK", nil)
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	d.echo("COMMIT", nil)
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Tx is one open transaction.
type Tx struct {
	tx *sql.Tx
	db *DB
}

// ExecContext runs a statement inside the transaction.
func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	t.db.echo(query, args)
	return t.tx.ExecContext(ctx, query, args...)
}

// QueryContext runs a query inside the transaction.
func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	t.db.echo(query, args)
	return t.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query inside the transaction.
func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	t.db.echo(query, args)
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Insert writes one row into a declared table. Columns are emitted in
// declaration order and values are always bound. It reports whether a row
// was actually written, which is false when Ignore skipped a duplicate.
func (t *Tx) Insert(ctx context.Context, table string, row map[string]any, mode Mode) (bool, error) {
	return t.InsertAs(ctx, table, table, row, mode)
}

// InsertAs checks row against the declaration of table but writes it into
// target, a table created from the same declaration under another name.
func (t *Tx) InsertAs(ctx context.Context, table, target string, row map[string]any, mode Mode) (bool, error) {
	decl, err := t.db.reg.Get(table)
	if err != nil {
		return false, err
	}
	cols := make([]string, 0, len(row))
	args := make([]any, 0, len(row))
	for _, c := range decl.Columns {
		if v, ok := row[c.Name]; ok {
			cols = append(cols, schema.QuoteIdent(c.Name))
			args = append(args, v)
		}
	}
	if len(cols) != len(row) {
		return false, &schema.PipelineError{Table: table, Column: undeclared(decl, row), Msg: "column not declared"}
	}
	if len(cols) == 0 {
		return false, fmt.Errorf("insert into %s: empty row", table)
	}

	verb := "INSERT"
	if mode == Ignore {
		verb = "INSERT OR IGNORE"
	}
	q := fmt.Sprintf("%s INTO %s (%s) VALUES (%s)",
		verb, schema.QuoteIdent(target), strings.Join(cols, ", "), placeholders(len(cols)))

	res, err := t.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", target, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert into %s: %w", table, err)
	}
	return n > 0, nil
}

func undeclared(decl *schema.Table, row map[string]any) string {
	var names []string
	for k := range row {
		if c, ok := decl.Column(k); !ok || c.Name != k {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
