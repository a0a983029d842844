package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Registry holds the table declarations, keyed by name.
type Registry struct {
	tables []*Table
	byName map[string]*Table
}

// NewRegistry builds a registry from explicit declarations.
func NewRegistry(tables ...*Table) *Registry {
	r := &Registry{byName: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		r.tables = append(r.tables, t)
		r.byName[t.Name] = t
	}
	return r
}

// Default returns the registry of every table the pipeline knows about.
func Default() *Registry {
	return NewRegistry(declarations()...)
}

// Get returns a table declaration. A missing declaration is a pipeline-level
// inconsistency, not a data problem.
func (r *Registry) Get(name string) (*Table, error) {
	t, ok := r.byName[name]
	if !ok {
		return nil, &PipelineError{Table: name, Msg: "table not declared"}
	}
	return t, nil
}

// MustGet is Get for names known at compile time.
func (r *Registry) MustGet(name string) *Table {
	t, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return t
}

// Tables returns declarations in registration order, optionally filtered by kind.
func (r *Registry) Tables(kinds ...Kind) []*Table {
	if len(kinds) == 0 {
		return append([]*Table(nil), r.tables...)
	}
	var out []*Table
	for _, t := range r.tables {
		for _, k := range kinds {
			if t.Kind == k {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// PipelineError reports a mismatch between the declared and the live schema.
// It aborts a whole run.
type PipelineError struct {
	Table  string
	Column string
	Msg    string
}

func (e *PipelineError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("schema: %s.%s: %s", e.Table, e.Column, e.Msg)
	}
	return fmt.Sprintf("schema: %s: %s", e.Table, e.Msg)
}

// Querier is the read side of *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Verify checks that every declared table of the given kinds exists in the
// database with at least its declared columns.
func (r *Registry) Verify(ctx context.Context, q Querier, kinds ...Kind) error {
	for _, t := range r.Tables(kinds...) {
		live, err := liveColumns(ctx, q, t.Name)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", t.Name, err)
		}
		if len(live) == 0 {
			return &PipelineError{Table: t.Name, Msg: "table does not exist"}
		}
		for _, c := range t.Columns {
			if _, ok := live[strings.ToLower(c.Name)]; !ok {
				return &PipelineError{Table: t.Name, Column: c.Name, Msg: "column does not exist"}
			}
		}
	}
	return nil
}

func liveColumns(ctx context.Context, q Querier, table string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = strings.ToLower(typ)
	}
	return cols, rows.Err()
}
