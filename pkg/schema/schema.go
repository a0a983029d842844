// Package schema declares every table the pipeline owns: its columns, their
// primitive types and the constraints that make loads idempotent. The same
// declarations drive table creation, value coercion in the parser and the
// column whitelist applied to dynamically keyed inserts.
package schema

import (
	"fmt"
	"strings"
)

// ColumnType is one of the three primitive storage types.
type ColumnType string

const (
	Integer ColumnType = "integer"
	Real    ColumnType = "real"
	Text    ColumnType = "text"
)

// Kind tells who owns writes to a table.
type Kind int

const (
	// Fact tables are append-only and written by loaders.
	Fact Kind = iota
	// Reference tables are static lookups loaded once.
	Reference
	// Ledger is the ingestion ledger.
	Ledger
	// Derived tables are dropped and rebuilt by the aggregator.
	Derived
)

func (k Kind) String() string {
	switch k {
	case Fact:
		return "fact"
	case Reference:
		return "reference"
	case Ledger:
		return "ledger"
	case Derived:
		return "derived"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column is a single declared column.
type Column struct {
	Name       string
	Type       ColumnType
	Constraint string
}

// Index is a secondary index created alongside its table.
type Index struct {
	Name    string
	Columns []string
}

// Table is the declaration of one logical table.
type Table struct {
	Name       string
	Kind       Kind
	Columns    []Column
	PrimaryKey []string
	Unique     []string
	Indexes    []Index

	byName map[string]int
}

func newTable(name string, kind Kind, cols ...Column) *Table {
	t := &Table{Name: name, Kind: kind, Columns: cols, byName: make(map[string]int, len(cols))}
	for i, c := range cols {
		t.byName[strings.ToLower(c.Name)] = i
	}
	return t
}

func (t *Table) withPrimaryKey(cols ...string) *Table {
	t.PrimaryKey = cols
	return t
}

func (t *Table) withUnique(cols ...string) *Table {
	t.Unique = cols
	return t
}

func (t *Table) withIndex(name string, cols ...string) *Table {
	t.Indexes = append(t.Indexes, Index{Name: name, Columns: cols})
	return t
}

// Column looks a column up by name. SQLite identifiers are case-insensitive,
// and so is this lookup.
func (t *Table) Column(name string) (Column, bool) {
	i, ok := t.byName[strings.ToLower(name)]
	if !ok {
		return Column{}, false
	}
	return t.Columns[i], true
}

// ColumnNames returns the declared column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// ZeroValue returns the value substituted for an empty source cell.
func (c Column) ZeroValue() any {
	switch c.Type {
	case Integer:
		return int64(0)
	case Real:
		return 0.0
	default:
		return ""
	}
}

// CreateSQL renders the CREATE TABLE IF NOT EXISTS statement followed by any
// index statements.
func (t *Table) CreateSQL() []string {
	return t.createAs(t.Name)
}

// CreateSQLAs renders the table definition under another name. The aggregator
// uses it to build a replacement table before swapping it in.
func (t *Table) CreateSQLAs(name string) []string {
	return t.createAs(name)
}

func (t *Table) createAs(name string) []string {
	defs := make([]string, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		def := QuoteIdent(c.Name) + " " + strings.ToUpper(string(c.Type))
		if c.Constraint != "" {
			def += " " + c.Constraint
		}
		defs = append(defs, def)
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteList(t.PrimaryKey)+")")
	}
	if len(t.Unique) > 0 {
		defs = append(defs, "UNIQUE ("+quoteList(t.Unique)+")")
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", QuoteIdent(name), strings.Join(defs, ",\n\t")),
	}
	for _, idx := range t.Indexes {
		idxName := idx.Name
		if name != t.Name {
			idxName = name + "_" + idx.Name
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			QuoteIdent(idxName), QuoteIdent(name), quoteList(idx.Columns)))
	}
	return stmts
}

// QuoteIdent quotes an SQL identifier. Only declared names reach SQL text;
// values always travel as bound parameters.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
