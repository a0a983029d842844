package schema

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func tempDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "schema.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestColumnLookup_CaseInsensitive(t *testing.T) {
	reg := Default()
	prov := reg.MustGet(ProvinceSnapshots)

	c, ok := prov.Column("CONFIRMEDCOUNT")
	require.True(t, ok)
	assert.Equal(t, "confirmedCount", c.Name)
	assert.Equal(t, Integer, c.Type)

	_, ok = prov.Column("cities")
	assert.False(t, ok)
}

func TestZeroValue(t *testing.T) {
	assert.Equal(t, int64(0), Column{Type: Integer}.ZeroValue())
	assert.Equal(t, 0.0, Column{Type: Real}.ZeroValue())
	assert.Equal(t, "", Column{Type: Text}.ZeroValue())
}

func TestCreateSQL(t *testing.T) {
	reg := Default()
	stmts := reg.MustGet(DailySummary).CreateSQL()
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `CREATE TABLE IF NOT EXISTS "daily_summary"`)
	assert.Contains(t, stmts[0], `PRIMARY KEY ("entity", "date")`)
	assert.Contains(t, stmts[1], `CREATE INDEX IF NOT EXISTS "daily_summary_entity"`)

	renamed := reg.MustGet(DailySummary).CreateSQLAs("daily_summary__rebuild")
	assert.Contains(t, renamed[0], `"daily_summary__rebuild"`)
	assert.Contains(t, renamed[1], `"daily_summary__rebuild_daily_summary_entity"`)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"Cote d'Ivoire"`, QuoteIdent("Cote d'Ivoire"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

func TestGet_Unknown(t *testing.T) {
	_, err := Default().Get("no_such_table")
	var pe *PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "no_such_table", pe.Table)
}

func TestTables_FilterByKind(t *testing.T) {
	reg := Default()
	for _, tbl := range reg.Tables(Reference) {
		assert.Equal(t, Reference, tbl.Kind, tbl.Name)
	}
	ledger := reg.Tables(Ledger)
	require.Len(t, ledger, 1)
	assert.Equal(t, Files, ledger[0].Name)
	assert.Len(t, reg.Tables(), len(declarations()))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)
	reg := Default()

	err := reg.Verify(ctx, db, Fact)
	var pe *PipelineError
	require.True(t, errors.As(err, &pe), "expected PipelineError, got %v", err)
	assert.Equal(t, "table does not exist", pe.Msg)

	for _, tbl := range reg.Tables() {
		for _, stmt := range tbl.CreateSQL() {
			_, err := db.ExecContext(ctx, stmt)
			require.NoError(t, err, stmt)
		}
	}
	require.NoError(t, reg.Verify(ctx, db))
}

func TestVerify_MissingColumn(t *testing.T) {
	ctx := context.Background()
	db := tempDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE files (filename TEXT, source TEXT)`)
	require.NoError(t, err)

	err = Default().Verify(ctx, db, Ledger)
	var pe *PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, Files, pe.Table)
	assert.True(t, strings.EqualFold(pe.Column, "date_processed"))
}
