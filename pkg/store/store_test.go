package store

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "ncov.db"), schema.Default(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(context.Background()))
	return db
}

func count(t *testing.T, db *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM "+schema.QuoteIdent(table)).Scan(&n))
	return n
}

func TestCreateSchema_Verifies(t *testing.T) {
	db := tempStore(t)
	require.NoError(t, db.Verify(context.Background()))
	// Idempotent.
	require.NoError(t, db.CreateSchema(context.Background()))
}

func TestInsert_QuotingInValues(t *testing.T) {
	ctx := context.Background()
	db := tempStore(t)

	err := db.WithTx(ctx, func(tx *Tx) error {
		ok, err := tx.Insert(ctx, schema.DailyReports, map[string]any{
			"country":   "Cote d'Ivoire",
			"province":  `Robert "Bobby" Land`,
			"confirmed": int64(3),
		}, Append)
		assert.True(t, ok)
		return err
	})
	require.NoError(t, err)

	var country, province string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT country, province FROM jhu_data`).Scan(&country, &province))
	assert.Equal(t, "Cote d'Ivoire", country)
	assert.Equal(t, `Robert "Bobby" Land`, province)
}

func TestInsert_IgnoreDuplicates(t *testing.T) {
	ctx := context.Background()
	db := tempStore(t)
	row := map[string]any{"date": "2020-02-01", "place": "Wuhan", "confirmed": int64(1)}

	var written []bool
	err := db.WithTx(ctx, func(tx *Tx) error {
		for i := 0; i < 2; i++ {
			ok, err := tx.Insert(ctx, schema.HGISReports, row, Ignore)
			if err != nil {
				return err
			}
			written = append(written, ok)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, written)
	assert.Equal(t, 1, count(t, db, schema.HGISReports))
}

func TestInsert_UndeclaredColumn(t *testing.T) {
	ctx := context.Background()
	db := tempStore(t)

	err := db.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.Insert(ctx, schema.DailyReports, map[string]any{"confirmed": int64(1), "bogus": 1}, Append)
		return err
	})
	var pe *schema.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "bogus", pe.Column)
}

func TestWithTx_RollsBack(t *testing.T) {
	ctx := context.Background()
	db := tempStore(t)
	boom := errors.New("boom")

	err := db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.Insert(ctx, schema.HGISReports, map[string]any{"date": "2020-02-01", "place": "x"}, Append); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, count(t, db, schema.HGISReports))
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	db := tempStore(t)

	for _, name := range []string{"daily_summary__rebuild", "Korea#South", "China.temp", "US.0"} {
		_, err := db.ExecContext(ctx, "CREATE TABLE "+schema.QuoteIdent(name)+" (x INTEGER)")
		require.NoError(t, err)
	}

	dropped, err := db.Cleanup(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"daily_summary__rebuild", "Korea#South", "China.temp", "US.0"}, dropped)

	left, err := db.StaleTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, left)
	// Declared tables are never matched.
	require.NoError(t, db.Verify(ctx))
}
