package ledger

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLedger(t *testing.T) (*store.DB, *Ledger, *clockwork.FakeClock) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "ledger.db"), schema.Default(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), schema.Ledger))

	clock := clockwork.NewFakeClockAt(time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC))
	return db, New(clock, "run-1"), clock
}

func TestMarkProcessed(t *testing.T) {
	ctx := context.Background()
	db, l, _ := tempLedger(t)

	done, err := l.IsProcessed(ctx, db, "a.json", KindSnapshots)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		return l.MarkProcessed(ctx, tx, "a.json", KindSnapshots, 2)
	}))

	done, err = l.IsProcessed(ctx, db, "a.json", KindSnapshots)
	require.NoError(t, err)
	assert.True(t, done)

	// Same name under another kind is a different entry.
	done, err = l.IsProcessed(ctx, db, "a.json", KindDailyReports)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkProcessed_RolledBackWithFile(t *testing.T) {
	ctx := context.Background()
	db, l, _ := tempLedger(t)

	err := db.WithTx(ctx, func(tx *store.Tx) error {
		if err := l.MarkProcessed(ctx, tx, "b.csv", KindDailyReports, 10); err != nil {
			return err
		}
		return errors.New("insert failed")
	})
	require.Error(t, err)

	done, err := l.IsProcessed(ctx, db, "b.csv", KindDailyReports)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkProcessed_Duplicate(t *testing.T) {
	ctx := context.Background()
	db, l, _ := tempLedger(t)

	mark := func() error {
		return db.WithTx(ctx, func(tx *store.Tx) error {
			return l.MarkProcessed(ctx, tx, "c.csv", KindDailyReports, 1)
		})
	}
	require.NoError(t, mark())
	assert.Error(t, mark())
}

func TestProcessedAndList(t *testing.T) {
	ctx := context.Background()
	db, l, clock := tempLedger(t)

	for _, name := range []string{"01-22-2020.csv", "01-23-2020.csv"} {
		require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
			return l.MarkProcessed(ctx, tx, name, KindDailyReports, 5)
		}))
		clock.Advance(time.Minute)
	}
	require.NoError(t, db.WithTx(ctx, func(tx *store.Tx) error {
		return l.MarkProcessed(ctx, tx, "places.csv", KindReference, 100)
	}))

	set, err := l.Processed(ctx, db, KindDailyReports)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"01-22-2020.csv": true, "01-23-2020.csv": true}, set)

	all, err := List(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "01-22-2020.csv", all[0].Filename)
	assert.Equal(t, "run-1", all[0].RunID)
	assert.Equal(t, int64(5), all[0].Rows)
	assert.Equal(t, time.Date(2020, 2, 1, 12, 0, 0, 0, time.UTC), all[0].ProcessedAt)

	ref, err := List(ctx, db, KindReference)
	require.NoError(t, err)
	require.Len(t, ref, 1)
	assert.Equal(t, "places.csv", ref[0].Filename)
}
