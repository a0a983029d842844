package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/config"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	cfg config.Config
	db  *store.DB
	p   *Pipeline
	m   *metrics.Metrics
}

func tempPipeline(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.Database = filepath.Join(dir, "ncov.db")
	cfg.MetricsTextfile = filepath.Join(dir, "ncov.prom")
	cfg.Summary.Threshold = 10

	db, err := store.Open(cfg.Database, schema.Default(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	m := metrics.New()
	clock := clockwork.NewFakeClockAt(time.Date(2020, 3, 1, 8, 0, 0, 0, time.UTC))
	p := New(cfg, db, WithClock(clock), WithMetrics(m), WithRunID("run-1"))
	return &fixture{cfg: cfg, db: db, p: p, m: m}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := f.cfg.Resolve(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

const (
	placesCSV = "1;County;Wuhan;Wuhan;武汉市;CN420100;Hubei;湖北省;CN420000;China;中国;CN\n"
	snapshot  = `[{"provinceName":"湖北省","confirmedCount":100,"deadCount":5,"curedCount":10,
"cities":[{"cityName":"武汉","confirmedCount":50,"deadCount":3,"curedCount":5}]}]`
	dailyHeader = "Province/State,Country/Region,Last Update,Confirmed,Deaths,Recovered\n"
)

func TestFirstRunThenUpdate(t *testing.T) {
	ctx := context.Background()
	f := tempPipeline(t)
	f.write(t, f.cfg.Reference.Places.Path, placesCSV)
	f.write(t, f.cfg.Sources.DXY.Path+"/20200201_120000_getAreaStat.json", snapshot)
	f.write(t, f.cfg.Sources.JHU.Path+"/01-22-2020.csv", dailyHeader+
		"Hubei,Mainland China,1/22/2020 17:00,444,17,28\n"+
		"Beijing,Mainland China,1/22/2020 17:00,14,0,0\n")
	f.write(t, f.cfg.Sources.JHU.Path+"/01-23-2020.csv", dailyHeader+
		"Hubei,Mainland China,1/23/2020 17:00,444,17,28\n"+
		"Beijing,Mainland China,1/23/2020 17:00,22,0,0\n"+
		"Lombardy,Italy,1/23/2020 17:00,2,0,0\n")

	first, err := f.p.FirstRun(ctx)
	require.NoError(t, err)
	require.Len(t, first.Results, 5)
	assert.False(t, first.Failed())
	refs, err := ledger.List(ctx, f.db, ledger.KindReference)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "places:chn_admbnda_adm2_ocha.csv", refs[0].Filename)
	assert.Equal(t, "run-1", refs[0].RunID)

	rep, err := f.p.Update(ctx)
	require.NoError(t, err)
	require.Len(t, rep.Results, len(FactOrder))
	assert.False(t, rep.Failed())
	require.NotNil(t, rep.Summary)

	var cityEN string
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT city_en FROM cn_city`).Scan(&cityEN))
	assert.Equal(t, "Wuhan", cityEN)

	entities, err := aggregate.Entities(ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, []string{"China", "China/Beijing", "China/Hubei", "Italy", "World"}, entities)

	world, err := aggregate.Summary(ctx, f.db, aggregate.WorldEntity)
	require.NoError(t, err)
	require.Len(t, world, 2)
	assert.Equal(t, int64(468), world[1].Confirmed)

	prom, err := os.ReadFile(f.cfg.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "ncov_files_total")
	assert.Contains(t, string(prom), "ncov_summary_rows")

	var buf bytes.Buffer
	rep.Render(&buf)
	assert.Contains(t, buf.String(), "JHU")
	assert.Contains(t, buf.String(), "HKSARG (missing)")
	assert.Contains(t, buf.String(), "summary: 5 entities")

	// Idempotent: a second update reads nothing new and rebuilds the same summary.
	again, err := f.p.Update(ctx)
	require.NoError(t, err)
	for _, res := range again.Results {
		assert.Equal(t, 0, res.Processed, res.Source)
	}
	assert.Equal(t, rep.Summary.Rows, again.Summary.Rows)
	var n int
	require.NoError(t, f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jhu_data`).Scan(&n))
	assert.Equal(t, 5, n)
}

func TestUpdate_FailedFileReported(t *testing.T) {
	ctx := context.Background()
	f := tempPipeline(t)
	f.write(t, f.cfg.Sources.JHU.Path+"/01-22-2020.csv", dailyHeader+
		"Hubei,Mainland China,not a date,444,17,28\n")
	_, err := f.p.FirstRun(ctx)
	require.NoError(t, err)

	rep, err := f.p.Update(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Failed())
	require.Len(t, rep.Failures(), 1)
	assert.Equal(t, "01-22-2020.csv", rep.Failures()[0].File)
}

func TestUpdate_RequiresSchema(t *testing.T) {
	f := tempPipeline(t)
	_, err := f.p.Update(context.Background())
	var pe *schema.PipelineError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Contains(t, err.Error(), "--first-run")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	f := tempPipeline(t)
	_, err := f.db.ExecContext(ctx, `CREATE TABLE "daily_summary__rebuild" (x INTEGER)`)
	require.NoError(t, err)

	rep, err := f.p.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"daily_summary__rebuild"}, rep.Dropped)
}

func TestLock(t *testing.T) {
	path := LockPath(filepath.Join(t.TempDir(), "ncov.db"))
	l, err := AcquireLock(path)
	require.NoError(t, err)

	_, err = AcquireLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	l2, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
	assert.NoError(t, l2.Release())
}
