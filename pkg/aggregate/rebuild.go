package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

// rebuildSuffix marks the replacement table while it is being built. A
// leftover one is swept by cleanup.
const rebuildSuffix = "__rebuild"

// ProvinceSep joins a country and one of its provinces into an entity name.
const ProvinceSep = "/"

// Querier is the read side shared by *store.DB and *store.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Aggregator rebuilds the daily summary table from the daily-report facts.
type Aggregator struct {
	db      *store.DB
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an Aggregator. A nil logger falls back to slog.Default and a
// nil metrics set is ignored.
func New(db *store.DB, opts Options, logger *slog.Logger, m *metrics.Metrics) (*Aggregator, error) {
	if _, err := (Point{}).Metric(opts.ThresholdMetric); err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{db: db, opts: opts, logger: logger, metrics: m}, nil
}

// Stats describes one rebuild.
type Stats struct {
	Entities int
	Rows     int
}

// RebuildAll recomputes every entity into a fresh table and swaps it in
// within one transaction. Readers see either the old table or the new one.
func (a *Aggregator) RebuildAll(ctx context.Context) (Stats, error) {
	var st Stats
	start := time.Now()
	decl, err := a.db.Registry().Get(schema.DailySummary)
	if err != nil {
		return st, err
	}
	tmp := decl.Name + rebuildSuffix

	err = a.db.WithTx(ctx, func(tx *store.Tx) error {
		st = Stats{}
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(tmp)); err != nil {
			return err
		}
		// Indexes are created after the rename so they carry their final names.
		if _, err := tx.ExecContext(ctx, decl.CreateSQLAs(tmp)[0]); err != nil {
			return fmt.Errorf("create %s: %w", tmp, err)
		}

		series, err := loadAll(ctx, tx)
		if err != nil {
			return err
		}
		for _, entity := range sortedKeys(series) {
			n, err := a.write(ctx, tx, decl.Name, tmp, entity, series[entity])
			if err != nil {
				return err
			}
			st.Entities++
			st.Rows += n
		}

		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(decl.Name)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
			schema.QuoteIdent(tmp), schema.QuoteIdent(decl.Name))); err != nil {
			return err
		}
		for _, stmt := range decl.CreateSQL()[1:] {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("rebuild %s: %w", decl.Name, err)
	}

	a.metrics.Summary(st.Entities, st.Rows)
	a.metrics.Stage("aggregate", time.Since(start).Seconds())
	a.logger.Info("summary rebuilt", "entities", st.Entities, "rows", st.Rows,
		"duration", time.Since(start).Round(time.Millisecond))
	return st, nil
}

// RebuildEntity recomputes one entity in place.
func (a *Aggregator) RebuildEntity(ctx context.Context, entity string) (int, error) {
	decl, err := a.db.Registry().Get(schema.DailySummary)
	if err != nil {
		return 0, err
	}
	var n int
	err = a.db.WithTx(ctx, func(tx *store.Tx) error {
		for _, stmt := range decl.CreateSQL() {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+schema.QuoteIdent(decl.Name)+" WHERE entity = ?", entity); err != nil {
			return err
		}
		points, err := loadEntity(ctx, tx, entity)
		if err != nil {
			return err
		}
		n, err = a.write(ctx, tx, decl.Name, decl.Name, entity, points)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild %s: %w", entity, err)
	}
	a.logger.Info("entity rebuilt", "entity", entity, "rows", n)
	return n, nil
}

func (a *Aggregator) write(ctx context.Context, tx *store.Tx, table, target, entity string, points []Point) (int, error) {
	rows := BuildSeries(entity, points, a.opts)
	for _, r := range rows {
		if _, err := tx.InsertAs(ctx, table, target, r.record(), store.Append); err != nil {
			return 0, err
		}
	}
	return len(rows), nil
}

func (r Row) record() map[string]any {
	rec := map[string]any{
		"entity":           r.Entity,
		"date":             r.Date,
		"confirmed":        r.Confirmed,
		"deaths":           r.Deaths,
		"recovered":        r.Recovered,
		"active":           r.Active,
		"cfr":              r.CFR,
		"crr":              r.CRR,
		"growth_rate_7day": r.GrowthRate7Day,

		"deaths_growth_1day":    nullable(r.DeathsGrowth1Day),
		"deaths_growth_7day":    r.DeathsGrowth7Day,
		"recovered_growth_1day": nullable(r.RecoveredGrowth1Day),
		"recovered_growth_7day": r.RecoveredGrowth7Day,
		"tested":                r.Tested,
		"hospitalized":          r.Hospitalized,
	}
	if r.DayIndexSinceThreshold != nil {
		rec["day_index_since_threshold"] = *r.DayIndexSinceThreshold
	} else {
		rec["day_index_since_threshold"] = nil
	}
	rec["growth_rate_1day"] = nullable(r.GrowthRate1Day)
	return rec
}

// nullable maps a missing rate to SQL NULL.
func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

const sums = `COALESCE(SUM(confirmed), 0), COALESCE(SUM(deaths), 0),
	COALESCE(SUM(recovered), 0), COALESCE(SUM(active), 0),
	COALESCE(SUM(people_tested), 0), COALESCE(SUM(people_hospitalized), 0)`

// loadAll returns the point series of every country, of every province of a
// country that reports more than one, and of the world.
func loadAll(ctx context.Context, q Querier) (map[string][]Point, error) {
	countries, err := queryPoints(ctx, q, `
		SELECT country, date, `+sums+`
		FROM jhu_data
		WHERE COALESCE(country, '') <> ''
		GROUP BY country, date
		ORDER BY country, date`)
	if err != nil {
		return nil, err
	}
	provinces, err := queryPoints(ctx, q, `
		SELECT country || '`+ProvinceSep+`' || province, date, `+sums+`
		FROM jhu_data
		WHERE COALESCE(province, '') <> '' AND country IN (
			SELECT country FROM jhu_data
			WHERE COALESCE(province, '') <> ''
			GROUP BY country
			HAVING COUNT(DISTINCT province) > 1)
		GROUP BY country, province, date
		ORDER BY country, province, date`)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]Point, len(countries)+len(provinces)+1)
	for k, v := range countries {
		out[k] = v
	}
	for k, v := range provinces {
		out[k] = v
	}
	if world := World(countries); len(world) > 0 {
		out[WorldEntity] = world
	}
	return out, nil
}

// loadEntity returns the point series of a single entity name.
func loadEntity(ctx context.Context, q Querier, entity string) ([]Point, error) {
	if entity == WorldEntity {
		all, err := loadAll(ctx, q)
		if err != nil {
			return nil, err
		}
		return all[WorldEntity], nil
	}
	if country, province, ok := strings.Cut(entity, ProvinceSep); ok {
		series, err := queryPoints(ctx, q, `
			SELECT country || '`+ProvinceSep+`' || province, date, `+sums+`
			FROM jhu_data
			WHERE country = ? AND province = ?
			GROUP BY country, province, date
			ORDER BY date`, country, province)
		if err != nil {
			return nil, err
		}
		return series[entity], nil
	}
	series, err := queryPoints(ctx, q, `
		SELECT country, date, `+sums+`
		FROM jhu_data
		WHERE country = ?
		GROUP BY country, date
		ORDER BY date`, entity)
	if err != nil {
		return nil, err
	}
	return series[entity], nil
}

func queryPoints(ctx context.Context, q Querier, query string, args ...any) (map[string][]Point, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]Point)
	for rows.Next() {
		var entity string
		var p Point
		if err := rows.Scan(&entity, &p.Date, &p.Confirmed, &p.Deaths, &p.Recovered, &p.Active,
			&p.Tested, &p.Hospitalized); err != nil {
			return nil, err
		}
		out[entity] = append(out[entity], p)
	}
	return out, rows.Err()
}

func sortedKeys(m map[string][]Point) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
