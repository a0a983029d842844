package aggregate

import (
	"context"
	"database/sql"
)

// Entities lists the summarized entity names in order.
func Entities(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT entity FROM daily_summary ORDER BY entity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Summary returns an entity's summary rows ordered by date. An unknown
// entity yields an empty slice.
func Summary(ctx context.Context, q Querier, entity string) ([]Row, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT entity, date, confirmed, deaths, recovered, active, cfr, crr,
		       day_index_since_threshold, growth_rate_1day, growth_rate_7day,
		       deaths_growth_1day, deaths_growth_7day, recovered_growth_1day, recovered_growth_7day,
		       COALESCE(tested, 0), COALESCE(hospitalized, 0)
		FROM daily_summary
		WHERE entity = ?
		ORDER BY date`, entity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r                       Row
			day                     sql.NullInt64
			growth, deaths, recovered sql.NullFloat64
		)
		if err := rows.Scan(&r.Entity, &r.Date, &r.Confirmed, &r.Deaths, &r.Recovered, &r.Active,
			&r.CFR, &r.CRR, &day, &growth, &r.GrowthRate7Day,
			&deaths, &r.DeathsGrowth7Day, &recovered, &r.RecoveredGrowth7Day,
			&r.Tested, &r.Hospitalized); err != nil {
			return nil, err
		}
		if day.Valid {
			r.DayIndexSinceThreshold = &day.Int64
		}
		r.GrowthRate1Day = nullFloat(growth)
		r.DeathsGrowth1Day = nullFloat(deaths)
		r.RecoveredGrowth1Day = nullFloat(recovered)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Points strips summary rows down to their counts.
func Points(rows []Row) []Point {
	points := make([]Point, len(rows))
	for i, r := range rows {
		points[i] = r.Point
	}
	return points
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
