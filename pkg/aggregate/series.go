// Package aggregate derives per-entity daily summaries from the daily-report
// fact table: summed counts, fatality and recovery ratios, growth rates and
// the day index since a threshold was first reached. Summaries are always
// rebuilt from the facts, never patched.
package aggregate

import (
	"fmt"
	"math"
	"sort"
)

// WorldEntity names the global aggregate.
const WorldEntity = "World"

// SevenDayLag is the row lag of the compound weekly growth rate.
const SevenDayLag = 7

// Point is one entity's summed counts on one report date.
type Point struct {
	Date      string `json:"date"`
	Confirmed int64  `json:"confirmed"`
	Deaths    int64  `json:"deaths"`
	Recovered int64  `json:"recovered"`
	Active    int64  `json:"active"`

	Tested       int64 `json:"tested"`
	Hospitalized int64 `json:"hospitalized"`
}

// Metric returns the named count.
func (p Point) Metric(name string) (int64, error) {
	switch name {
	case "confirmed":
		return p.Confirmed, nil
	case "deaths":
		return p.Deaths, nil
	case "recovered":
		return p.Recovered, nil
	case "active":
		return p.Active, nil
	}
	return 0, fmt.Errorf("unknown metric %q", name)
}

// Row is one line of the daily summary table.
type Row struct {
	Entity string `json:"entity"`
	Point
	CFR                    float64  `json:"cfr"`
	CRR                    float64  `json:"crr"`
	DayIndexSinceThreshold *int64   `json:"day_index_since_threshold"`
	GrowthRate1Day         *float64 `json:"growth_rate_1day"`
	GrowthRate7Day         float64  `json:"growth_rate_7day"`

	DeathsGrowth1Day    *float64 `json:"deaths_growth_1day"`
	DeathsGrowth7Day    float64  `json:"deaths_growth_7day"`
	RecoveredGrowth1Day *float64 `json:"recovered_growth_1day"`
	RecoveredGrowth7Day float64  `json:"recovered_growth_7day"`
}

// Options controls summary derivation.
type Options struct {
	ThresholdMetric string
	Threshold       int64
	Rounding        int
}

// DefaultOptions index days from the 100th confirmed case and round ratios
// to four decimals.
func DefaultOptions() Options {
	return Options{ThresholdMetric: "confirmed", Threshold: 100, Rounding: 4}
}

// Ratio divides part by whole, returning 0 when whole is 0.
func Ratio(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

// Growth1Day is cur/prev - 1. ok is false when prev is 0, which the summary
// stores as NULL.
func Growth1Day(cur, prev int64) (rate float64, ok bool) {
	if prev == 0 {
		return 0, false
	}
	return float64(cur)/float64(prev) - 1, true
}

// CAGR is the compound growth rate from v2 to v1 over interval periods. A
// non-positive v2 or interval yields the sentinel -1, meaning "not
// computable", never a real -100% rate.
func CAGR(v1, v2 float64, interval int) float64 {
	if v2 <= 0 || interval <= 0 {
		return -1
	}
	return math.Pow(v1/v2, 1/float64(interval)) - 1
}

// Round rounds x to places decimals.
func Round(x float64, places int) float64 {
	if places < 0 {
		return x
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// BuildSeries derives summary rows from one entity's points, which must be
// sorted by date. Lags are taken by position in the series; a missing lagged
// value counts as 0.
func BuildSeries(entity string, points []Point, opts Options) []Row {
	rows := make([]Row, len(points))
	var dayIndex int64
	for i, p := range points {
		r := Row{
			Entity: entity,
			Point:  p,
			CFR:    Round(Ratio(p.Deaths, p.Confirmed), opts.Rounding),
			CRR:    Round(Ratio(p.Recovered, p.Confirmed), opts.Rounding),
		}

		r.GrowthRate1Day, r.GrowthRate7Day = growth(points, i, opts.Rounding, func(p Point) int64 { return p.Confirmed })
		r.DeathsGrowth1Day, r.DeathsGrowth7Day = growth(points, i, opts.Rounding, func(p Point) int64 { return p.Deaths })
		r.RecoveredGrowth1Day, r.RecoveredGrowth7Day = growth(points, i, opts.Rounding, func(p Point) int64 { return p.Recovered })

		if v, err := p.Metric(opts.ThresholdMetric); err == nil && (dayIndex > 0 || v >= opts.Threshold) {
			dayIndex++
			idx := dayIndex
			r.DayIndexSinceThreshold = &idx
		}
		rows[i] = r
	}
	return rows
}

// growth returns the 1-day rate (nil when the previous value is 0) and the
// compound 7-row rate of one count at position i.
func growth(points []Point, i, rounding int, count func(Point) int64) (*float64, float64) {
	cur := count(points[i])
	var prev, lagged int64
	if i > 0 {
		prev = count(points[i-1])
	}
	if i >= SevenDayLag {
		lagged = count(points[i-SevenDayLag])
	}

	var day *float64
	if g, ok := Growth1Day(cur, prev); ok {
		g = Round(g, rounding)
		day = &g
	}
	return day, Round(CAGR(float64(cur), float64(lagged), SevenDayLag), rounding)
}

// IndexedPoint is a point of a days-since-threshold series.
type IndexedPoint struct {
	Day int64 `json:"day"`
	Point
}

// ThresholdSeries keeps the dates on and after the first date metric reaches
// threshold, numbered from 1. Earlier dates are left out.
func ThresholdSeries(points []Point, metric string, threshold int64) ([]IndexedPoint, error) {
	var out []IndexedPoint
	for _, p := range points {
		v, err := p.Metric(metric)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 && v < threshold {
			continue
		}
		out = append(out, IndexedPoint{Day: int64(len(out) + 1), Point: p})
	}
	return out, nil
}

// World sums, date by date, the points of every entity that reported
// confirmed > 0 on that date. An entity silent on a date contributes
// nothing to it: its earlier cumulative count is not carried forward.
func World(series map[string][]Point) []Point {
	byDate := make(map[string]*Point)
	for _, points := range series {
		for _, p := range points {
			if p.Confirmed <= 0 {
				continue
			}
			w, ok := byDate[p.Date]
			if !ok {
				w = &Point{Date: p.Date}
				byDate[p.Date] = w
			}
			w.Confirmed += p.Confirmed
			w.Deaths += p.Deaths
			w.Recovered += p.Recovered
			w.Active += p.Active
			w.Tested += p.Tested
			w.Hospitalized += p.Hospitalized
		}
	}
	out := make([]Point, 0, len(byDate))
	for _, p := range byDate {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
