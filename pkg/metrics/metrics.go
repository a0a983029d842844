// Package metrics exposes Prometheus counters for loader and aggregator
// outcomes. Batch runs write them to a node-exporter textfile; the serve
// command exposes them on /metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every collector of a pipeline run. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FilesTotal         *prometheus.CounterVec
	RowsInsertedTotal  *prometheus.CounterVec
	RowsSkippedTotal   *prometheus.CounterVec
	UnknownFieldsTotal *prometheus.CounterVec
	SummaryRows        prometheus.Gauge
	SummaryEntities    prometheus.Gauge
	RunDuration        *prometheus.HistogramVec
	LastRunTimestamp   prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncov_files_total",
			Help: "Source files seen by loaders, by source kind and outcome",
		}, []string{"source", "outcome"}),
		RowsInsertedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncov_rows_inserted_total",
			Help: "Fact rows committed, by source kind",
		}, []string{"source"}),
		RowsSkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncov_rows_skipped_total",
			Help: "Rows skipped because a value could not be coerced, by source kind",
		}, []string{"source"}),
		UnknownFieldsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ncov_unknown_fields_total",
			Help: "Source fields dropped because no column declares them, by source kind",
		}, []string{"source"}),
		SummaryRows: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ncov_summary_rows",
			Help: "Rows in the daily summary table after the last rebuild",
		}),
		SummaryEntities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ncov_summary_entities",
			Help: "Entities in the daily summary table after the last rebuild",
		}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ncov_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"stage"}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ncov_last_run_timestamp_seconds",
			Help: "Unix time of the last completed pipeline run",
		}),
	}
}

// File outcomes.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// File records one file outcome.
func (m *Metrics) File(source, outcome string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(source, outcome).Inc()
}

// Rows records committed and skipped row counts for one file.
func (m *Metrics) Rows(source string, inserted, skipped, unknown int) {
	if m == nil {
		return
	}
	m.RowsInsertedTotal.WithLabelValues(source).Add(float64(inserted))
	m.RowsSkippedTotal.WithLabelValues(source).Add(float64(skipped))
	m.UnknownFieldsTotal.WithLabelValues(source).Add(float64(unknown))
}

// Summary records the size of the rebuilt summary table.
func (m *Metrics) Summary(entities, rows int) {
	if m == nil {
		return
	}
	m.SummaryEntities.Set(float64(entities))
	m.SummaryRows.Set(float64(rows))
}

// Stage records the duration of one pipeline stage.
func (m *Metrics) Stage(stage string, seconds float64) {
	if m == nil {
		return
	}
	m.RunDuration.WithLabelValues(stage).Observe(seconds)
}

// Finished stamps the completion time of a run.
func (m *Metrics) Finished(at time.Time) {
	if m == nil {
		return
	}
	m.LastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
