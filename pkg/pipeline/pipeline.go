// Package pipeline runs the three batch modes of the tool: first run
// (schema and reference tables), update (fact loaders then summary rebuild)
// and cleanup. Each run carries its own ID into the ledger and ends with a
// report of per-source file outcomes.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hazyhaar/ncov-pipeline/pkg/aggregate"
	"github.com/hazyhaar/ncov-pipeline/pkg/config"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/loader"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
	"github.com/jonboulle/clockwork"
)

// FactOrder is the order fact loaders run in during an update.
var FactOrder = []string{"dxy", "jhu", "jhu_us", "hgis", "hksarg"}

// Pipeline holds what every mode needs.
type Pipeline struct {
	cfg     config.Config
	db      *store.DB
	clock   clockwork.Clock
	metrics *metrics.Metrics
	logger  *slog.Logger
	runID   string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for ledger timestamps.
func WithClock(c clockwork.Clock) Option { return func(p *Pipeline) { p.clock = c } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Pipeline) { p.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option { return func(p *Pipeline) { p.runID = id } }

// New creates a Pipeline over an open store.
func New(cfg config.Config, db *store.DB, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		db:     db,
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		runID:  uuid.NewString(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RunID identifies this run in the ledger.
func (p *Pipeline) RunID() string { return p.runID }

// FirstRun creates every declared table and loads the reference tables.
// Reference files already in the ledger are not read again.
func (p *Pipeline) FirstRun(ctx context.Context) (*Report, error) {
	start := p.clock.Now()
	rep := &Report{RunID: p.runID, Mode: "first-run"}
	p.logger.Info("first run", "run_id", p.runID, "database", p.cfg.Database)

	if err := p.db.CreateSchema(ctx); err != nil {
		return rep, fmt.Errorf("create schema: %w", err)
	}

	runner := p.runner(nil)
	refs := p.cfg.Reference.ByName()
	for _, l := range loader.All() {
		if !l.Reference() {
			continue
		}
		ref, ok := refs[l.Name()]
		if !ok {
			continue
		}
		res, err := runner.Run(ctx, l, loader.Options{
			Path:     p.cfg.Resolve(ref.Path),
			Comma:    ref.Comma(),
			Encoding: ref.Encoding,
		})
		rep.add(res)
		if err != nil {
			return rep, err
		}
	}
	p.finish(start, "first_run")
	return rep, nil
}

// Update verifies the live schema, runs every enabled fact loader and
// rebuilds the summary table.
func (p *Pipeline) Update(ctx context.Context) (*Report, error) {
	start := p.clock.Now()
	rep := &Report{RunID: p.runID, Mode: "update"}
	p.logger.Info("update", "run_id", p.runID, "database", p.cfg.Database)

	if err := p.db.Verify(ctx, schema.Fact, schema.Reference, schema.Ledger); err != nil {
		return rep, fmt.Errorf("%w (run --first-run to create the schema)", err)
	}

	places, err := loader.LoadPlaces(ctx, p.db)
	if err != nil {
		return rep, fmt.Errorf("load places: %w", err)
	}
	if places.Len() == 0 {
		p.logger.Warn("places table is empty, English place names will be blank")
	}
	runner := p.runner(places)

	sources := p.cfg.Sources.ByName()
	for _, name := range FactOrder {
		src := sources[name]
		if !src.Enabled {
			p.logger.Debug("source disabled", "source", name)
			continue
		}
		l, err := loader.Get(name)
		if err != nil {
			return rep, err
		}
		res, err := runner.Run(ctx, l, loader.Options{Path: p.cfg.Resolve(src.Path), Tags: src.Tags})
		rep.add(res)
		if err != nil {
			return rep, err
		}
	}
	p.metrics.Stage("load", p.clock.Since(start).Seconds())

	agg, err := aggregate.New(p.db, aggregate.Options{
		ThresholdMetric: p.cfg.Summary.ThresholdMetric,
		Threshold:       p.cfg.Summary.Threshold,
		Rounding:        p.cfg.Summary.Rounding,
	}, p.logger, p.metrics)
	if err != nil {
		return rep, err
	}
	st, err := agg.RebuildAll(ctx)
	if err != nil {
		return rep, err
	}
	rep.Summary = &st
	p.finish(start, "update")
	return rep, nil
}

// Cleanup drops tables left behind by interrupted rebuilds.
func (p *Pipeline) Cleanup(ctx context.Context) (*Report, error) {
	start := p.clock.Now()
	rep := &Report{RunID: p.runID, Mode: "cleanup"}
	dropped, err := p.db.Cleanup(ctx)
	if err != nil {
		return rep, fmt.Errorf("cleanup: %w", err)
	}
	rep.Dropped = dropped
	p.logger.Info("cleanup done", "dropped", len(dropped))
	p.finish(start, "cleanup")
	return rep, nil
}

func (p *Pipeline) runner(places *loader.Places) *loader.Runner {
	env := &loader.Env{Registry: p.db.Registry(), Places: places, Logger: p.logger}
	return loader.NewRunner(p.db, ledger.New(p.clock, p.runID), env, p.metrics)
}

func (p *Pipeline) finish(start time.Time, stage string) {
	p.metrics.Stage(stage, p.clock.Since(start).Seconds())
	p.metrics.Finished(p.clock.Now())
	if err := p.metrics.WriteTextfile(p.cfg.MetricsTextfile); err != nil {
		p.logger.Warn("metrics textfile not written", "path", p.cfg.MetricsTextfile, "error", err)
	}
}
