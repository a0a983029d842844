package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/hazyhaar/ncov-pipeline/pkg/schema"
	"github.com/hazyhaar/ncov-pipeline/pkg/store"
)

// Result summarizes one loader run.
type Result struct {
	Loader      string
	Source      string
	Missing     bool
	Discovered  int
	AlreadyDone int
	Processed   int
	Failed      int
	Rows        int
	RowsSkipped int
	Duplicates  int
	Failures    []*FileError
}

// Runner drives loaders against one database and ledger.
type Runner struct {
	db      *store.DB
	ledger  *ledger.Ledger
	env     *Env
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRunner wires a runner. m may be nil.
func NewRunner(db *store.DB, l *ledger.Ledger, env *Env, m *metrics.Metrics) *Runner {
	if env == nil {
		env = &Env{}
	}
	if env.Registry == nil {
		env.Registry = db.Registry()
	}
	return &Runner{db: db, ledger: l, env: env, metrics: m, logger: env.logger()}
}

// Run discovers the loader's files, skips those already in the ledger and
// commits each remaining file in its own transaction together with its
// ledger entry. File failures are collected in the result; only a schema
// inconsistency or a cancelled context is returned as an error.
func (r *Runner) Run(ctx context.Context, l Loader, opts Options) (*Result, error) {
	res := &Result{Loader: l.Name(), Source: l.Source()}
	log := r.logger.With("source", l.Source())

	files, err := l.Discover(opts)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("source not found, skipping", "path", opts.Path)
		res.Missing = true
		return res, nil
	}
	if err != nil {
		res.Failed++
		res.Failures = append(res.Failures, &FileError{Source: l.Source(), File: opts.Path, Err: err})
		log.Error("discover failed", "path", opts.Path, "error", err)
		return res, nil
	}
	res.Discovered = len(files)

	done, err := r.ledger.Processed(ctx, r.db, l.Source())
	if err != nil {
		return res, fmt.Errorf("%s: %w", l.Name(), err)
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if done[f.ID] {
			res.AlreadyDone++
			r.metrics.File(l.Source(), metrics.OutcomeSkipped)
			log.Debug("already processed", "file", f.ID)
			continue
		}

		stats, err := r.loadFile(ctx, l, f, opts)
		if errors.Is(err, errAlreadyProcessed) {
			res.AlreadyDone++
			r.metrics.File(l.Source(), metrics.OutcomeSkipped)
			log.Debug("already processed", "file", f.ID)
			continue
		}
		if err != nil {
			var pe *schema.PipelineError
			if errors.As(err, &pe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return res, err
			}
			fe := &FileError{Source: l.Source(), File: f.Name, Err: err}
			res.Failed++
			res.Failures = append(res.Failures, fe)
			r.metrics.File(l.Source(), metrics.OutcomeFailed)
			log.Error("file rolled back", "file", f.Name, "error", err)
			continue
		}

		res.Processed++
		res.Rows += stats.Rows
		res.RowsSkipped += stats.Skipped
		res.Duplicates += stats.Duplicates
		r.metrics.File(l.Source(), metrics.OutcomeProcessed)
		r.metrics.Rows(l.Source(), stats.Rows, stats.Skipped, len(stats.Unknown))
		if len(stats.Unknown) > 0 {
			log.Warn("dropped undeclared fields", "file", f.Name, "fields", stats.UnknownFields())
		}
		log.Debug("file committed", "file", f.ID, "rows", stats.Rows, "skipped", stats.Skipped, "duplicates", stats.Duplicates)
	}
	return res, nil
}

// errAlreadyProcessed rolls back a file whose ledger entry appeared after
// the run's initial filter, e.g. a second file discovered under the same
// identifier.
var errAlreadyProcessed = errors.New("already processed")

// loadFile re-checks the ledger inside the file's transaction, so the check
// and the entry it guards commit together.
func (r *Runner) loadFile(ctx context.Context, l Loader, f File, opts Options) (Stats, error) {
	var stats Stats
	err := r.db.WithTx(ctx, func(tx *store.Tx) error {
		done, err := r.ledger.IsProcessed(ctx, tx, f.ID, l.Source())
		if err != nil {
			return err
		}
		if done {
			return errAlreadyProcessed
		}
		stats, err = l.Load(ctx, tx, f, opts, r.env)
		if err != nil {
			return err
		}
		return r.ledger.MarkProcessed(ctx, tx, f.ID, l.Source(), stats.Rows)
	})
	return stats, err
}
