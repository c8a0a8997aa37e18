// Package runner drives a migrator over its candidates, either through a
// bounded worker pool or one record at a time under operator control.
package runner

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
	"github.com/tphakala/certmigrate/internal/report"
)

// ErrIncomplete is returned when a run was interrupted, aborted by the
// operator or stopped by a candidate read error. The report is still valid.
var ErrIncomplete = errors.NewStd("migration incomplete")

// DefaultWorkers is the pool size when none is configured
const DefaultWorkers = 4

// Options configures a Runner
type Options struct {
	Workers  int
	Mode     string // conf.ModeAutomated or conf.ModeInteractive
	Bulk     bool
	Prompter Prompter // required in interactive mode
	RunID    string
	Logger   logger.Logger
	Metrics  *metrics.MigrationMetrics
}

// Runner executes migrators and flushes the mapping stores afterwards
type Runner struct {
	stores *mapping.Set
	opts   Options
	log    logger.Logger
}

// New creates a runner over the stores of a run
func New(stores *mapping.Set, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Mode == "" {
		opts.Mode = conf.ModeAutomated
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	return &Runner{stores: stores, opts: opts, log: log.Module("runner")}
}

// Run migrates every candidate of m. Cancelling ctx stops the run at record
// boundaries: records already started finish, the stores are flushed and
// ErrIncomplete is returned together with the partial report.
func (r *Runner) Run(ctx context.Context, m migration.Migrator) (report.Report, error) {
	kind := m.Kind()
	rep := report.New(r.opts.RunID, kind)
	log := r.log.With(logger.String("kind", string(kind)), logger.String("mode", r.opts.Mode))

	var err error
	switch bm, bulk := m.(migration.BulkMigrator); {
	case r.opts.Mode == conf.ModeInteractive:
		err = r.runInteractive(ctx, m, rep)
	case r.opts.Bulk && bulk:
		log.Info("bulk insert enabled")
		err = r.runBulk(ctx, bm, rep)
	default:
		err = r.runPool(ctx, m, rep)
	}

	if flushErr := r.stores.PersistAll(); flushErr != nil {
		log.Error("failed to flush mapping stores", logger.Error(flushErr))
		err = errors.Join(err, flushErr)
	}
	if r.opts.Metrics != nil {
		r.opts.Metrics.SetMappingEntries(string(kind), r.stores.Store(kind).Len())
		r.opts.Metrics.MarkRunFinished()
	}

	if errors.Is(err, ErrIncomplete) {
		rep.MarkIncomplete()
	}
	result := rep.Result()
	log.Info("run finished",
		logger.Int("migrated", result.Summary.Migrated),
		logger.Int("unmigrated", result.Summary.Unmigrated()),
		logger.Bool("incomplete", result.Summary.Incomplete))
	return result, err
}

// runPool migrates candidates concurrently. Candidate reading stops as soon as
// ctx is cancelled; queued records still run on a detached context.
func (r *Runner) runPool(ctx context.Context, m migration.Migrator, rep *report.Reporter) error {
	var g errgroup.Group
	g.SetLimit(r.opts.Workers)

	detached := context.WithoutCancel(ctx)
	stopErr := r.each(ctx, m, func(rec migration.Record) {
		g.Go(func() error {
			r.workerStarted()
			defer r.workerFinished()
			rep.Add(m.Migrate(detached, rec))
			return nil
		})
	})
	_ = g.Wait()
	return stopErr
}

// runBulk prepares candidates in the pool and inserts every prepared record in
// one batch, falling back to single inserts when the batch fails
func (r *Runner) runBulk(ctx context.Context, m migration.BulkMigrator, rep *report.Reporter) error {
	type queued struct {
		seq int
		p   *migration.Prepared
	}
	var (
		g     errgroup.Group
		mu    sync.Mutex
		ready []queued
		seq   int
	)
	g.SetLimit(r.opts.Workers)

	detached := context.WithoutCancel(ctx)
	stopErr := r.each(ctx, m, func(rec migration.Record) {
		n := seq
		seq++
		g.Go(func() error {
			r.workerStarted()
			defer r.workerFinished()
			p, out := m.Prepare(detached, rec)
			if p == nil {
				rep.Add(out)
				return nil
			}
			mu.Lock()
			ready = append(ready, queued{seq: n, p: p})
			mu.Unlock()
			return nil
		})
	})
	_ = g.Wait()

	if len(ready) == 0 {
		return stopErr
	}
	slices.SortFunc(ready, func(a, b queued) int { return cmp.Compare(a.seq, b.seq) })
	batch := make([]*migration.Prepared, 0, len(ready))
	for _, q := range ready {
		batch = append(batch, q.p)
	}

	outcomes, err := m.InsertBatch(detached, batch)
	if err == nil {
		for _, out := range outcomes {
			rep.Add(out)
		}
		r.log.Info("bulk insert committed",
			logger.String("kind", string(m.Kind())),
			logger.Int("records", len(batch)))
		return stopErr
	}

	r.log.Warn("bulk insert failed, inserting records one by one",
		logger.String("kind", string(m.Kind())),
		logger.Int("records", len(batch)),
		logger.Error(err))
	if r.opts.Metrics != nil {
		r.opts.Metrics.RecordBulkFallback(string(m.Kind()))
	}
	for _, p := range batch {
		rep.Add(m.Insert(detached, p))
	}
	return stopErr
}

// runInteractive asks the prompter about every candidate before migrating it
func (r *Runner) runInteractive(ctx context.Context, m migration.Migrator, rep *report.Reporter) error {
	if r.opts.Prompter == nil {
		return errors.Newf("interactive mode requires a prompter").
			Component("runner").
			Category(errors.CategoryConfiguration).
			Build()
	}

	detached := context.WithoutCancel(ctx)
	var promptErr error
	exited := false
	stopErr := r.eachUntil(ctx, m, func(rec migration.Record) bool {
		decision, err := r.opts.Prompter.Prompt(ctx, m.Kind(), rec)
		if err != nil {
			promptErr = err
			return false
		}
		switch decision {
		case DecisionMigrate:
			out := m.Migrate(detached, rec)
			rep.Add(out)
			r.opts.Prompter.Show(out)
		case DecisionSkip:
			rep.SkipByOperator(rec)
		default:
			exited = true
			return false
		}
		return true
	})

	switch {
	case stopErr != nil:
		return stopErr
	case promptErr != nil:
		if ctx.Err() != nil {
			return errors.Join(ErrIncomplete, ctx.Err())
		}
		return errors.Join(ErrIncomplete, promptErr)
	case exited:
		r.log.Info("operator ended the run", logger.String("kind", string(m.Kind())))
		return ErrIncomplete
	}
	return nil
}

func (r *Runner) each(ctx context.Context, m migration.Migrator, fn func(migration.Record)) error {
	return r.eachUntil(ctx, m, func(rec migration.Record) bool {
		fn(rec)
		return true
	})
}

// eachUntil feeds candidates to fn until fn returns false, ctx is cancelled
// or reading fails. Interruptions and read errors return ErrIncomplete.
func (r *Runner) eachUntil(ctx context.Context, m migration.Migrator, fn func(migration.Record) bool) error {
	for rec, err := range m.Candidates(ctx) {
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			r.log.Error("failed to read candidates",
				logger.String("kind", string(m.Kind())),
				logger.Error(err))
			return errors.Join(ErrIncomplete, err)
		}
		if !fn(rec) {
			return nil
		}
	}
	if err := ctx.Err(); err != nil {
		r.log.Warn("run interrupted", logger.String("kind", string(m.Kind())))
		return errors.Join(ErrIncomplete, err)
	}
	return nil
}

func (r *Runner) workerStarted() {
	if r.opts.Metrics != nil {
		r.opts.Metrics.WorkerStarted()
	}
}

func (r *Runner) workerFinished() {
	if r.opts.Metrics != nil {
		r.opts.Metrics.WorkerFinished()
	}
}
