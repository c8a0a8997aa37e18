// Package migration holds one migrator per entity kind. A migrator enumerates
// the legacy records of its kind that have no mapping entry yet and migrates
// them one at a time: resolve foreign references, write the destination row
// and commit the mapping entry in a single unit.
package migration

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// Record is one migration candidate
type Record struct {
	SourceID string
	Label    string // human readable identification for reports and prompts
	Data     any    // the legacy row
}

// Outcome is the terminal result of migrating one record
type Outcome struct {
	Kind          mapping.Kind
	Record        Record
	State         State
	DestinationID string
	Fields        map[string]any // values written, for the migrated report
	Errors        []*RecordError
	Duration      time.Duration
}

// Migrated reports whether the record now has a mapping entry
func (o Outcome) Migrated() bool { return o.State == StateMigrated }

// Reasons returns the operator facing reasons of every error
func (o Outcome) Reasons() []string {
	reasons := make([]string, 0, len(o.Errors))
	for _, e := range o.Errors {
		reasons = append(reasons, e.Reason)
	}
	return reasons
}

// Err joins the record errors, nil when migrated
func (o Outcome) Err() error {
	errs := make([]error, 0, len(o.Errors))
	for _, e := range o.Errors {
		errs = append(errs, e)
	}
	return errors.Join(errs...)
}

// Migrator migrates the records of one entity kind
type Migrator interface {
	Kind() mapping.Kind
	// Candidates yields the source records without a mapping entry, computed
	// against the store contents when iteration starts.
	Candidates(ctx context.Context) iter.Seq2[Record, error]
	// Migrate runs one record to a terminal state. It never panics on bad data
	// and reports every failure in the outcome.
	Migrate(ctx context.Context, rec Record) Outcome
}

// Prepared is a record that resolved completely and only needs its write
type Prepared struct {
	Record  Record
	started time.Time
	payload any
}

// BulkMigrator is a migrator whose writes can be batched. Prepare resolves a
// record; when it returns nil the outcome is terminal. Insert writes one
// prepared record; InsertBatch writes all of them in one transaction and fails
// as a whole, after which the caller falls back to Insert.
type BulkMigrator interface {
	Migrator
	Prepare(ctx context.Context, rec Record) (*Prepared, Outcome)
	Insert(ctx context.Context, p *Prepared) Outcome
	InsertBatch(ctx context.Context, batch []*Prepared) ([]Outcome, error)
}

// Env is shared by the migrators of one run
type Env struct {
	Stores   *mapping.Set
	Repo     *repository.Repository
	Reader   *legacy.Reader
	Resolver *resolver.Resolver
	Actor    *entities.User // default actor, required by some kinds
	Settings conf.MigrationSettings
	Logger   logger.Logger
	Metrics  *metrics.MigrationMetrics
	Now      func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) country() string {
	if e.Settings.Country != "" {
		return e.Settings.Country
	}
	return conf.DefaultCountry
}

// Order is the dependency order of the kinds
var Order = []mapping.Kind{
	mapping.KindUsers,
	mapping.KindTechnicians,
	mapping.KindCustomers,
	mapping.KindVehicles,
	mapping.KindDevices,
	mapping.KindCertificates,
	mapping.KindSalesPeople,
}

// NeedsActor reports whether a kind attributes rows to the default actor
func NeedsActor(kind mapping.Kind) bool {
	switch kind {
	case mapping.KindTechnicians, mapping.KindDevices, mapping.KindCertificates, mapping.KindSalesPeople:
		return true
	default:
		return false
	}
}

// New creates the migrator of kind. It fails with a precondition error when
// the kind needs the default actor and env has none.
func New(kind mapping.Kind, env *Env) (Migrator, error) {
	if env.Logger == nil {
		env.Logger = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	if NeedsActor(kind) && env.Actor == nil {
		return nil, preconditionError(ReasonDefaultActor, fmt.Errorf("%s migration requires a default actor", kind))
	}

	base := base{env: env, kind: kind, store: env.Stores.Store(kind), log: env.Logger.Module("migration").With(logger.String("kind", string(kind)))}
	switch kind {
	case mapping.KindUsers:
		return &userMigrator{base: base}, nil
	case mapping.KindTechnicians:
		return &technicianMigrator{base: base}, nil
	case mapping.KindCustomers:
		return &customerMigrator{base: base}, nil
	case mapping.KindVehicles:
		return &vehicleMigrator{base: base}, nil
	case mapping.KindDevices:
		return &deviceMigrator{base: base}, nil
	case mapping.KindCertificates:
		return &certificateMigrator{base: base}, nil
	case mapping.KindSalesPeople:
		return &salesPersonMigrator{base: base}, nil
	}
	return nil, errors.Newf("no migrator for kind %q", kind).
		Component("migration").
		Category(errors.CategoryValidation).
		Build()
}

// ResolveDefaultActor loads the user new rows are attributed to. Its absence
// is fatal for the run.
func ResolveDefaultActor(ctx context.Context, repo *repository.Repository, email string) (*entities.User, error) {
	user, err := repo.FindUserByEmail(ctx, resolver.NormalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, preconditionError(ReasonDefaultActor, fmt.Errorf("no destination user with email %q", email))
	}
	if err != nil {
		return nil, preconditionError(ReasonDefaultActor, err)
	}
	return user, nil
}

// base carries what every migrator needs
type base struct {
	env   *Env
	kind  mapping.Kind
	store *mapping.Store
	log   logger.Logger
}

func (b *base) Kind() mapping.Kind { return b.kind }

// candidates filters a legacy iterator down to records without a mapping entry
func candidates[T any](ctx context.Context, b *base, rows iter.Seq2[T, error], toRecord func(T) Record) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		mapped := b.store.SourceIDs()
		for row, err := range rows {
			if err != nil {
				yield(Record{}, err)
				return
			}
			if ctx.Err() != nil {
				return
			}
			rec := toRecord(row)
			if _, done := mapped[rec.SourceID]; done {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// tracker walks one record through its states and publishes the outcome
type tracker struct {
	b     *base
	out   Outcome
	start time.Time
}

func (b *base) begin(rec Record) *tracker {
	return b.resume(rec, b.env.now())
}

func (b *base) resume(rec Record, started time.Time) *tracker {
	return &tracker{
		b:     b,
		start: started,
		out:   Outcome{Kind: b.kind, Record: rec, State: StateResolving},
	}
}

func (t *tracker) advance(next State) {
	if !t.out.State.CanTransition(next) {
		t.b.log.Warn("invalid record state transition",
			logger.String("source_id", t.out.Record.SourceID),
			logger.String("from", t.out.State.String()),
			logger.String("to", next.String()))
	}
	t.out.State = next
}

// alreadyMigrated ends a record whose source id was mapped meanwhile
func (t *tracker) alreadyMigrated() Outcome {
	t.out.Errors = append(t.out.Errors, AlreadyMigrated())
	t.advance(StateSkipped)
	return t.finish()
}

func (t *tracker) block(errs ...*RecordError) Outcome {
	t.out.Errors = append(t.out.Errors, errs...)
	t.advance(StateBlocked)
	return t.finish()
}

// creating moves a resolved record into its write
func (t *tracker) creating() {
	t.advance(StateReady)
	t.advance(StateCreating)
}

// fail ends a record with a write error. Failures before the write, such as an
// unreadable source row, pass through the write states.
func (t *tracker) fail(err *RecordError) Outcome {
	if t.out.State == StateResolving {
		t.creating()
	}
	t.out.Errors = append(t.out.Errors, err)
	t.advance(StateFailed)
	if err.Err != nil {
		t.b.log.Error("record write failed",
			logger.Error(recordFailure(err.Err, t.b.kind, t.out.Record.SourceID)),
			logger.String("source_id", t.out.Record.SourceID),
			logger.String("error_kind", string(err.Kind)))
	}
	return t.finish()
}

func (t *tracker) done(destinationID int64, fields map[string]any) Outcome {
	t.out.DestinationID = mapping.ID(destinationID)
	t.out.Fields = fields
	t.advance(StateMigrated)
	return t.finish()
}

func (t *tracker) finish() Outcome {
	t.out.Duration = t.b.env.now().Sub(t.start)

	if m := t.b.env.Metrics; m != nil {
		kind := string(t.b.kind)
		m.RecordOperation(kind, outcomeLabel(t.out.State))
		m.RecordDuration(kind, t.out.Duration.Seconds())
		for _, e := range t.out.Errors {
			m.RecordError(kind, string(e.Kind))
		}
		if t.out.State == StateMigrated {
			m.SetMappingEntries(kind, t.b.store.Len())
		}
	}

	if t.out.State == StateMigrated {
		t.b.log.Debug("record migrated",
			logger.String("source_id", t.out.Record.SourceID),
			logger.String("destination_id", t.out.DestinationID),
			logger.Duration("duration", t.out.Duration))
	} else {
		t.b.log.Info("record not migrated",
			logger.String("source_id", t.out.Record.SourceID),
			logger.String("state", t.out.State.String()),
			logger.Strings("reasons", t.out.Reasons()))
	}
	return t.out
}

func outcomeLabel(s State) string {
	switch s {
	case StateMigrated:
		return metrics.OutcomeMigrated
	case StateSkipped:
		return metrics.OutcomeSkipped
	case StateBlocked:
		return metrics.OutcomeBlocked
	default:
		return metrics.OutcomeFailed
	}
}

// writeThrough writes a row and its mapping entry as one unit
func (b *base) writeThrough(ctx context.Context, fn func(tx *repository.Repository) ([]mapping.Entry, error)) error {
	return b.env.Repo.WriteThrough(ctx, b.store, fn)
}
