// Package app wires the configured components of a migration run together.
package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
	"github.com/tphakala/certmigrate/internal/observability"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// Session holds the open databases, stores and shared migration environment
// of one run. Close releases them.
type Session struct {
	RunID       string
	Settings    *conf.Settings
	Source      datastore.Manager
	Destination datastore.Manager
	Stores      *mapping.Set
	Metrics     *observability.Metrics
	Env         *migration.Env
	Logger      logger.Logger
}

// OpenStores opens the mapping stores described by settings
func OpenStores(settings *conf.MappingSettings, metrics *observability.Metrics) (*mapping.Set, error) {
	opts := []mapping.Option{mapping.WithFormat(settings.Format)}
	if metrics != nil {
		opts = append(opts, mapping.WithObserver(func(kind mapping.Kind, elapsed time.Duration, err error) {
			metrics.Migration.ObservePersist(string(kind), elapsed, err)
		}))
	}
	return mapping.OpenSet(settings.Dir, opts...)
}

// Open connects both databases, loads the mapping stores and resolves the
// default actor. The actor is only required when a requested kind needs it;
// a missing actor is reported by migration.New.
func Open(ctx context.Context, settings *conf.Settings, metrics *observability.Metrics, log logger.Logger) (*Session, error) {
	s := &Session{
		RunID:    uuid.NewString(),
		Settings: settings,
		Metrics:  metrics,
		Logger:   log,
	}

	var err error
	s.Source, err = datastore.Open(&settings.Source, datastore.SideSource, log)
	if err != nil {
		return nil, err
	}
	s.Destination, err = datastore.Open(&settings.Destination, datastore.SideDestination, log)
	if err != nil {
		s.Close()
		return nil, err
	}
	if settings.Destination.AutoMigrate {
		if err := s.Destination.Initialize(entities.All()...); err != nil {
			s.Close()
			return nil, err
		}
	}

	s.Stores, err = OpenStores(&settings.Mapping, metrics)
	if err != nil {
		s.Close()
		return nil, err
	}

	repo := repository.New(s.Destination.DB(), metrics.Datastore)
	actor, err := migration.ResolveDefaultActor(ctx, repo, settings.Migration.DefaultActorEmail)
	if err != nil {
		if !errors.Is(err, migration.ErrPreconditionFatal) {
			s.Close()
			return nil, err
		}
		log.Warn("default actor not found, kinds attributed to it will not run",
			logger.String("email", settings.Migration.DefaultActorEmail))
	}

	var actorID int64
	if actor != nil {
		actorID = actor.ID
	}
	s.Env = &migration.Env{
		Stores: s.Stores,
		Repo:   repo,
		Reader: legacy.NewReader(s.Source.DB(), settings.Migration.BatchSize),
		Resolver: resolver.New(s.Stores, repo, resolver.Options{
			DefaultActorID: actorID,
			CacheTTL:       settings.Migration.CacheTTL,
			Metrics:        metrics.Migration,
			Logger:         log,
		}),
		Actor:    actor,
		Settings: settings.Migration,
		Logger:   log,
		Metrics:  metrics.Migration,
	}

	log.Info("migration session opened",
		logger.String("run_id", s.RunID),
		logger.String("source", s.Source.Path()),
		logger.String("destination", s.Destination.Path()),
		logger.String("mapping_dir", settings.Mapping.Dir))
	return s, nil
}

// Managers returns the database managers keyed by side, for pool statistics
func (s *Session) Managers() map[string]datastore.Manager {
	return map[string]datastore.Manager{
		datastore.SideSource:      s.Source,
		datastore.SideDestination: s.Destination,
	}
}

// Close closes both databases. The stores are flushed by the runner.
func (s *Session) Close() {
	for side, mgr := range s.Managers() {
		if mgr == nil {
			continue
		}
		if err := mgr.Close(); err != nil {
			s.Logger.Warn("failed to close database", logger.String("side", side), logger.Error(err))
		}
	}
}
