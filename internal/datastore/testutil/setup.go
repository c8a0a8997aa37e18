package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/observability"
)

// DefaultActorEmail is the email of the actor seeded by SetupIntegrationTest
const DefaultActorEmail = "admin@example.com"

// TestContext contains all dependencies needed for migration tests.
type TestContext struct {
	// Temporary directory for databases and mapping files
	TempDir string

	// Legacy side
	Source datastore.Manager
	Legacy *gorm.DB
	Reader *legacy.Reader
	Seeder *LegacySeeder

	// Destination side
	Destination datastore.Manager
	Dest        *gorm.DB
	Repo        *repository.Repository

	Stores  *mapping.Set
	Metrics *observability.Metrics
	Logger  logger.Logger

	// DefaultActor is a destination user created for attribution
	DefaultActor *entities.User
}

// SetupIntegrationTest creates legacy and destination databases in a temp dir,
// an empty mapping store set and a default actor. Cleanup is registered with
// t.Cleanup().
func SetupIntegrationTest(t *testing.T) *TestContext {
	t.Helper()

	tmpDir := t.TempDir()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)

	m, err := observability.NewMetrics()
	require.NoError(t, err, "failed to create metrics")

	source := openSQLite(t, filepath.Join(tmpDir, "legacy.db"), datastore.SideSource, log)
	require.NoError(t, source.Initialize(legacy.Models()...), "failed to create legacy schema")

	dest := openSQLite(t, filepath.Join(tmpDir, "destination.db"), datastore.SideDestination, log)
	require.NoError(t, dest.Initialize(entities.All()...), "failed to create destination schema")

	stores, err := mapping.OpenSet(filepath.Join(tmpDir, "mappings"),
		mapping.WithObserver(func(kind mapping.Kind, elapsed time.Duration, err error) {
			m.Migration.ObservePersist(string(kind), elapsed, err)
		}))
	require.NoError(t, err, "failed to open mapping stores")

	ctx := &TestContext{
		TempDir:     tmpDir,
		Source:      source,
		Legacy:      source.DB(),
		Reader:      legacy.NewReader(source.DB(), 2),
		Seeder:      NewLegacySeeder(source.DB()),
		Destination: dest,
		Dest:        dest.DB(),
		Repo:        repository.New(dest.DB(), m.Datastore),
		Stores:      stores,
		Metrics:     m,
		Logger:      log,
	}

	actor := &entities.User{Name: "Administrator", Email: DefaultActorEmail, Password: "x", Status: entities.UserStatusActive}
	require.NoError(t, ctx.Dest.Create(actor).Error, "failed to seed default actor")
	ctx.DefaultActor = actor

	return ctx
}

// ReopenStores drops the in-memory stores and loads them again from disk,
// the way a second invocation of the tool would.
func (ctx *TestContext) ReopenStores(t *testing.T) {
	t.Helper()
	stores, err := mapping.OpenSet(ctx.Stores.Dir())
	require.NoError(t, err, "failed to reopen mapping stores")
	ctx.Stores = stores
}

// Count returns the row count of a destination model's table
func (ctx *TestContext) Count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, ctx.Dest.Model(model).Count(&n).Error)
	return n
}

func openSQLite(t *testing.T, path, side string, log logger.Logger) datastore.Manager {
	t.Helper()
	settings := &conf.DatabaseSettings{Type: conf.DriverSQLite, Path: path}
	mgr, err := datastore.Open(settings, side, log)
	require.NoError(t, err, "failed to open %s database", side)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}
