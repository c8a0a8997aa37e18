package datastore

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
)

func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

func TestOpenSQLiteInitializesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dest.db")
	mgr, err := Open(&conf.DatabaseSettings{Type: conf.DriverSQLite, Path: path}, SideDestination, testLogger())
	require.NoError(t, err)
	defer func() { require.NoError(t, mgr.Close()) }()

	require.NoError(t, mgr.Initialize(entities.All()...))
	assert.False(t, mgr.IsMySQL())
	assert.Equal(t, path, mgr.Path())

	for _, model := range entities.All() {
		assert.True(t, mgr.DB().Migrator().HasTable(model), "%T table", model)
	}
	assert.Equal(t, 1, mgr.Stats().MaxOpenConnections, "sqlite uses a single connection")
}

func TestOpenRejectsBadSettings(t *testing.T) {
	t.Parallel()

	_, err := Open(&conf.DatabaseSettings{Type: "postgres"}, SideSource, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Open(&conf.DatabaseSettings{Type: conf.DriverSQLite}, SideSource, testLogger())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestPublishStatsStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	mgr, err := Open(&conf.DatabaseSettings{Type: conf.DriverSQLite, Path: filepath.Join(t.TempDir(), "s.db")}, SideSource, testLogger())
	require.NoError(t, err)

	dm, err := metrics.NewDatastoreMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PublishStats(ctx, dm, map[string]Manager{SideSource: mgr})
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishStats did not return after cancel")
	}
	assert.Positive(t, testutil.CollectAndCount(dm))

	// closing the pool also stops database/sql's background opener
	require.NoError(t, mgr.Close())
}
