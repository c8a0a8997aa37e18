//go:build integration

package app

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/testutil"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/migration"
	"github.com/tphakala/certmigrate/internal/observability"
	"github.com/tphakala/certmigrate/internal/runner"
)

// startLegacyMySQL starts a MySQL container and returns source settings for it
func startLegacyMySQL(t *testing.T) conf.DatabaseSettings {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("legacy"),
		tcmysql.WithUsername("legacy"),
		tcmysql.WithPassword("legacy"),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "failed to start mysql container")

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err)

	return conf.DatabaseSettings{
		Type:         conf.DriverMySQL,
		Host:         host,
		Port:         port.Int(),
		Username:     "legacy",
		Password:     "legacy",
		Database:     "legacy",
		MaxOpenConns: 4,
	}
}

func TestMigrateAllFromMySQL(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	ctx := context.Background()
	log := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	settings := sqliteSettings(t)
	settings.Source = startLegacyMySQL(t)

	// legacy schema and rows
	src, err := datastore.Open(&settings.Source, datastore.SideSource, log)
	require.NoError(t, err)
	require.NoError(t, src.Initialize(legacy.Models()...))
	seeder := testutil.NewLegacySeeder(src.DB())
	seeder.MustInsert(t,
		&legacy.Dealer{ID: 1, Company: "Acme", Email: "office@acme.example"},
		&legacy.User{ID: 10, FullName: "Owner", Company: "Acme", Activstate: 1, Email: "owner@acme.example"},
		&legacy.Customer{ID: 5, Company: "Fleet Co", Email: "fleet@co.example", UserID: 10},
		&legacy.ECU{ID: 1, ECU: "ESL001", DealerID: 1},
	)
	for i := int64(1); i <= 3; i++ {
		seeder.MustInsert(t, testutil.NewCertificateBuilder(100+i, 7000+i).
			WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(10).
			WithVehicle("Volvo FH16", "CH-7").Build())
	}
	require.NoError(t, src.Close())

	// destination schema and default actor
	first, err := Open(ctx, settings, metrics, log)
	require.NoError(t, err)
	require.NoError(t, first.Destination.DB().Create(&entities.User{
		Name: "Admin", Email: settings.Migration.DefaultActorEmail, Password: "x",
	}).Error)
	first.Close()

	s, err := Open(ctx, settings, metrics, log)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.True(t, s.Source.IsMySQL())

	r := runner.New(s.Stores, runner.Options{Workers: 2, Logger: log, Metrics: metrics.Migration})
	for _, kind := range migration.Order {
		m, err := migration.New(kind, s.Env)
		require.NoError(t, err, kind)
		rep, err := r.Run(ctx, m)
		require.NoError(t, err, kind)
		assert.Zero(t, rep.Summary.Failed, "%s: %+v", kind, rep.Unmigrated)
	}

	var certs, vehicles int64
	require.NoError(t, s.Destination.DB().Model(&entities.Certificate{}).Count(&certs).Error)
	require.NoError(t, s.Destination.DB().Model(&entities.Vehicle{}).Count(&vehicles).Error)
	assert.Equal(t, int64(3), certs)
	assert.Equal(t, int64(1), vehicles, "certificates share one vehicle by chassis")
	require.NoError(t, s.Stores.Store("certificates").Verify())
}
