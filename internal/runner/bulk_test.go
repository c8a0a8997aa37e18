package runner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/testutil"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// seededRun migrates the dependencies of five certificates through the pool
// and returns the runner and env for the certificate pass
func seededRun(t *testing.T, bulk bool) (*testutil.TestContext, *Runner, *migration.Env) {
	t.Helper()
	tc := testutil.SetupIntegrationTest(t)

	tc.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 1, Company: "Acme", Email: "office@acme.example"},
		&legacy.User{ID: 10, FullName: "Owner", Company: "Acme", Activstate: 1, Email: "owner@acme.example"},
		&legacy.Customer{ID: 5, Company: "Fleet Co", Email: "fleet@co.example", UserID: 10},
		&legacy.ECU{ID: 1, ECU: "ESL001", DealerID: 1},
		&legacy.ECU{ID: 2, ECU: "DBW002", DealerID: 1},
	)
	for i := int64(1); i <= 5; i++ {
		ecu := "ESL001"
		if i%2 == 0 {
			ecu = "DBW002"
		}
		tc.Seeder.MustInsert(t, testutil.NewCertificateBuilder(100+i, 5000+i).
			WithDealer(1).WithCustomer(5).WithECU(ecu).WithCalibrator(10).
			WithVehicle("Volvo FH16", "CH-"+mapping.ID(i)).Build())
	}

	env := &migration.Env{
		Stores: tc.Stores,
		Repo:   tc.Repo,
		Reader: tc.Reader,
		Resolver: resolver.New(tc.Stores, tc.Repo, resolver.Options{
			DefaultActorID: tc.DefaultActor.ID,
			Metrics:        tc.Metrics.Migration,
			Logger:         tc.Logger,
		}),
		Actor:    tc.DefaultActor,
		Settings: conf.MigrationSettings{BatchSize: 2, Country: conf.DefaultCountry, DealerRole: conf.DefaultDealerRole},
		Logger:   tc.Logger,
		Metrics:  tc.Metrics.Migration,
	}
	r := New(tc.Stores, Options{Workers: 3, Bulk: bulk, Logger: tc.Logger, Metrics: tc.Metrics.Migration})

	for _, kind := range []mapping.Kind{mapping.KindUsers, mapping.KindCustomers, mapping.KindDevices} {
		m, err := migration.New(kind, env)
		require.NoError(t, err)
		rep, err := r.Run(context.Background(), m)
		require.NoError(t, err)
		require.Zero(t, rep.Summary.Unmigrated(), "%s: %+v", kind, rep.Unmigrated)
	}
	return tc, r, env
}

func TestPoolMigratesCertificates(t *testing.T) {
	t.Parallel()
	tc, r, env := seededRun(t, false)

	m, err := migration.New(mapping.KindCertificates, env)
	require.NoError(t, err)
	rep, err := r.Run(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Summary.Migrated)
	assert.Equal(t, int64(5), tc.Count(t, &entities.Certificate{}))
	assert.Equal(t, int64(1), tc.Count(t, &entities.Technician{}), "one technician derived from the calibrating user")

	// the second run finds nothing left to do
	tc.ReopenStores(t)
	rep, err = New(tc.Stores, Options{Logger: tc.Logger}).Run(context.Background(), m)
	require.NoError(t, err)
	assert.Zero(t, rep.Summary.Total)
}

func TestBulkRunInsertsOneBatch(t *testing.T) {
	t.Parallel()
	tc, r, env := seededRun(t, true)

	m, err := migration.New(mapping.KindCertificates, env)
	require.NoError(t, err)
	rep, err := r.Run(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Summary.Migrated)

	store := tc.Stores.Store(mapping.KindCertificates)
	assert.Equal(t, 5, store.Len())
	for _, mig := range rep.Migrated {
		src, ok := store.LookupByDestination(mig.DestinationID)
		require.True(t, ok)
		assert.Equal(t, mig.SourceID, src)
	}
}

func TestBulkRunFallsBackToSingleInserts(t *testing.T) {
	t.Parallel()
	tc, r, env := seededRun(t, true)

	// serial 5003 already exists, so the batch violates the unique index
	serial := int64(5003)
	require.NoError(t, tc.Dest.Create(&entities.Certificate{SerialNumber: &serial, InstalledByID: 1, DealerID: 1, UserID: 1}).Error)

	m, err := migration.New(mapping.KindCertificates, env)
	require.NoError(t, err)
	rep, err := r.Run(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Summary.Migrated, "every record migrates through the fallback")
	assert.Equal(t, int64(5), tc.Count(t, &entities.Certificate{}))
	assert.Equal(t, 5, tc.Stores.Store(mapping.KindCertificates).Len())
}
