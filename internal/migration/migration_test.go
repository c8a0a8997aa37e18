package migration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/testutil"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	*testutil.TestContext
	env *Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tc := testutil.SetupIntegrationTest(t)
	f := &fixture{TestContext: tc}
	f.rebuildEnv()
	return f
}

// rebuildEnv wires a fresh resolver and env over the current stores
func (f *fixture) rebuildEnv() {
	f.env = &Env{
		Stores: f.Stores,
		Repo:   f.Repo,
		Reader: f.Reader,
		Resolver: resolver.New(f.Stores, f.Repo, resolver.Options{
			DefaultActorID: f.DefaultActor.ID,
			Metrics:        f.Metrics.Migration,
			Logger:         f.Logger,
		}),
		Actor: f.DefaultActor,
		Settings: conf.MigrationSettings{
			Country:    conf.DefaultCountry,
			DealerRole: conf.DefaultDealerRole,
			BatchSize:  2,
		},
		Logger:  f.Logger,
		Metrics: f.Metrics.Migration,
		Now:     func() time.Time { return fixedNow },
	}
}

func (f *fixture) migrator(t *testing.T, kind mapping.Kind) Migrator {
	t.Helper()
	m, err := New(kind, f.env)
	require.NoError(t, err)
	return m
}

// migrateAll runs every candidate of kind and returns the outcomes
func (f *fixture) migrateAll(t *testing.T, kind mapping.Kind) []Outcome {
	t.Helper()
	ctx := context.Background()
	m := f.migrator(t, kind)
	var outcomes []Outcome
	for rec, err := range m.Candidates(ctx) {
		require.NoError(t, err)
		outcomes = append(outcomes, m.Migrate(ctx, rec))
	}
	return outcomes
}

func (f *fixture) candidates(t *testing.T, kind mapping.Kind) []Record {
	t.Helper()
	var recs []Record
	for rec, err := range f.migrator(t, kind).Candidates(context.Background()) {
		require.NoError(t, err)
		recs = append(recs, rec)
	}
	return recs
}

// seedDealerWithUser seeds a dealer whose company has one legacy user and
// migrates it
func (f *fixture) seedDealerWithUser(t *testing.T, dealerID, userID int64, email string) {
	t.Helper()
	company := "Dealer " + mapping.ID(dealerID)
	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: dealerID, Company: company, Email: "office" + mapping.ID(dealerID) + "@dealer.example"},
		&legacy.User{ID: userID, FullName: "Owner " + mapping.ID(userID), Company: company, Activstate: 1, Email: email, Mobile: "0501112233"},
	)
}

func requireMigrated(t *testing.T, out Outcome) {
	t.Helper()
	require.Equal(t, StateMigrated, out.State, "reasons: %v err: %v", out.Reasons(), out.Err())
}

func TestUsersMigrateCompanyUsersUnderParent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 1, Company: "Acme Motors", Email: "office@acme.example"},
		&legacy.User{ID: 10, FullName: "Owner", Company: "Acme Motors LLC", Activstate: 1, Email: " Owner@Acme.example- ", Mobile: "0501"},
		&legacy.User{ID: 11, FullName: "Staff", Company: "Acme Motors", Activstate: 0, Email: "staff@acme.example"},
		&legacy.User{ID: 12, FullName: "Other", Company: "Other Co", Activstate: 1, Email: "other@other.example"},
	)

	outcomes := f.migrateAll(t, mapping.KindUsers)
	require.Len(t, outcomes, 1)
	requireMigrated(t, outcomes[0])

	var owner, staff entities.User
	require.NoError(t, f.Dest.Where("email = ?", "owner@acme.example").First(&owner).Error)
	require.NoError(t, f.Dest.Where("email = ?", "staff@acme.example").First(&staff).Error)

	assert.Nil(t, owner.ParentID)
	require.NotNil(t, staff.ParentID)
	assert.Equal(t, owner.ID, *staff.ParentID)
	assert.Equal(t, entities.UserStatusActive, owner.Status)
	assert.Equal(t, entities.UserStatusBlocked, staff.Status)
	require.NotNil(t, owner.Username)
	assert.Equal(t, "owner", *owner.Username)
	assert.Equal(t, conf.DefaultCountry, owner.Country)

	users := f.Stores.Store(mapping.KindUsers)
	entry, ok := users.LookupByAuxiliary("dealer_id", 1)
	require.True(t, ok)
	assert.Equal(t, mapping.ID(owner.ID), entry.DestinationID)
	assert.Equal(t, "10", entry.SourceID)
	assert.False(t, users.Contains("12"))

	var assignments int64
	require.NoError(t, f.Dest.Model(&entities.ModelHasRole{}).Where("model_id = ?", owner.ID).Count(&assignments).Error)
	assert.Equal(t, int64(1), assignments)
}

func TestUsersCreateDealerAccountWithoutCompanyUsers(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 2, Company: "Solo Trading", Email: "Solo@Trading.example", Phone: "0409"},
		// an existing admin account takes the natural username
		&legacy.Dealer{ID: 3, Company: "Admin Garage", Email: "admin@garage.example"},
	)
	admin := "admin"
	require.NoError(t, f.Dest.Model(f.DefaultActor).Update("username", admin).Error)

	outcomes := f.migrateAll(t, mapping.KindUsers)
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		requireMigrated(t, out)
	}

	var solo entities.User
	require.NoError(t, f.Dest.Where("email = ?", "solo@trading.example").First(&solo).Error)
	assert.Equal(t, "Solo Trading", solo.Name)
	assert.Equal(t, "0409", solo.Mobile)
	assert.Equal(t, entities.UserStatusActive, solo.Status)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(solo.Password), []byte("temp_2_1714564800")))

	var garage entities.User
	require.NoError(t, f.Dest.Where("email = ?", "admin@garage.example").First(&garage).Error)
	require.NotNil(t, garage.Username)
	assert.Equal(t, "admin1", *garage.Username)

	users := f.Stores.Store(mapping.KindUsers)
	assert.True(t, users.Contains(mapping.DerivedDealerPrefix+"2"))
	entry, ok := users.LookupByAuxiliary("dealer_id", 2)
	require.True(t, ok)
	old, _ := entry.AuxInt64("old_user_id")
	assert.Zero(t, old)
}

func TestUsersAreIdempotentAcrossRuns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	recs := f.candidates(t, mapping.KindUsers)
	require.Len(t, recs, 1)

	m := f.migrator(t, mapping.KindUsers)
	requireMigrated(t, m.Migrate(ctx, recs[0]))

	// the same record delivered twice is skipped, not duplicated
	again := m.Migrate(ctx, recs[0])
	assert.Equal(t, StateSkipped, again.State)
	assert.ErrorIs(t, again.Err(), ErrAlreadyMigrated)

	f.ReopenStores(t)
	f.rebuildEnv()
	assert.Empty(t, f.candidates(t, mapping.KindUsers))
	assert.Equal(t, int64(2), f.Count(t, &entities.User{}), "default actor plus one migrated user")
}

func TestUsersSharedEmailLeavesOtherDealerUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.seedDealerWithUser(t, 1, 10, "shared@x.example")
	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 2, Company: "Dealer 2", Email: "office2@dealer.example"},
		&legacy.User{ID: 20, FullName: "Second", Company: "Dealer 2", Activstate: 1, Email: "b1@two.example"},
		&legacy.User{ID: 21, FullName: "Shared", Company: "Dealer 2", Activstate: 0, Email: "shared@x.example"},
	)

	for _, out := range f.migrateAll(t, mapping.KindUsers) {
		requireMigrated(t, out)
	}

	var shared, second entities.User
	require.NoError(t, f.Dest.Where("email = ?", "shared@x.example").First(&shared).Error)
	require.NoError(t, f.Dest.Where("email = ?", "b1@two.example").First(&second).Error)
	assert.Nil(t, shared.ParentID, "first dealer account keeps no parent")
	assert.Equal(t, entities.UserStatusActive, shared.Status, "profile is not overwritten")

	users := f.Stores.Store(mapping.KindUsers)
	assert.True(t, users.Contains("10"))
	assert.False(t, users.Contains("21"))

	d, res := f.env.Resolver.Dealer(ctx, 1)
	require.Equal(t, resolver.StatusFound, res.Status)
	assert.Equal(t, resolver.Dealer{BillingID: shared.ID, ActingID: shared.ID}, d)

	d, res = f.env.Resolver.Dealer(ctx, 2)
	require.Equal(t, resolver.StatusFound, res.Status)
	assert.Equal(t, second.ID, d.BillingID)
}

func TestCustomerNeedsMigratedOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	f.Seeder.MustInsert(t,
		&legacy.Customer{ID: 5, Company: "Fleet Co", Email: "Fleet@Co.example", UserID: 10, Address: "Dubai"},
		&legacy.Customer{ID: 6, Company: "Orphan Co", Email: "orphan@co.example", UserID: 99},
	)
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])

	outcomes := f.migrateAll(t, mapping.KindCustomers)
	require.Len(t, outcomes, 2)
	requireMigrated(t, outcomes[0])
	assert.Equal(t, "fleet@co.example", outcomes[0].Fields["email"])

	assert.Equal(t, StateBlocked, outcomes[1].State)
	assert.Equal(t, []string{resolver.ReasonUserNotFound}, outcomes[1].Reasons())
	assert.ErrorIs(t, outcomes[1].Err(), ErrDependencyMissing)
	assert.Equal(t, int64(1), f.Count(t, &entities.Customer{}))
}

func TestTechniciansFallBackToDefaultOwner(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	f.Seeder.MustInsert(t,
		&legacy.Technician{ID: 7, Name: "Ali", Email: "ALI@tech.example", Phone: "", UserID: 10},
		&legacy.Technician{ID: 8, Name: "Omar", Email: "omar@tech.example", Phone: "0555", UserID: 404},
	)
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])

	outcomes := f.migrateAll(t, mapping.KindTechnicians)
	require.Len(t, outcomes, 2)
	for _, out := range outcomes {
		requireMigrated(t, out)
	}

	var ali, omar entities.Technician
	require.NoError(t, f.Dest.Where("email = ?", "ali@tech.example").First(&ali).Error)
	require.NoError(t, f.Dest.Where("email = ?", "omar@tech.example").First(&omar).Error)
	assert.Equal(t, resolver.DefaultTechnicianPhone, ali.Phone)
	assert.NotEqual(t, f.DefaultActor.ID, ali.UserID)
	assert.Equal(t, f.DefaultActor.ID, omar.UserID, "unmapped owner falls back to the default actor")
	assert.Equal(t, f.DefaultActor.ID, omar.CreatedBy)

	// the resolver's fallback reuses migrated technicians by email
	entry, ok := f.Stores.Store(mapping.KindTechnicians).LookupByAuxiliary("email", "ali@tech.example")
	require.True(t, ok)
	assert.Equal(t, mapping.ID(ali.ID), entry.DestinationID)
}

func TestTechnicianReusesDerivedTechnician(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])

	// a certificate run derived a technician from calibrating user 10 first
	derived := f.env.Resolver.Technician(ctx, resolver.TechnicianRef{CalibratorUserID: 10})
	require.Equal(t, resolver.StatusFound, derived.Status)
	require.True(t, derived.Created)

	f.Seeder.MustInsert(t, &legacy.Technician{ID: 9, Name: "Owner", Email: "Owner@One.example", UserID: 10})
	outcomes := f.migrateAll(t, mapping.KindTechnicians)
	require.Len(t, outcomes, 1)
	requireMigrated(t, outcomes[0])
	assert.Equal(t, mapping.ID(derived.ID), outcomes[0].DestinationID)
	assert.Equal(t, int64(1), f.Count(t, &entities.Technician{}))

	res := f.env.Resolver.Technician(ctx, resolver.TechnicianRef{InstallerTechnicianID: 9})
	require.Equal(t, resolver.StatusFound, res.Status)
	assert.Equal(t, derived.ID, res.ID)

	techs := f.Stores.Store(mapping.KindTechnicians)
	require.NoError(t, techs.Verify())
	assert.True(t, techs.Contains(mapping.DerivedEmailPrefix+"owner@one.example"), "pairing is kept")
	assert.Empty(t, f.candidates(t, mapping.KindTechnicians))
}

func TestVehiclesUpsertByChassis(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.Seeder.MustInsert(t,
		&legacy.Fleet{FleetID: "F1", VehNo: "D 1", Model: "FH16", Brand: "Volvo", Chassis: " ch-9 "},
		&legacy.Fleet{FleetID: "F2", VehNo: "D 2", Model: "Scania R500", Chassis: "CH-10"},
		&legacy.Fleet{FleetID: "F3", VehNo: "D 3", Model: "Actros", Brand: "Mercedes"},
	)

	outcomes := f.migrateAll(t, mapping.KindVehicles)
	require.Len(t, outcomes, 3)
	requireMigrated(t, outcomes[0])
	requireMigrated(t, outcomes[1])
	assert.Equal(t, StateFailed, outcomes[2].State)
	assert.Equal(t, []string{ReasonMissingChassis}, outcomes[2].Reasons())

	var v entities.Vehicle
	require.NoError(t, f.Dest.Where("vehicle_chassis_no = ?", "CH-10").First(&v).Error)
	assert.Equal(t, "Scania", v.Brand)
	assert.Equal(t, "R500", v.Model)

	vehicles := f.Stores.Store(mapping.KindVehicles)
	_, ok := vehicles.LookupByAuxiliary("chassis", "CH-9")
	assert.True(t, ok)
	assert.True(t, vehicles.Contains("F1"))
}

func TestDevicesBuildCatalogOnce(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	f.Seeder.MustInsert(t,
		&legacy.ECU{ID: 1, ECU: "ESL001", DealerID: 1, Remarks: "first"},
		&legacy.ECU{ID: 2, ECU: "ESL002", DealerID: 55},
		&legacy.ECU{ID: 3, ECU: "XYZ001"},
	)
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])

	outcomes := f.migrateAll(t, mapping.KindDevices)
	require.Len(t, outcomes, 3)
	requireMigrated(t, outcomes[0])
	requireMigrated(t, outcomes[1])
	assert.Equal(t, StateBlocked, outcomes[2].State)
	assert.Equal(t, []string{ReasonDeviceModel}, outcomes[2].Reasons())

	assert.Equal(t, int64(1), f.Count(t, &entities.DeviceType{}))
	assert.Equal(t, int64(1), f.Count(t, &entities.DeviceModel{}))
	assert.Equal(t, int64(1), f.Count(t, &entities.DeviceVariant{}))

	var first, second entities.Device
	require.NoError(t, f.Dest.Where("ecu_number = ?", "ESL001").First(&first).Error)
	require.NoError(t, f.Dest.Where("ecu_number = ?", "ESL002").First(&second).Error)
	assert.NotNil(t, first.DealerID, "dealer resolved through the users store")
	assert.Nil(t, second.DealerID, "unknown dealer leaves the device unassigned")
	assert.Equal(t, "first", first.Remarks)
}

func TestDevicesWaitForCatalogLock(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	f.Seeder.MustInsert(t, &legacy.ECU{ID: 1, ECU: "DBW001"}, &legacy.ECU{ID: 2, ECU: "S100002"})
	recs := f.candidates(t, mapping.KindDevices)
	require.Len(t, recs, 2)

	dbw, _ := LookupCatalog("DBW001")
	s100, _ := LookupCatalog("S100002")
	require.Equal(t, dbw.lockKey(), s100.lockKey(), "families sharing a device type share the lock")

	m := f.migrator(t, mapping.KindDevices)
	unlock := f.Stores.Store(mapping.KindDevices).LockKey(dbw.lockKey())
	done := make(chan Outcome, 1)
	go func() { done <- m.Migrate(ctx, recs[0]) }()

	select {
	case <-done:
		t.Fatal("device written while another writer holds its catalog")
	case <-time.After(50 * time.Millisecond):
	}
	unlock()

	select {
	case out := <-done:
		requireMigrated(t, out)
	case <-time.After(5 * time.Second):
		t.Fatal("device write did not resume after the catalog was released")
	}
	requireMigrated(t, m.Migrate(ctx, recs[1]))
	assert.Equal(t, int64(1), f.Count(t, &entities.DeviceType{}))
	assert.Equal(t, int64(2), f.Count(t, &entities.DeviceModel{}))
}

// certificateWorld seeds everything a certificate needs: dealer 1 with user
// 10, calibrating user 20 in the same company, customer 5 and device ESL001
func certificateWorld(t *testing.T, f *fixture) {
	t.Helper()
	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 1, Company: "Acme", Email: "office@acme.example"},
		&legacy.User{ID: 10, FullName: "Owner", Company: "Acme", Activstate: 1, Email: "owner@acme.example"},
		&legacy.User{ID: 20, FullName: "Calibrator", Company: "Acme", Activstate: 1, Email: "cal@acme.example", Mobile: "0509"},
		&legacy.Customer{ID: 5, Company: "Fleet Co", Email: "fleet@co.example", UserID: 10},
		&legacy.ECU{ID: 1, ECU: "ESL001", DealerID: 1},
	)
	for _, kind := range []mapping.Kind{mapping.KindUsers, mapping.KindCustomers, mapping.KindDevices} {
		for _, out := range f.migrateAll(t, kind) {
			requireMigrated(t, out)
		}
	}
}

func TestCertificateMigratesWithFallbackDependencies(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	certificateWorld(t, f)

	f.Seeder.MustInsert(t, testutil.NewCertificateBuilder(100, 5001).
		WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).
		WithVehicle("Volvo FH16", "ch-77").WithRenewals(1).Build())

	outcomes := f.migrateAll(t, mapping.KindCertificates)
	require.Len(t, outcomes, 1)
	requireMigrated(t, outcomes[0])

	var cert entities.Certificate
	require.NoError(t, f.Dest.First(&cert).Error)
	assert.Equal(t, entities.CertificateStatusRenewed, cert.Status)
	assert.Equal(t, 80, cert.SpeedLimit)
	assert.Equal(t, int64(1200), cert.KmReading)
	assert.Equal(t, conf.DefaultCountry, cert.Country)
	require.NotNil(t, cert.SerialNumber)
	assert.Equal(t, int64(5001), *cert.SerialNumber)
	assert.False(t, cert.Cancelled)

	var tech entities.Technician
	require.NoError(t, f.Dest.First(&tech, cert.InstalledByID).Error)
	assert.Equal(t, "cal@acme.example", tech.Email)
	assert.Equal(t, "0509", tech.Phone)

	require.NotNil(t, cert.VehicleID)
	var vehicle entities.Vehicle
	require.NoError(t, f.Dest.First(&vehicle, *cert.VehicleID).Error)
	assert.Equal(t, "CH-77", vehicle.VehicleChassisNo)
	require.NotNil(t, vehicle.CertificateID)
	assert.Equal(t, cert.ID, *vehicle.CertificateID, "vehicle points back at its certificate")

	entry, ok := f.Stores.Store(mapping.KindCertificates).Get(mapping.ID(cert.ID))
	require.True(t, ok)
	assert.Equal(t, "100", entry.SourceID)
	serial, ok := entry.AuxInt64("serial_number")
	require.True(t, ok)
	assert.Equal(t, int64(5001), serial)
}

func TestCertificateWithoutVehicleDataHasNoVehicle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	certificateWorld(t, f)

	f.Seeder.MustInsert(t, testutil.NewCertificateBuilder(101, 5002).
		WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).
		WithVehicle("", "").WithCancellation(1700000000).Build())

	outcomes := f.migrateAll(t, mapping.KindCertificates)
	require.Len(t, outcomes, 1)
	requireMigrated(t, outcomes[0])

	var cert entities.Certificate
	require.NoError(t, f.Dest.First(&cert).Error)
	assert.Nil(t, cert.VehicleID)
	assert.Equal(t, entities.CertificateStatusCancelled, cert.Status)
	assert.True(t, cert.Cancelled)
	require.NotNil(t, cert.CancelledByID)
	assert.Equal(t, f.DefaultActor.ID, *cert.CancelledByID)
	assert.Zero(t, f.Count(t, &entities.Vehicle{}))
}

func TestCertificateBlockedReportsEveryMissingDependency(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])
	f.Seeder.MustInsert(t, testutil.NewCertificateBuilder(100, 5001).
		WithDealer(1).WithCustomer(5).WithECU("ESL404").WithCalibrator(10).Build())

	outcomes := f.migrateAll(t, mapping.KindCertificates)
	require.Len(t, outcomes, 1)
	out := outcomes[0]
	assert.Equal(t, StateBlocked, out.State)
	assert.Equal(t, []string{resolver.ReasonCustomerNotFound, resolver.ReasonDeviceNotFound}, out.Reasons())
	assert.Zero(t, f.Count(t, &entities.Certificate{}))
	assert.Zero(t, f.Count(t, &entities.Technician{}), "no fallback creation for a blocked record")
	assert.Zero(t, f.Count(t, &entities.Vehicle{}))
	assert.Zero(t, f.Stores.Store(mapping.KindCertificates).Len())

	// the record stays a candidate for the next run
	assert.Len(t, f.candidates(t, mapping.KindCertificates), 1)
}

type failingPersister struct{}

func (failingPersister) Persist(string, []byte) error { return errors.NewStd("disk full") }

func TestCertificateWriteFailureAppliesNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	certificateWorld(t, f)
	ctx := context.Background()

	// the same stores, reloaded behind a persister that always fails
	stores, err := mapping.OpenSet(f.Stores.Dir(), mapping.WithPersister(failingPersister{}))
	require.NoError(t, err)
	f.Stores = stores
	f.rebuildEnv()

	// a referenced technician and no vehicle data keep the resolver from writing
	tech := &entities.Technician{Name: "T", Email: "t@example.com", Phone: "1", UserID: 1, CreatedBy: 1}
	require.NoError(t, f.Dest.Create(tech).Error)
	require.NoError(t, stores.Store(mapping.KindTechnicians).Put(mapping.ID(tech.ID), "9", nil))

	f.Seeder.MustInsert(t, testutil.NewCertificateBuilder(100, 5001).
		WithDealer(1).WithCustomer(5).WithECU("ESL001").WithInstallerTechnician(9).
		WithVehicle("", "").Build())

	m := f.migrator(t, mapping.KindCertificates)
	var out Outcome
	for rec, err := range m.Candidates(ctx) {
		require.NoError(t, err)
		out = m.Migrate(ctx, rec)
	}
	assert.Equal(t, StateFailed, out.State)
	assert.ErrorIs(t, out.Err(), ErrWrite)
	assert.Zero(t, f.Count(t, &entities.Certificate{}), "row rolled back with the failed mapping write")
	assert.False(t, stores.Store(mapping.KindCertificates).Contains("100"))
}

func TestCertificateBulkInsert(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	certificateWorld(t, f)
	ctx := context.Background()

	f.Seeder.MustInsert(t,
		testutil.NewCertificateBuilder(100, 5001).WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).WithVehicle("Volvo FH16", "CH-1").Build(),
		testutil.NewCertificateBuilder(101, 5002).WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).WithVehicle("Volvo FH16", "CH-1").Build(),
		testutil.NewCertificateBuilder(102, 0).WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).WithVehicle("", "").Build(),
	)

	m, ok := f.migrator(t, mapping.KindCertificates).(BulkMigrator)
	require.True(t, ok)

	var batch []*Prepared
	for rec, err := range m.Candidates(ctx) {
		require.NoError(t, err)
		p, out := m.Prepare(ctx, rec)
		require.NotNil(t, p, "reasons: %v", out.Reasons())
		assert.Equal(t, StateReady, out.State)
		batch = append(batch, p)
	}
	require.Len(t, batch, 3)

	outcomes, err := m.InsertBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	store := f.Stores.Store(mapping.KindCertificates)
	for i, out := range outcomes {
		requireMigrated(t, out)
		assert.Equal(t, batch[i].Record.SourceID, out.Record.SourceID)
		src, ok := store.LookupByDestination(out.DestinationID)
		require.True(t, ok)
		assert.Equal(t, out.Record.SourceID, src, "generated ids are mapped back by position")
	}
	assert.Equal(t, int64(3), f.Count(t, &entities.Certificate{}))
	assert.Equal(t, int64(1), f.Count(t, &entities.Vehicle{}), "both records share the chassis")
}

func TestCertificateBulkFailureFallsBackToSingleInserts(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	certificateWorld(t, f)
	ctx := context.Background()

	// a destination certificate already holds serial 5001
	serial := int64(5001)
	existing := &entities.Certificate{SerialNumber: &serial, InstalledByID: 1, DealerID: 1, UserID: 1}
	require.NoError(t, f.Dest.Create(existing).Error)

	f.Seeder.MustInsert(t,
		testutil.NewCertificateBuilder(100, 5001).WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).WithVehicle("", "").Build(),
		testutil.NewCertificateBuilder(101, 5002).WithDealer(1).WithCustomer(5).WithECU("ESL001").WithCalibrator(20).WithVehicle("", "").Build(),
	)

	m := f.migrator(t, mapping.KindCertificates).(BulkMigrator)
	var batch []*Prepared
	for rec, err := range m.Candidates(ctx) {
		require.NoError(t, err)
		p, _ := m.Prepare(ctx, rec)
		require.NotNil(t, p)
		batch = append(batch, p)
	}

	_, err := m.InsertBatch(ctx, batch)
	require.Error(t, err)
	assert.Equal(t, int64(1), f.Count(t, &entities.Certificate{}), "failed batch rolled back")
	assert.Zero(t, f.Stores.Store(mapping.KindCertificates).Len())

	for _, p := range batch {
		requireMigrated(t, m.Insert(ctx, p))
	}
	assert.Equal(t, int64(2), f.Count(t, &entities.Certificate{}), "serial 5001 updated in place")

	dst, ok := f.Stores.Store(mapping.KindCertificates).LookupBySource("100")
	require.True(t, ok)
	assert.Equal(t, mapping.ID(existing.ID), dst)
}

func TestSalesPeopleBillTheLatestDealer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.Seeder.MustInsert(t,
		&legacy.Dealer{ID: 1, Company: "First", Email: "first@dealer.example"},
		&legacy.Dealer{ID: 2, Company: "Second", Email: "second@dealer.example"},
		&legacy.User{ID: 30, FullName: "Sam Sales", Company: "Independent", Activstate: 1, Email: "sam@sales.example", Mobile: "0507"},
		&legacy.Dealer{ID: 3, Company: "Independent", Email: "ind@dealer.example"},
		&legacy.Sale{ID: 1, UserID: 30, DealerID: 1, DealDate: testutil.Unix(1600000000)},
		&legacy.Sale{ID: 2, UserID: 30, DealerID: 2, DealDate: testutil.Unix(1700000000)},
		&legacy.Sale{ID: 3, UserID: 31, DealerID: 2, DealDate: testutil.Unix(1700000000)},
	)
	for _, out := range f.migrateAll(t, mapping.KindUsers) {
		requireMigrated(t, out)
	}

	outcomes := f.migrateAll(t, mapping.KindSalesPeople)
	require.Len(t, outcomes, 2)
	requireMigrated(t, outcomes[0])
	assert.Equal(t, StateBlocked, outcomes[1].State, "sales user 31 was never migrated")
	assert.Equal(t, []string{resolver.ReasonUserNotFound}, outcomes[1].Reasons())

	var second entities.User
	require.NoError(t, f.Dest.Where("email = ?", "second@dealer.example").First(&second).Error)

	var person entities.SalesPerson
	require.NoError(t, f.Dest.First(&person).Error)
	assert.Equal(t, "sam@sales.example", person.Email)
	assert.Equal(t, "0507", person.Phone)
	assert.Equal(t, second.ID, person.UserID)
	assert.Equal(t, entities.SalesPersonStatusActive, person.Status)
	assert.Equal(t, int64(1600000000), person.CreatedAt.Unix(), "created at the first deal")
}

func TestNewRequiresDefaultActor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.env.Actor = nil

	_, err := New(mapping.KindCertificates, f.env)
	require.ErrorIs(t, err, ErrPreconditionFatal)

	_, err = New(mapping.KindUsers, f.env)
	require.NoError(t, err, "users need no default actor")

	_, err = New(mapping.Kind("unknown"), f.env)
	require.Error(t, err)
}

func TestResolveDefaultActor(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	actor, err := ResolveDefaultActor(ctx, f.Repo, " Admin@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, f.DefaultActor.ID, actor.ID)

	_, err = ResolveDefaultActor(ctx, f.Repo, "nobody@example.com")
	require.ErrorIs(t, err, ErrPreconditionFatal)
}

func TestMappingFilesAreWrittenPerKind(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.seedDealerWithUser(t, 1, 10, "owner@one.example")
	requireMigrated(t, f.migrateAll(t, mapping.KindUsers)[0])

	assert.FileExists(t, filepath.Join(f.Stores.Dir(), "users_mapping.json"))
}
