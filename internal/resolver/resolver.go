// Package resolver turns a legacy record's foreign references into destination
// ids by chaining lookups across mapping stores, creating technicians and
// vehicles when the rules allow it.
package resolver

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
)

// DefaultCacheTTL bounds how long destination rows read during resolution are reused
const DefaultCacheTTL = 10 * time.Minute

// DefaultTechnicianPhone is used when the calibrating user has no phone number
const DefaultTechnicianPhone = "0000000000"

// Options configures a Resolver
type Options struct {
	// DefaultActorID is recorded as creator of technicians made by fallback
	DefaultActorID int64
	CacheTTL       time.Duration
	Metrics        *metrics.MigrationMetrics
	Logger         logger.Logger
}

// Resolver resolves foreign references for one migration run. It is safe for
// concurrent use; fallback creation is serialized per natural key through the
// mapping store's key locks.
type Resolver struct {
	stores  *mapping.Set
	repo    *repository.Repository
	actorID int64
	cache   *cache.Cache
	metrics *metrics.MigrationMetrics
	log     logger.Logger
}

// New creates a resolver over the run's stores and destination repository
func New(stores *mapping.Set, repo *repository.Repository, opts Options) *Resolver {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelInfo, nil)
	}
	// no janitor goroutine: a run is short and expired items are dropped on read
	return &Resolver{
		stores:  stores,
		repo:    repo,
		actorID: opts.DefaultActorID,
		cache:   cache.New(ttl, 0),
		metrics: opts.Metrics,
		log:     log.Module("resolver"),
	}
}

// record publishes the resolution outcome and passes the result through
func (r *Resolver) record(res Result) Result {
	if r.metrics != nil {
		label := metrics.ResolutionFound
		switch {
		case res.Created:
			label = metrics.ResolutionCreated
		case res.Status == StatusNotFound:
			label = metrics.ResolutionNotFound
		case res.Status == StatusFailed:
			label = metrics.ResolutionFailed
		case res.Status == StatusAbsent:
			return res
		}
		r.metrics.RecordResolution(string(res.Role), label)
	}
	return res
}

// bySource looks a legacy id up in a kind's store
func (r *Resolver) bySource(kind mapping.Kind, role Role, src, reason string) Result {
	dst, ok := r.stores.Store(kind).LookupBySource(src)
	if !ok {
		return NotFound(role, reason)
	}
	id, err := mapping.ParseID(dst)
	if err != nil {
		return Failed(role, reason, err)
	}
	return Found(role, id)
}

// User maps a legacy user id to a destination user
func (r *Resolver) User(legacyUserID int64) Result {
	if legacyUserID == 0 {
		return r.record(NotFound(RoleUser, ReasonUserNotFound))
	}
	return r.record(r.bySource(mapping.KindUsers, RoleUser, mapping.ID(legacyUserID), ReasonUserNotFound))
}

// Customer maps a legacy customer id. Customers have no fallback rule.
func (r *Resolver) Customer(legacyCustomerID int64) Result {
	if legacyCustomerID == 0 {
		return r.record(NotFound(RoleCustomer, ReasonCustomerNotFound))
	}
	return r.record(r.bySource(mapping.KindCustomers, RoleCustomer, mapping.ID(legacyCustomerID), ReasonCustomerNotFound))
}

// Device maps an ECU serial and confirms the device row still exists.
// Devices have no fallback rule.
func (r *Resolver) Device(ctx context.Context, ecu string) Result {
	if ecu == "" {
		return r.record(NotFound(RoleDevice, ReasonDeviceNotFound))
	}
	res := r.bySource(mapping.KindDevices, RoleDevice, ecu, ReasonDeviceNotFound)
	if res.Status != StatusFound {
		return r.record(res)
	}
	if _, err := r.DeviceRow(ctx, res.ID); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			return r.record(NotFound(RoleDevice, ReasonDeviceNotFound))
		}
		return r.record(Failed(RoleDevice, ReasonDeviceNotFound, err))
	}
	return r.record(res)
}

// Dealer is the resolved billing dealer and acting user of a record
type Dealer struct {
	BillingID int64
	ActingID  int64
}

// Dealer finds the user migrated for a legacy dealer. A user with a parent acts
// on behalf of that parent, which is then the billing dealer.
func (r *Resolver) Dealer(ctx context.Context, legacyDealerID int64) (Dealer, Result) {
	if legacyDealerID == 0 {
		return Dealer{}, r.record(NotFound(RoleDealer, ReasonDealerNotFound))
	}
	entry, ok := r.stores.Store(mapping.KindUsers).LookupByAuxiliary("dealer_id", legacyDealerID)
	if !ok {
		return Dealer{}, r.record(NotFound(RoleDealer, ReasonDealerNotFound))
	}
	userID, err := mapping.ParseID(entry.DestinationID)
	if err != nil {
		return Dealer{}, r.record(Failed(RoleDealer, ReasonDealerNotFound, err))
	}

	user, err := r.UserProfile(ctx, userID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return Dealer{}, r.record(NotFound(RoleDealer, ReasonDealerNotFound))
	case err != nil:
		return Dealer{}, r.record(Failed(RoleDealer, ReasonDealerNotFound, err))
	}

	d := Dealer{BillingID: user.ID, ActingID: user.ID}
	if user.ParentID != nil && *user.ParentID != 0 {
		d.BillingID = *user.ParentID
	}
	return d, r.record(Found(RoleDealer, d.BillingID))
}

// UserProfile loads a destination user through the run cache
func (r *Resolver) UserProfile(ctx context.Context, id int64) (*entities.User, error) {
	return cached(r, "user", id, func() (*entities.User, error) {
		return r.repo.FindUserByID(ctx, id)
	})
}

// DeviceRow loads a destination device through the run cache
func (r *Resolver) DeviceRow(ctx context.Context, id int64) (*entities.Device, error) {
	return cached(r, "device", id, func() (*entities.Device, error) {
		return r.repo.FindDeviceByID(ctx, id)
	})
}

// cached reads through the resolver cache. Misses are not cached so a row
// created later in the run is seen. Cached rows are shared; callers must not
// modify them.
func cached[T any](r *Resolver, name string, id int64, load func() (*T, error)) (*T, error) {
	key := fmt.Sprintf("%s:%d", name, id)
	if v, ok := r.cache.Get(key); ok {
		if r.metrics != nil {
			r.metrics.RecordCacheLookup(name, true)
		}
		return v.(*T), nil
	}
	if r.metrics != nil {
		r.metrics.RecordCacheLookup(name, false)
	}
	row, err := load()
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(key, row)
	return row, nil
}

// resolutionError tags unexpected failures inside fallback rules
func resolutionError(err error, role Role, key string) error {
	return errors.New(err).
		Component("resolver").
		Category(errors.CategoryResolution).
		Context("role", string(role)).
		Context("natural_key", key).
		Build()
}
