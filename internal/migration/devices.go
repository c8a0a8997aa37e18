package migration

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/mapping"
)

// CatalogEntry is the device type, model and approval code of an ECU family
type CatalogEntry struct {
	Prefix       string
	DeviceType   string
	DeviceModel  string
	ApprovalCode string
}

// VariantName is the variant a model gets when the family defines none
func (c CatalogEntry) VariantName() string {
	return strings.ReplaceAll(strings.ToLower(c.DeviceModel), " ", "_")
}

// lockKey serializes creation of the type, model and variant rows. Models and
// variants hang off the type, so families sharing a type share the key.
func (c CatalogEntry) lockKey() string {
	return "catalog:" + c.DeviceType
}

// Catalog maps ECU serial prefixes to their device family
var Catalog = []CatalogEntry{
	{"S100", "Electronic Type Speed Limiter", "Autograde Safedrive", "24-01-22785/Q24-01-048935/NB0002"},
	{"DBW", "Electronic Type Speed Limiter", "Fleetmax DBW", "24-01-22784/Q24-01-048943/NB0002"},
	{"DBV", "Fuel Type Speed Limiter", "Fleetmax DBV", "24-01-22784/Q24-01-048943/NB0002"},
	{"ESL", "Electronic Type Speed Limiter Limiter", "Resolute Dynamics ESL", "24-01-22783/Q24-01-048944/NB0002"},
	{"FSL", "Fuel Type Speed Limiter Limiter", "Resolute Dynamics FSL", "24-01-22783/Q24-01-048944/NB0002"},
	{"ETM", "Engine Temperature Monitor", "Resolute Dynamics ThermoPro", "24-01-22783/Q24-01-048944/NB0002"},
	{"BAS", "Brake Alert System", "Resolute Dynamics TailSafe", "24-01-22783/Q24-01-048944/NB0002"},
	{"SAS", "Speed Alert System", "Resolute Dynamics SAS", "24-01-22783/Q24-01-048944/NB0002"},
}

// LookupCatalog finds the family of an ECU serial by prefix
func LookupCatalog(ecu string) (CatalogEntry, bool) {
	for _, c := range Catalog {
		if strings.HasPrefix(ecu, c.Prefix) {
			return c, true
		}
	}
	return CatalogEntry{}, false
}

type deviceMigrator struct{ base }

func (m *deviceMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return candidates(ctx, &m.base, m.env.Reader.ECUs(ctx), func(e legacy.ECU) Record {
		ecu := strings.TrimSpace(e.ECU)
		return Record{SourceID: ecu, Label: ecu, Data: e}
	})
}

// Migrate upserts a device by ECU serial, creating its catalog rows on demand
func (m *deviceMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	src, ok := rec.Data.(legacy.ECU)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}
	ecu := strings.TrimSpace(src.ECU)
	family, known := LookupCatalog(ecu)
	if ecu == "" || !known {
		return t.block(DependencyMissing(RoleDeviceModel, ReasonDeviceModel))
	}

	var dealerID *int64
	var legacyDealer int64
	if src.DealerID != 0 {
		if dealer, res := m.env.Resolver.Dealer(ctx, src.DealerID); res.OK() {
			dealerID = &dealer.BillingID
			legacyDealer = src.DealerID
		}
	}

	// Catalog rows are created inside the device transaction. Holding the
	// type lock until commit lets the next writer's snapshot see them.
	unlockCatalog := m.store.LockKey(family.lockKey())
	defer unlockCatalog()
	unlock := m.store.LockKey(ecu)
	defer unlock()

	if m.store.Contains(ecu) {
		return t.alreadyMigrated()
	}

	t.creating()
	actor := m.env.Actor.ID
	device := &entities.Device{
		EcuNumber: ecu,
		Remarks:   src.Remarks,
		Lock:      src.Lock,
		DealerID:  dealerID,
		UserID:    actor,
	}
	if added := legacy.UnixTime(src.AddDate); added != nil {
		device.CreatedAt = *added
	}
	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		deviceType, err := tx.GetOrCreateDeviceType(ctx, family.DeviceType, actor)
		if err != nil {
			return nil, err
		}
		model, err := tx.GetOrCreateDeviceModel(ctx, family.DeviceModel, deviceType.ID, family.ApprovalCode, actor)
		if err != nil {
			return nil, err
		}
		variant, err := tx.GetOrCreateDeviceVariant(ctx, family.VariantName(), family.DeviceModel, model.ID, actor)
		if err != nil {
			return nil, err
		}
		device.DeviceTypeID = deviceType.ID
		device.DeviceModelID = model.ID
		device.DeviceVariantID = &variant.ID

		if _, err := tx.UpsertDevice(ctx, device); err != nil {
			return nil, err
		}
		return []mapping.Entry{{
			DestinationID: mapping.ID(device.ID),
			SourceID:      ecu,
			Aux:           map[string]any{"ecu": ecu, "dealer_id": legacyDealer},
		}}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(device.ID, map[string]any{
		"ecu":          ecu,
		"device_type":  family.DeviceType,
		"device_model": family.DeviceModel,
		"dealer_id":    derefOrNil(dealerID),
	})
}

func derefOrNil(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
