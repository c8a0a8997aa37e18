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
	"github.com/tphakala/certmigrate/internal/resolver"
)

type vehicleMigrator struct{ base }

func (m *vehicleMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return candidates(ctx, &m.base, m.env.Reader.Fleets(ctx), func(f legacy.Fleet) Record {
		return Record{SourceID: f.FleetID, Label: labelOf(f.VehNo, f.Chassis), Data: f}
	})
}

// Migrate upserts a fleet vehicle by chassis number, under the same chassis
// key lock as the resolver's vehicle fallback.
func (m *vehicleMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	t := m.begin(rec)
	fleet, ok := rec.Data.(legacy.Fleet)
	if !ok {
		return t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}
	chassis := resolver.NormalizeChassis(fleet.Chassis)
	if chassis == "" {
		return t.fail(WriteError(ReasonMissingChassis, fmt.Errorf("fleet %s has no chassis number", fleet.FleetID)))
	}

	unlock := m.store.LockKey(mapping.DerivedChassisPrefix + chassis)
	defer unlock()

	if m.store.Contains(rec.SourceID) {
		return t.alreadyMigrated()
	}

	brand, model := strings.TrimSpace(fleet.Brand), strings.TrimSpace(fleet.Model)
	switch {
	case brand == "" && model == "":
		brand, model = "Unknown", "Unknown"
	case brand == "":
		brand, model = resolver.SplitBrandModel(model)
	case model == "":
		model = brand
	}

	t.creating()
	vehicle := &entities.Vehicle{
		Brand:            brand,
		Model:            model,
		VehicleNo:        strings.TrimSpace(fleet.VehNo),
		VehicleChassisNo: chassis,
	}
	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertVehicle(ctx, vehicle); err != nil {
			return nil, err
		}
		return []mapping.Entry{{
			DestinationID: mapping.ID(vehicle.ID),
			SourceID:      rec.SourceID,
			Aux:           map[string]any{"chassis": chassis},
		}}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(vehicle.ID, map[string]any{
		"brand":      vehicle.Brand,
		"model":      vehicle.Model,
		"vehicle_no": vehicle.VehicleNo,
		"chassis":    chassis,
	})
}
