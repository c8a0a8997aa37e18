package resolver

import (
	"context"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
)

// TechnicianRef is the technician reference of a certificate
type TechnicianRef struct {
	InstallerTechnicianID int64 // 0 is the "none" sentinel
	CalibratorUserID      int64
}

// Technician resolves the installer technician. With the sentinel 0 the
// technician is derived from the calibrating user, reusing any technician that
// already has the user's email.
func (r *Resolver) Technician(ctx context.Context, ref TechnicianRef) Result {
	if ref.InstallerTechnicianID != 0 {
		res := r.bySource(mapping.KindTechnicians, RoleTechnician, mapping.ID(ref.InstallerTechnicianID), ReasonTechnicianNotFound)
		if res.Status == StatusNotFound {
			// adopted by a technician derived from a calibrating user
			store := r.stores.Store(mapping.KindTechnicians)
			if entry, ok := store.LookupByAuxiliary("old_technician_id", ref.InstallerTechnicianID); ok {
				res = parseFound(RoleTechnician, entry.DestinationID, ReasonTechnicianNotFound)
			}
		}
		return r.record(res)
	}
	return r.record(r.technicianFromUser(ctx, ref.CalibratorUserID))
}

func (r *Resolver) technicianFromUser(ctx context.Context, legacyUserID int64) Result {
	user := r.User(legacyUserID)
	if user.Status != StatusFound {
		return NotFound(RoleTechnician, ReasonTechnicianNotFound)
	}
	profile, err := r.UserProfile(ctx, user.ID)
	switch {
	case errors.Is(err, repository.ErrUserNotFound):
		return NotFound(RoleTechnician, ReasonTechnicianNotFound)
	case err != nil:
		return Failed(RoleTechnician, ReasonTechnicianNotFound, err)
	}
	email := NormalizeEmail(profile.Email)
	if email == "" {
		return NotFound(RoleTechnician, ReasonTechnicianNotFound)
	}

	store := r.stores.Store(mapping.KindTechnicians)
	src := mapping.DerivedEmailPrefix + email

	// Held across lookup, create and mapping write
	unlock := store.LockKey(src)
	defer unlock()

	if entry, ok := store.LookupByAuxiliary("email", email); ok {
		return parseFound(RoleTechnician, entry.DestinationID, ReasonTechnicianNotFound)
	}

	aux := map[string]any{"email": email, "user_id": user.ID, "old_technician_id": 0}

	existing, err := r.repo.FindTechnicianByEmail(ctx, email)
	switch {
	case err == nil:
		return r.adopt(store, RoleTechnician, existing.ID, src, aux, ReasonTechnicianNotFound)
	case !errors.Is(err, repository.ErrTechnicianNotFound):
		return Failed(RoleTechnician, ReasonTechnicianNotFound, resolutionError(err, RoleTechnician, email))
	}

	phone := profile.Phone
	if phone == "" {
		phone = DefaultTechnicianPhone
	}
	tech := &entities.Technician{
		Name:      profile.Name,
		Email:     email,
		Phone:     phone,
		UserID:    user.ID,
		CreatedBy: r.actorID,
	}
	err = r.repo.WriteThrough(ctx, store, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertTechnician(ctx, tech); err != nil {
			return nil, err
		}
		return []mapping.Entry{{DestinationID: mapping.ID(tech.ID), SourceID: src, Aux: aux}}, nil
	})
	if err != nil {
		return Failed(RoleTechnician, ReasonTechnicianNotFound, resolutionError(err, RoleTechnician, email))
	}

	r.log.Info("technician created from calibrating user",
		logger.Int64("technician_id", tech.ID),
		logger.Int64("user_id", user.ID))
	return Created(RoleTechnician, tech.ID)
}

// VehicleRef is the vehicle reference of a certificate
type VehicleRef struct {
	FleetID      string
	Chassis      string
	Type         string // free text "brand model"
	Registration string
}

// Vehicle resolves the fleet reference, falling back to the chassis number.
// A record with no fleet mapping, no existing chassis and no vehicle type has
// no vehicle.
func (r *Resolver) Vehicle(ctx context.Context, ref VehicleRef) Result {
	if ref.FleetID != "" && ref.FleetID != "0" {
		if res := r.bySource(mapping.KindVehicles, RoleVehicle, ref.FleetID, ReasonVehicleFailed); res.Status != StatusNotFound {
			return r.record(res)
		}
	}
	return r.record(r.vehicleFromChassis(ctx, ref))
}

func (r *Resolver) vehicleFromChassis(ctx context.Context, ref VehicleRef) Result {
	chassis := NormalizeChassis(ref.Chassis)
	if chassis == "" {
		if ref.Type == "" {
			return Absent(RoleVehicle)
		}
		// nothing to deduplicate on
		return Failed(RoleVehicle, ReasonVehicleFailed, errors.NewStd("vehicle has a type but no chassis number"))
	}

	store := r.stores.Store(mapping.KindVehicles)
	src := mapping.DerivedChassisPrefix + chassis

	unlock := store.LockKey(src)
	defer unlock()

	if entry, ok := store.LookupByAuxiliary("chassis", chassis); ok {
		return parseFound(RoleVehicle, entry.DestinationID, ReasonVehicleFailed)
	}

	aux := map[string]any{"chassis": chassis}

	existing, err := r.repo.FindVehicleByChassis(ctx, chassis)
	switch {
	case err == nil:
		return r.adopt(store, RoleVehicle, existing.ID, src, aux, ReasonVehicleFailed)
	case !errors.Is(err, repository.ErrVehicleNotFound):
		return Failed(RoleVehicle, ReasonVehicleFailed, resolutionError(err, RoleVehicle, chassis))
	}

	if ref.Type == "" {
		return Absent(RoleVehicle)
	}

	brand, model := SplitBrandModel(ref.Type)
	vehicle := &entities.Vehicle{
		Brand:            brand,
		Model:            model,
		VehicleNo:        ref.Registration,
		VehicleChassisNo: chassis,
		NewRegistration:  false,
	}
	err = r.repo.WriteThrough(ctx, store, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertVehicle(ctx, vehicle); err != nil {
			return nil, err
		}
		return []mapping.Entry{{DestinationID: mapping.ID(vehicle.ID), SourceID: src, Aux: aux}}, nil
	})
	if err != nil {
		return Failed(RoleVehicle, ReasonVehicleFailed, resolutionError(err, RoleVehicle, chassis))
	}

	r.log.Debug("vehicle created from chassis", logger.Int64("vehicle_id", vehicle.ID))
	return Created(RoleVehicle, vehicle.ID)
}

// adopt registers an existing destination row found by natural key. A row that
// is already mapped under another source id is used as is.
func (r *Resolver) adopt(store *mapping.Store, role Role, id int64, src string, aux map[string]any, reason string) Result {
	dst := mapping.ID(id)
	if _, mapped := store.LookupByDestination(dst); mapped {
		return Found(role, id)
	}
	if _, err := store.Commit(mapping.Entry{DestinationID: dst, SourceID: src, Aux: aux}); err != nil {
		return Failed(role, reason, err)
	}
	return Found(role, id)
}

func parseFound(role Role, dst, reason string) Result {
	id, err := mapping.ParseID(dst)
	if err != nil {
		return Failed(role, reason, err)
	}
	return Found(role, id)
}
