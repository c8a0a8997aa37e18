package repository

import (
	"context"
	"time"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
)

// FindVehicleByChassis loads the oldest vehicle with the chassis number
func (r *Repository) FindVehicleByChassis(ctx context.Context, chassis string) (*entities.Vehicle, error) {
	start := time.Now()
	v, err := findBy[entities.Vehicle](ctx, r.db, "vehicle_chassis_no", chassis, ErrVehicleNotFound)
	r.observe("find", "vehicles", start, err)
	return v, repoError(err, "find_vehicle_by_chassis", "vehicles")
}

// UpsertVehicle creates v or updates the vehicle with the same chassis number.
// An existing certificate back-reference is kept.
func (r *Repository) UpsertVehicle(ctx context.Context, v *entities.Vehicle) (created bool, err error) {
	start := time.Now()
	incoming := *v
	created, err = upsertBy(ctx, r.db, v, "vehicle_chassis_no", v.VehicleChassisNo, func(e *entities.Vehicle) {
		e.Brand = incoming.Brand
		e.Model = incoming.Model
		e.VehicleNo = incoming.VehicleNo
		e.NewRegistration = incoming.NewRegistration
	})
	r.observe("upsert", "vehicles", start, err)
	return created, repoError(err, "upsert_vehicle", "vehicles")
}

// SetVehicleCertificate points a vehicle at its latest certificate
func (r *Repository) SetVehicleCertificate(ctx context.Context, vehicleID, certificateID int64) error {
	start := time.Now()
	err := r.db.WithContext(ctx).Model(&entities.Vehicle{}).
		Where("id = ?", vehicleID).
		Update("certificate_id", certificateID).Error
	r.observe("update", "vehicles", start, err)
	return repoError(err, "set_vehicle_certificate", "vehicles")
}
