package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/errors"
)

// getOrCreate returns the row matching where, creating row when absent. A
// concurrent creator that wins the unique index race is resolved by re-reading.
func getOrCreate[T any](ctx context.Context, db *gorm.DB, row *T, query string, args ...any) error {
	err := db.WithContext(ctx).Where(query, args...).First(row).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	createErr := db.WithContext(ctx).Create(row).Error
	if createErr == nil {
		return nil
	}
	if findErr := db.WithContext(ctx).Where(query, args...).First(row).Error; findErr != nil {
		return createErr
	}
	return nil
}

// GetOrCreateDeviceType retrieves a device type by name or creates it
func (r *Repository) GetOrCreateDeviceType(ctx context.Context, name string, userID int64) (*entities.DeviceType, error) {
	start := time.Now()
	t := entities.DeviceType{Name: name, Enabled: true, UserID: userID}
	err := getOrCreate(ctx, r.db, &t, "name = ?", name)
	r.observe("get_or_create", "device_types", start, err)
	if err != nil {
		return nil, repoError(err, "get_or_create_device_type", "device_types")
	}
	return &t, nil
}

// GetOrCreateDeviceModel retrieves a device model by name within a type or creates it
func (r *Repository) GetOrCreateDeviceModel(ctx context.Context, name string, typeID int64, approvalCode string, userID int64) (*entities.DeviceModel, error) {
	start := time.Now()
	m := entities.DeviceModel{Name: name, DeviceTypeID: typeID, ApprovalCode: approvalCode, Enabled: true, UserID: userID}
	err := getOrCreate(ctx, r.db, &m, "name = ? AND device_type_id = ?", name, typeID)
	r.observe("get_or_create", "device_models", start, err)
	if err != nil {
		return nil, repoError(err, "get_or_create_device_model", "device_models")
	}
	return &m, nil
}

// GetOrCreateDeviceVariant retrieves a variant by name within a model or creates it
func (r *Repository) GetOrCreateDeviceVariant(ctx context.Context, name, description string, modelID, userID int64) (*entities.DeviceVariant, error) {
	start := time.Now()
	v := entities.DeviceVariant{Name: name, Description: description, DeviceModelID: modelID, Enabled: true, UserID: userID}
	err := getOrCreate(ctx, r.db, &v, "name = ? AND device_model_id = ?", name, modelID)
	r.observe("get_or_create", "device_variants", start, err)
	if err != nil {
		return nil, repoError(err, "get_or_create_device_variant", "device_variants")
	}
	return &v, nil
}

// FindDeviceByID loads a device
func (r *Repository) FindDeviceByID(ctx context.Context, id int64) (*entities.Device, error) {
	start := time.Now()
	d, err := findBy[entities.Device](ctx, r.db, "id", id, ErrDeviceNotFound)
	r.observe("find", "devices", start, err)
	return d, repoError(err, "find_device", "devices")
}

// UpsertDevice creates d or updates the device with the same ECU number
func (r *Repository) UpsertDevice(ctx context.Context, d *entities.Device) (created bool, err error) {
	start := time.Now()
	incoming := *d
	created, err = upsertBy(ctx, r.db, d, "ecu_number", d.EcuNumber, func(e *entities.Device) {
		e.DeviceTypeID = incoming.DeviceTypeID
		e.DeviceModelID = incoming.DeviceModelID
		e.DeviceVariantID = incoming.DeviceVariantID
		e.Remarks = incoming.Remarks
		e.Lock = incoming.Lock
		e.DealerID = incoming.DealerID
	})
	r.observe("upsert", "devices", start, err)
	return created, repoError(err, "upsert_device", "devices")
}
