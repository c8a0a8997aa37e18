package entities

import "time"

// DeviceType is the top level of the device catalog
type DeviceType struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null;uniqueIndex"`
	Enabled   bool   `gorm:"not null;default:true"`
	UserID    int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (DeviceType) TableName() string { return "device_types" }

// DeviceModel belongs to a device type and carries the type approval code
type DeviceModel struct {
	ID           int64  `gorm:"primaryKey"`
	Name         string `gorm:"size:255;not null;uniqueIndex:idx_device_model_identity"`
	DeviceTypeID int64  `gorm:"not null;uniqueIndex:idx_device_model_identity"`
	ApprovalCode string `gorm:"size:255;not null;default:0000"`
	Enabled      bool   `gorm:"not null;default:true"`
	UserID       int64  `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM.
func (DeviceModel) TableName() string { return "device_models" }

// DeviceVariant belongs to a device model
type DeviceVariant struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"size:255;not null;uniqueIndex:idx_device_variant_identity"`
	Description   string `gorm:"size:255"`
	DeviceModelID int64  `gorm:"not null;uniqueIndex:idx_device_variant_identity"`
	Enabled       bool   `gorm:"not null;default:true"`
	UserID        int64  `gorm:"not null"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM.
func (DeviceVariant) TableName() string { return "device_variants" }

// Device is one installed unit, identified by its ECU serial
type Device struct {
	ID              int64  `gorm:"primaryKey"`
	EcuNumber       string `gorm:"size:255;not null;uniqueIndex"`
	DeviceTypeID    int64  `gorm:"not null"`
	DeviceModelID   int64  `gorm:"not null"`
	DeviceVariantID *int64
	Remarks         string `gorm:"type:text"`
	Lock            int    `gorm:"not null;default:0"`
	DealerID        *int64 `gorm:"index"`
	UserID          int64  `gorm:"not null"`
	Blocked         bool   `gorm:"not null;default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TableName returns the table name for GORM.
func (Device) TableName() string { return "devices" }
