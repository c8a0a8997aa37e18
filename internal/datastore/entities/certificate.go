package entities

import "time"

// Certificate status values
const (
	CertificateStatusActive    = "active"
	CertificateStatusRenewed   = "renewed"
	CertificateStatusNullified = "nullified"
	CertificateStatusCancelled = "cancelled"
	CertificateStatusBlocked   = "blocked"
)

// Certificate is an installation certificate for a device fitted to a vehicle
type Certificate struct {
	ID               int64     `gorm:"primaryKey"`
	SerialNumber     *int64    `gorm:"uniqueIndex"`
	Status           string    `gorm:"size:20;not null;default:active"`
	DeviceID         *int64    `gorm:"index"`
	InstallationDate time.Time `gorm:"not null"`
	CalibrationDate  time.Time `gorm:"not null"`
	ExpiryDate       time.Time `gorm:"not null"`
	CancellationDate *time.Time
	Cancelled        bool `gorm:"not null;default:false"`
	CancelledByID    *int64
	InstalledByID    int64  `gorm:"not null;index"`
	InstalledForID   *int64 `gorm:"index"`
	VehicleID        *int64 `gorm:"index"`
	KmReading        int64  `gorm:"not null"`
	SpeedLimit       int    `gorm:"not null"`
	PrintCount       int    `gorm:"not null;default:0"`
	RenewalCount     int    `gorm:"not null;default:0"`
	Description      string `gorm:"type:text"`
	Country          string `gorm:"size:255"`
	DealerID         int64  `gorm:"not null;index"`
	UserID           int64  `gorm:"not null;index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM.
func (Certificate) TableName() string { return "certificates" }

// All returns every destination model in creation order, for AutoMigrate
func All() []any {
	return []any{
		&User{},
		&Role{},
		&ModelHasRole{},
		&Technician{},
		&Customer{},
		&Vehicle{},
		&DeviceType{},
		&DeviceModel{},
		&DeviceVariant{},
		&Device{},
		&Certificate{},
		&SalesPerson{},
	}
}
