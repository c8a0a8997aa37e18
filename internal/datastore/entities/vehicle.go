package entities

import "time"

// Vehicle is identified by its chassis number. CertificateID points back at
// the latest certificate issued for it.
type Vehicle struct {
	ID               int64  `gorm:"primaryKey"`
	Brand            string `gorm:"size:255;not null"`
	Model            string `gorm:"size:255;not null"`
	VehicleNo        string `gorm:"size:255"`
	VehicleChassisNo string `gorm:"size:255;not null;index"`
	NewRegistration  bool   `gorm:"not null;default:false"`
	CertificateID    *int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName returns the table name for GORM.
func (Vehicle) TableName() string { return "vehicles" }
