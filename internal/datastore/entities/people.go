package entities

import "time"

// Technician installs and calibrates devices on behalf of a dealer user
type Technician struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;not null;index"`
	Phone     string `gorm:"size:255;not null"`
	UserID    int64  `gorm:"not null;index"`
	CreatedBy int64  `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Technician) TableName() string { return "technicians" }

// Customer is a fleet owner certificates are issued for
type Customer struct {
	ID            int64  `gorm:"primaryKey"`
	Email         string `gorm:"size:255;not null;index"`
	Name          string `gorm:"size:255;not null"`
	Address       string `gorm:"type:text"`
	ContactNumber string `gorm:"size:255"`
	UserID        int64  `gorm:"not null;index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM.
func (Customer) TableName() string { return "customers" }

// Sales person status values
const (
	SalesPersonStatusActive  = "active"
	SalesPersonStatusBlocked = "blocked"
)

// SalesPerson is a dealer-side sales contact. UserID is the billing dealer.
type SalesPerson struct {
	ID        int64  `gorm:"primaryKey"`
	Name      string `gorm:"size:255;not null"`
	Email     string `gorm:"size:255;not null;index"`
	Phone     string `gorm:"size:255"`
	UserID    int64  `gorm:"not null;index"`
	Status    string `gorm:"size:20;not null;default:blocked"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// TableName returns the table name for GORM.
func (SalesPerson) TableName() string { return "sales_people" }
