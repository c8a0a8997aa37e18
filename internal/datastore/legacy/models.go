// Package legacy reads the legacy schema. It never writes to it.
package legacy

import "time"

// Dealer is a row of dealer_master
type Dealer struct {
	ID        int64  `gorm:"column:id;primaryKey"`
	Company   string `gorm:"column:company;size:300"`
	Email     string `gorm:"column:email;size:200"`
	Phone     string `gorm:"column:phone"`
	Mobile    string `gorm:"column:mobile"`
	Emirate   string `gorm:"column:emirate;size:20"`
	Status    string `gorm:"column:status;size:20"`
	SalesUser string `gorm:"column:salesuser;size:20"`
	AddDate   *int64 `gorm:"column:add_date"`
	AddedBy   int64  `gorm:"column:added_by"`
}

// TableName returns the table name for GORM.
func (Dealer) TableName() string { return "dealer_master" }

// User is a row of the legacy users table
type User struct {
	ID         int64     `gorm:"column:id;primaryKey"`
	Username   string    `gorm:"column:username"`
	Password   string    `gorm:"column:password"`
	FullName   string    `gorm:"column:full_name"`
	Company    string    `gorm:"column:company"`
	Activstate int       `gorm:"column:activstate"`
	Email      string    `gorm:"column:email;size:255"`
	Mobile     string    `gorm:"column:mobile"`
	Usertype   string    `gorm:"column:usertype"`
	Country    string    `gorm:"column:country"`
	AddDate    time.Time `gorm:"column:add_date"`
}

// TableName returns the table name for GORM.
func (User) TableName() string { return "users" }

// Technician is a row of technician_master
type Technician struct {
	ID      int64  `gorm:"column:id;primaryKey"`
	Name    string `gorm:"column:technician_name"`
	Phone   string `gorm:"column:technician_phone"`
	Email   string `gorm:"column:technician_email"`
	AddDate *int64 `gorm:"column:add_date"`
	UserID  int64  `gorm:"column:user_id"`
}

// TableName returns the table name for GORM.
func (Technician) TableName() string { return "technician_master" }

// Customer is a row of customer_master
type Customer struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	Company      string `gorm:"column:company"`
	Email        string `gorm:"column:email"`
	Address      string `gorm:"column:o_address"`
	ContactPhone string `gorm:"column:o_contactphone"`
	AddDate      *int64 `gorm:"column:add_date"`
	UserID       int64  `gorm:"column:user_id"`
}

// TableName returns the table name for GORM.
func (Customer) TableName() string { return "customer_master" }

// Fleet is a row of the fleet table, keyed by a textual fleet id
type Fleet struct {
	FleetID string `gorm:"column:fleet_id;primaryKey;size:20"`
	VehNo   string `gorm:"column:fleet_veh_no"`
	Model   string `gorm:"column:fleet_veh_model"`
	Brand   string `gorm:"column:brand"`
	Chassis string `gorm:"column:fleet_chassis"`
}

// TableName returns the table name for GORM.
func (Fleet) TableName() string { return "fleet" }

// ECU is a row of ecu_master
type ECU struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	ECU      string `gorm:"column:ecu;size:50"`
	Lock     int    `gorm:"column:lock"`
	DealerID int64  `gorm:"column:dealer_id"`
	AddDate  *int64 `gorm:"column:add_date_timestamp"`
	AddedBy  int64  `gorm:"column:ecu_added_by"`
	Remarks  string `gorm:"column:remarks;size:500"`
}

// TableName returns the table name for GORM.
func (ECU) TableName() string { return "ecu_master" }

// CertificateRecord is a row of certificate_record. Dates are unix seconds.
type CertificateRecord struct {
	ID                     int64  `gorm:"column:id;primaryKey"`
	SerialNo               *int64 `gorm:"column:serialno"`
	ECU                    string `gorm:"column:ecu;size:50"`
	CustomerID             int64  `gorm:"column:customer_id"`
	InstallerUserID        int64  `gorm:"column:installer_user_id"`
	CalibratorUserID       int64  `gorm:"column:caliberater_user_id"`
	InstallerTechnicianID  int64  `gorm:"column:installer_technician_id"`
	CalibratorTechnicianID int64  `gorm:"column:caliberater_technician_id"`
	FleetID                string `gorm:"column:fleet_id;size:20"`
	VehicleType            string `gorm:"column:vehicle_type"`
	VehicleRegistration    string `gorm:"column:vehicle_registration"`
	VehicleChassis         string `gorm:"column:vehicle_chassis"`
	Speed                  string `gorm:"column:speed"`
	Kilometer              *int64 `gorm:"column:kilometer"`
	DateActualInstallation *int64 `gorm:"column:date_actual_installation"`
	DateInstallation       *int64 `gorm:"column:date_installation"`
	DateCalibrate          *int64 `gorm:"column:date_calibrate"`
	DateExpiry             *int64 `gorm:"column:date_expiry"`
	RenewalCount           int    `gorm:"column:renewal_count"`
	DealerID               int64  `gorm:"column:dealer_id"`
	PrintCount             int    `gorm:"column:print_count"`
	Activstate             int    `gorm:"column:activstate"`
	Description            string `gorm:"column:description;size:500"`
	DateCancellation       *int64 `gorm:"column:date_cancelation"`
	UpdatedByUserID        int64  `gorm:"column:updated_by_user_id"`
}

// TableName returns the table name for GORM.
func (CertificateRecord) TableName() string { return "certificate_record" }

// Sale is a row of sales
type Sale struct {
	ID       int64  `gorm:"column:id;primaryKey"`
	UserID   int64  `gorm:"column:user_id"`
	DealerID int64  `gorm:"column:dealer_id"`
	DealDate *int64 `gorm:"column:deal_date"`
}

// TableName returns the table name for GORM.
func (Sale) TableName() string { return "sales" }

// Models returns every legacy model, in the order the snapshot tool copies them
func Models() []any {
	return []any{
		&Dealer{},
		&User{},
		&Technician{},
		&Customer{},
		&Fleet{},
		&ECU{},
		&CertificateRecord{},
		&Sale{},
	}
}

// UnixTime converts a nullable unix seconds column
func UnixTime(sec *int64) *time.Time {
	if sec == nil || *sec == 0 {
		return nil
	}
	t := time.Unix(*sec, 0).UTC()
	return &t
}
