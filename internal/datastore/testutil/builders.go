package testutil

import (
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
)

// Unix returns a pointer to a unix timestamp, for nullable legacy date columns.
func Unix(sec int64) *int64 { return &sec }

// CertificateBuilder provides a fluent API for building legacy certificate rows.
type CertificateBuilder struct {
	rec legacy.CertificateRecord
}

// NewCertificateBuilder creates a builder for an active certificate with the
// given id and serial, installed in 2023 by a technician-less calibrator.
func NewCertificateBuilder(id, serial int64) *CertificateBuilder {
	return &CertificateBuilder{
		rec: legacy.CertificateRecord{
			ID:                  id,
			SerialNo:            &serial,
			Speed:               "80 km/h",
			Kilometer:           Unix(1200),
			DateInstallation:    Unix(1672531200), // 2023-01-01
			DateCalibrate:       Unix(1672617600),
			DateExpiry:          Unix(1704067200),
			Activstate:          1,
			VehicleType:         "Volvo FH16",
			VehicleRegistration: "D 12345",
			VehicleChassis:      "CH-0001",
		},
	}
}

// WithECU sets the device serial.
func (b *CertificateBuilder) WithECU(ecu string) *CertificateBuilder {
	b.rec.ECU = ecu
	return b
}

// WithCustomer sets the legacy customer id.
func (b *CertificateBuilder) WithCustomer(id int64) *CertificateBuilder {
	b.rec.CustomerID = id
	return b
}

// WithDealer sets the legacy dealer id.
func (b *CertificateBuilder) WithDealer(id int64) *CertificateBuilder {
	b.rec.DealerID = id
	return b
}

// WithCalibrator sets the legacy calibrating user.
func (b *CertificateBuilder) WithCalibrator(userID int64) *CertificateBuilder {
	b.rec.CalibratorUserID = userID
	b.rec.InstallerUserID = userID
	return b
}

// WithInstallerTechnician sets the legacy installer technician id.
func (b *CertificateBuilder) WithInstallerTechnician(id int64) *CertificateBuilder {
	b.rec.InstallerTechnicianID = id
	return b
}

// WithFleet sets the legacy fleet id.
func (b *CertificateBuilder) WithFleet(fleetID string) *CertificateBuilder {
	b.rec.FleetID = fleetID
	return b
}

// WithVehicle sets the free-text vehicle fields used by the chassis fallback.
func (b *CertificateBuilder) WithVehicle(vehicleType, chassis string) *CertificateBuilder {
	b.rec.VehicleType = vehicleType
	b.rec.VehicleChassis = chassis
	return b
}

// WithoutSerial clears the serial number.
func (b *CertificateBuilder) WithoutSerial() *CertificateBuilder {
	b.rec.SerialNo = nil
	return b
}

// WithRenewals sets the renewal count.
func (b *CertificateBuilder) WithRenewals(n int) *CertificateBuilder {
	b.rec.RenewalCount = n
	return b
}

// WithCancellation sets the cancellation date.
func (b *CertificateBuilder) WithCancellation(sec int64) *CertificateBuilder {
	b.rec.DateCancellation = &sec
	return b
}

// WithActivState sets the legacy active flag.
func (b *CertificateBuilder) WithActivState(state int) *CertificateBuilder {
	b.rec.Activstate = state
	return b
}

// Build returns a pointer to the row, ready for LegacySeeder.Insert.
func (b *CertificateBuilder) Build() *legacy.CertificateRecord {
	rec := b.rec
	return &rec
}
