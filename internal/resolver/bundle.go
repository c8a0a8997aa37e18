package resolver

import "context"

// CertificateRef holds the legacy foreign references of one certificate
type CertificateRef struct {
	DealerID   int64
	CustomerID int64
	ECU        string
	Technician TechnicianRef
	Vehicle    VehicleRef
}

// Bundle holds the destination ids a certificate needs. It is built per record
// and never shared.
type Bundle struct {
	Dealer       Dealer
	CustomerID   int64
	DeviceID     int64
	TechnicianID int64
	VehicleID    *int64
}

// ResolveCertificate resolves every role of a certificate. It returns the
// unresolved results, empty when the bundle is complete.
//
// The dealer gates the record: without it nothing else is attempted. Lookups
// without fallback rules run next and are reported together; technicians and
// vehicles are only created for a record that can otherwise be migrated.
func (r *Resolver) ResolveCertificate(ctx context.Context, ref CertificateRef) (Bundle, []Result) {
	var b Bundle

	dealer, res := r.Dealer(ctx, ref.DealerID)
	if !res.OK() {
		return b, []Result{res}
	}
	b.Dealer = dealer

	var failed []Result
	customer := r.Customer(ref.CustomerID)
	if !customer.OK() {
		failed = append(failed, customer)
	}
	device := r.Device(ctx, ref.ECU)
	if !device.OK() {
		failed = append(failed, device)
	}
	// a referenced technician is a plain lookup and belongs with the others
	var technician Result
	if ref.Technician.InstallerTechnicianID != 0 {
		technician = r.Technician(ctx, ref.Technician)
		if !technician.OK() {
			failed = append(failed, technician)
		}
	}
	if len(failed) > 0 {
		return b, failed
	}
	b.CustomerID = customer.ID
	b.DeviceID = device.ID

	if ref.Technician.InstallerTechnicianID == 0 {
		technician = r.Technician(ctx, ref.Technician)
		if !technician.OK() {
			return b, []Result{technician}
		}
	}
	b.TechnicianID = technician.ID

	vehicle := r.Vehicle(ctx, ref.Vehicle)
	if !vehicle.OK() {
		return b, []Result{vehicle}
	}
	b.VehicleID = vehicle.IDPtr()

	return b, nil
}
