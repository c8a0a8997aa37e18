package migration

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/datastore/legacy"
	"github.com/tphakala/certmigrate/internal/datastore/repository"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// certificateMigrator migrates certificate records. It is the only bulk
// capable migrator.
type certificateMigrator struct{ base }

// preparedCertificate is a certificate row whose references all resolved
type preparedCertificate struct {
	row    *entities.Certificate
	bundle resolver.Bundle
	serial any // legacy serial for the mapping entry, nil when absent
}

func (m *certificateMigrator) Candidates(ctx context.Context) iter.Seq2[Record, error] {
	return candidates(ctx, &m.base, m.env.Reader.Certificates(ctx), func(c legacy.CertificateRecord) Record {
		label := "certificate " + mapping.ID(c.ID)
		if c.SerialNo != nil {
			label = fmt.Sprintf("serial %d", *c.SerialNo)
		}
		return Record{SourceID: mapping.ID(c.ID), Label: label, Data: c}
	})
}

func (m *certificateMigrator) Migrate(ctx context.Context, rec Record) Outcome {
	p, out := m.Prepare(ctx, rec)
	if p == nil {
		return out
	}
	return m.Insert(ctx, p)
}

// Prepare resolves every reference of the certificate and builds its row.
// Fallback technicians and vehicles are created here.
func (m *certificateMigrator) Prepare(ctx context.Context, rec Record) (*Prepared, Outcome) {
	t := m.begin(rec)
	src, ok := rec.Data.(legacy.CertificateRecord)
	if !ok {
		return nil, t.fail(WriteError(ReasonSourceRead, fmt.Errorf("unexpected record data %T", rec.Data)))
	}
	if m.store.Contains(rec.SourceID) {
		return nil, t.alreadyMigrated()
	}

	bundle, unresolved := m.env.Resolver.ResolveCertificate(ctx, resolver.CertificateRef{
		DealerID:   src.DealerID,
		CustomerID: src.CustomerID,
		ECU:        src.ECU,
		Technician: resolver.TechnicianRef{
			InstallerTechnicianID: src.InstallerTechnicianID,
			CalibratorUserID:      src.CalibratorUserID,
		},
		Vehicle: resolver.VehicleRef{
			FleetID:      src.FleetID,
			Chassis:      src.VehicleChassis,
			Type:         src.VehicleType,
			Registration: src.VehicleRegistration,
		},
	})
	if len(unresolved) > 0 {
		errs := make([]*RecordError, 0, len(unresolved))
		for _, res := range unresolved {
			errs = append(errs, fromResult(res))
		}
		return nil, t.block(errs...)
	}

	pc := &preparedCertificate{row: m.buildRow(&src, bundle), bundle: bundle}
	if pc.row.SerialNumber != nil {
		pc.serial = *pc.row.SerialNumber
	}
	t.advance(StateReady)
	return &Prepared{Record: rec, started: t.start, payload: pc}, t.out
}

func (m *certificateMigrator) buildRow(src *legacy.CertificateRecord, b resolver.Bundle) *entities.Certificate {
	row := &entities.Certificate{
		Status:           DeriveStatus(src),
		DeviceID:         &b.DeviceID,
		InstallationDate: firstDate(src.DateInstallation, src.DateActualInstallation),
		CalibrationDate:  firstDate(src.DateCalibrate),
		ExpiryDate:       firstDate(src.DateExpiry),
		CancellationDate: legacy.UnixTime(src.DateCancellation),
		InstalledByID:    b.TechnicianID,
		InstalledForID:   &b.CustomerID,
		VehicleID:        b.VehicleID,
		SpeedLimit:       ParseSpeed(src.Speed),
		PrintCount:       src.PrintCount,
		RenewalCount:     src.RenewalCount,
		Description:      src.Description,
		Country:          m.env.country(),
		DealerID:         b.Dealer.BillingID,
		UserID:           b.Dealer.ActingID,
	}
	if src.SerialNo != nil && *src.SerialNo != 0 {
		serial := *src.SerialNo
		row.SerialNumber = &serial
	}
	if src.Kilometer != nil {
		row.KmReading = *src.Kilometer
	}
	if row.CancellationDate != nil {
		row.Cancelled = true
		row.CancelledByID = &m.env.Actor.ID
	}
	return row
}

// Insert writes one prepared certificate, its vehicle back-reference and its
// mapping entry in one transaction
func (m *certificateMigrator) Insert(ctx context.Context, p *Prepared) Outcome {
	t := m.resume(p.Record, p.started)
	t.out.State = StateReady
	pc := p.payload.(*preparedCertificate)

	if m.store.Contains(p.Record.SourceID) {
		t.advance(StateCreating)
		return t.fail(WriteError(ReasonAlreadyMigrated, fmt.Errorf("certificate %s was mapped concurrently", p.Record.SourceID)))
	}

	t.advance(StateCreating)
	pc.row.ID = 0
	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if _, err := tx.UpsertCertificate(ctx, pc.row); err != nil {
			return nil, err
		}
		if err := m.linkVehicle(ctx, tx, pc); err != nil {
			return nil, err
		}
		return []mapping.Entry{m.entry(p.Record, pc)}, nil
	})
	if err != nil {
		return t.fail(asRecordError(err))
	}
	return t.done(pc.row.ID, certificateFields(pc))
}

// InsertBatch writes all prepared certificates in one transaction. Generated
// ids are matched to records by position. Any failure, including a row
// without a reported id, rolls the whole batch back.
func (m *certificateMigrator) InsertBatch(ctx context.Context, batch []*Prepared) ([]Outcome, error) {
	rows := make([]*entities.Certificate, 0, len(batch))
	for _, p := range batch {
		pc := p.payload.(*preparedCertificate)
		pc.row.ID = 0
		rows = append(rows, pc.row)
	}

	err := m.writeThrough(ctx, func(tx *repository.Repository) ([]mapping.Entry, error) {
		if err := tx.BulkInsertCertificates(ctx, rows, m.env.Settings.BatchSize); err != nil {
			return nil, err
		}
		entries := make([]mapping.Entry, 0, len(batch))
		for _, p := range batch {
			pc := p.payload.(*preparedCertificate)
			if err := m.linkVehicle(ctx, tx, pc); err != nil {
				return nil, err
			}
			entries = append(entries, m.entry(p.Record, pc))
		}
		return entries, nil
	})
	if err != nil {
		// ids backfilled before the rollback must not leak into the retry
		for _, row := range rows {
			row.ID = 0
		}
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(batch))
	for _, p := range batch {
		pc := p.payload.(*preparedCertificate)
		t := m.resume(p.Record, p.started)
		t.out.State = StateReady
		t.advance(StateCreating)
		outcomes = append(outcomes, t.done(pc.row.ID, certificateFields(pc)))
	}
	return outcomes, nil
}

// linkVehicle points the certificate's vehicle at it
func (m *certificateMigrator) linkVehicle(ctx context.Context, tx *repository.Repository, pc *preparedCertificate) error {
	if pc.row.VehicleID == nil {
		return nil
	}
	return tx.SetVehicleCertificate(ctx, *pc.row.VehicleID, pc.row.ID)
}

func (m *certificateMigrator) entry(rec Record, pc *preparedCertificate) mapping.Entry {
	return mapping.Entry{
		DestinationID: mapping.ID(pc.row.ID),
		SourceID:      rec.SourceID,
		Aux: map[string]any{
			"device_id":     pc.bundle.DeviceID,
			"customer_id":   pc.bundle.CustomerID,
			"technician_id": pc.bundle.TechnicianID,
			"vehicle_id":    derefOrNil(pc.bundle.VehicleID),
			"dealer_id":     pc.bundle.Dealer.BillingID,
			"user_id":       pc.bundle.Dealer.ActingID,
			"serial_number": pc.serial,
		},
	}
}

func certificateFields(pc *preparedCertificate) map[string]any {
	return map[string]any{
		"serial_number": pc.serial,
		"status":        pc.row.Status,
		"device_id":     pc.bundle.DeviceID,
		"customer_id":   pc.bundle.CustomerID,
		"technician_id": pc.bundle.TechnicianID,
		"vehicle_id":    derefOrNil(pc.bundle.VehicleID),
		"dealer_id":     pc.bundle.Dealer.BillingID,
		"speed_limit":   pc.row.SpeedLimit,
	}
}

// firstDate returns the first set unix date, or the zero time
func firstDate(candidates ...*int64) time.Time {
	for _, c := range candidates {
		if t := legacy.UnixTime(c); t != nil {
			return *t
		}
	}
	return time.Time{}
}
