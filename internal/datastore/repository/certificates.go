package repository

import (
	"context"
	"time"

	"github.com/tphakala/certmigrate/internal/datastore/entities"
	"github.com/tphakala/certmigrate/internal/errors"
)

// UpsertCertificate creates c, or updates the certificate with the same serial
// number. Certificates without a serial are always inserted.
func (r *Repository) UpsertCertificate(ctx context.Context, c *entities.Certificate) (created bool, err error) {
	start := time.Now()
	if c.SerialNumber == nil {
		err = r.db.WithContext(ctx).Create(c).Error
		r.observe("insert", "certificates", start, err)
		return err == nil, repoError(err, "insert_certificate", "certificates")
	}

	incoming := *c
	created, err = upsertBy(ctx, r.db, c, "serial_number", *c.SerialNumber, func(e *entities.Certificate) {
		id, createdAt := e.ID, e.CreatedAt
		*e = incoming
		e.ID, e.CreatedAt = id, createdAt
	})
	r.observe("upsert", "certificates", start, err)
	return created, repoError(err, "upsert_certificate", "certificates")
}

// BulkInsertCertificates inserts all certificates in batches of batchSize and
// backfills their generated ids. It returns ErrIDsUnknown when the driver did
// not report an id for every row; callers run it inside a transaction so that
// case can be rolled back.
func (r *Repository) BulkInsertCertificates(ctx context.Context, certs []*entities.Certificate, batchSize int) error {
	if len(certs) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = len(certs)
	}

	start := time.Now()
	err := r.db.WithContext(ctx).CreateInBatches(certs, batchSize).Error
	if err == nil {
		for i, c := range certs {
			if c.ID == 0 {
				err = errors.Newf("%w: row %d of %d", ErrIDsUnknown, i, len(certs)).
					Component("repository").
					Category(errors.CategoryDatabase).
					Build()
				break
			}
		}
	}
	r.observe("bulk_insert", "certificates", start, err)
	if err != nil {
		if errors.Is(err, ErrIDsUnknown) {
			return err
		}
		return repoError(err, "bulk_insert_certificates", "certificates")
	}
	return nil
}
