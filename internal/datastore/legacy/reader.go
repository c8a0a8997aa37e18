package legacy

import (
	"context"
	"fmt"
	"iter"

	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/errors"
)

// DefaultBatchSize is the page size used when none is configured
const DefaultBatchSize = 500

// Reader pages through legacy tables by primary key. Each page is fully
// loaded before rows are yielded, so no connection is held while callers
// work on a row.
type Reader struct {
	db        *gorm.DB
	batchSize int
}

// NewReader creates a reader over the legacy database
func NewReader(db *gorm.DB, batchSize int) *Reader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Reader{db: db, batchSize: batchSize}
}

// DB returns the underlying connection, used by the snapshot tool
func (r *Reader) DB() *gorm.DB { return r.db }

// Dealers yields dealer_master rows by ascending id
func (r *Reader) Dealers(ctx context.Context) iter.Seq2[Dealer, error] {
	return scan(ctx, r, "id", func(d Dealer) any { return d.ID })
}

// Technicians yields technician_master rows by ascending id
func (r *Reader) Technicians(ctx context.Context) iter.Seq2[Technician, error] {
	return scan(ctx, r, "id", func(t Technician) any { return t.ID })
}

// Customers yields customer_master rows by ascending id
func (r *Reader) Customers(ctx context.Context) iter.Seq2[Customer, error] {
	return scan(ctx, r, "id", func(c Customer) any { return c.ID })
}

// Fleets yields fleet rows by ascending fleet id
func (r *Reader) Fleets(ctx context.Context) iter.Seq2[Fleet, error] {
	return scan(ctx, r, "fleet_id", func(f Fleet) any { return f.FleetID })
}

// ECUs yields ecu_master rows by ascending id
func (r *Reader) ECUs(ctx context.Context) iter.Seq2[ECU, error] {
	return scan(ctx, r, "id", func(e ECU) any { return e.ID })
}

// Certificates yields certificate_record rows by ascending id
func (r *Reader) Certificates(ctx context.Context) iter.Seq2[CertificateRecord, error] {
	return scan(ctx, r, "id", func(c CertificateRecord) any { return c.ID })
}

// UsersByCompany returns legacy users whose company contains company, by ascending id
func (r *Reader) UsersByCompany(ctx context.Context, company string) ([]User, error) {
	var users []User
	if company == "" {
		return users, nil
	}
	err := r.db.WithContext(ctx).
		Where("company LIKE ? ESCAPE '!'", "%"+escapeLike(company)+"%").
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, readError(err, "users")
	}
	return users, nil
}

// SalesUserIDs returns the distinct non-zero user ids of the sales table
func (r *Reader) SalesUserIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&Sale{}).
		Where("user_id IS NOT NULL AND user_id <> 0").
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, readError(err, "sales")
	}
	return ids, nil
}

// SalesByUser returns the sales of one sales user, oldest deal first
func (r *Reader) SalesByUser(ctx context.Context, userID int64) ([]Sale, error) {
	var sales []Sale
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("deal_date ASC").
		Order("id ASC").
		Find(&sales).Error
	if err != nil {
		return nil, readError(err, "sales")
	}
	return sales, nil
}

// Count returns the row count of a legacy model's table
func (r *Reader) Count(ctx context.Context, model any) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
		return 0, readError(err, fmt.Sprintf("%T", model))
	}
	return n, nil
}

// scan implements keyset pagination over one table
func scan[T any](ctx context.Context, r *Reader, key string, keyOf func(T) any) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var last any
		for {
			var rows []T
			q := r.db.WithContext(ctx).Order(key + " ASC").Limit(r.batchSize)
			if last != nil {
				q = q.Where(key+" > ?", last)
			}
			if err := q.Find(&rows).Error; err != nil {
				var zero T
				yield(zero, readError(err, fmt.Sprintf("%T", zero)))
				return
			}
			for _, row := range rows {
				if !yield(row, nil) {
					return
				}
			}
			if len(rows) < r.batchSize {
				return
			}
			last = keyOf(rows[len(rows)-1])
		}
	}
}

func readError(err error, table string) error {
	return errors.New(fmt.Errorf("read legacy %s: %w", table, err)).
		Component("legacy-reader").
		Category(errors.CategoryDatabase).
		Context("table", table).
		Build()
}

// escapeLike escapes LIKE wildcards with '!', which MySQL and SQLite both accept as ESCAPE
func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '!' {
			out = append(out, '!')
		}
		out = append(out, c)
	}
	return string(out)
}
