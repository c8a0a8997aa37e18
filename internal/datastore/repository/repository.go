// Package repository writes the destination schema.
//
// Every write is idempotent on a natural key: a second insert of the same email,
// chassis number, ECU serial or certificate serial updates the existing row
// instead of failing. Callers that need check-then-create to be atomic across
// workers serialize on the mapping store's key lock before entering a transaction.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
)

// Repository is the destination writer. A Repository obtained from Transaction is
// bound to that transaction.
type Repository struct {
	db      *gorm.DB
	metrics *metrics.DatastoreMetrics
	inTx    bool
}

// New creates a repository over db. m may be nil.
func New(db *gorm.DB, m *metrics.DatastoreMetrics) *Repository {
	return &Repository{db: db, metrics: m}
}

// DB returns the underlying connection
func (r *Repository) DB() *gorm.DB { return r.db }

// Transaction runs fn inside a database transaction. Nested calls reuse the
// outer transaction.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx, metrics: r.metrics, inTx: true})
	})

	if r.metrics != nil {
		status := metrics.LabelCommit
		if err != nil {
			status = metrics.LabelRollback
		}
		r.metrics.RecordTransaction(status)
		r.metrics.RecordTransactionDuration(status, time.Since(start).Seconds())
	}
	return err
}

// observe records one repository operation
func (r *Repository) observe(operation, table string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}
	status := metrics.LabelSuccess
	if err != nil {
		status = metrics.LabelError
	}
	r.metrics.RecordDbOperation(operation, table, status)
	r.metrics.RecordDbOperationDuration(operation, table, time.Since(start).Seconds())
}

// upsertBy finds the row of T whose column equals key. If it exists, merge
// copies the mutable fields onto it and the row is saved; row then holds the
// stored state. Otherwise row is created. created reports which path ran.
func upsertBy[T any](ctx context.Context, db *gorm.DB, row *T, column string, key any, merge func(existing *T)) (created bool, err error) {
	var existing T
	err = db.WithContext(ctx).Where(column+" = ?", key).Order("id ASC").First(&existing).Error
	switch {
	case err == nil:
		merge(&existing)
		if err := db.WithContext(ctx).Save(&existing).Error; err != nil {
			return false, err
		}
		*row = existing
		return false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := db.WithContext(ctx).Create(row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return false, fmt.Errorf("%w: %s %v", ErrDuplicateKey, column, key)
			}
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}

// findBy loads the first row of T whose column equals key, or notFound
func findBy[T any](ctx context.Context, db *gorm.DB, column string, key any, notFound error) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(column+" = ?", key).Order("id ASC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// repoError wraps a database failure. Sentinel errors pass through unchanged so
// callers can still match them.
func repoError(err error, operation, table string) error {
	if err == nil {
		return nil
	}
	for _, sentinel := range []error{ErrUserNotFound, ErrTechnicianNotFound, ErrVehicleNotFound, ErrDeviceNotFound} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	category := errors.CategoryDatabase
	if errors.Is(err, ErrDuplicateKey) {
		category = errors.CategoryConflict
	}
	return errors.New(err).
		Component("repository").
		Category(category).
		Context("operation", operation).
		Context("table", table).
		Build()
}

// WriteThrough runs fn in a transaction and commits the mapping entries it
// returns to store before the transaction commits. If the transaction fails
// after the store was persisted, the store commit is undone, so a row and its
// mapping entry are applied together or not at all.
func (r *Repository) WriteThrough(ctx context.Context, store *mapping.Store, fn func(tx *Repository) ([]mapping.Entry, error)) error {
	var undo func() error
	err := r.Transaction(ctx, func(tx *Repository) error {
		entries, err := fn(tx)
		if err != nil || len(entries) == 0 {
			return err
		}
		u, err := store.Commit(entries...)
		if err != nil {
			return err
		}
		undo = u
		return nil
	})
	if err != nil && undo != nil {
		if undoErr := undo(); undoErr != nil {
			return errors.Join(err, undoErr)
		}
	}
	return err
}
