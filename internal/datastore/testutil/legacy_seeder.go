package testutil

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// LegacySeeder inserts fixture rows into the legacy database.
type LegacySeeder struct {
	db *gorm.DB
}

// NewLegacySeeder creates a new seeder over the legacy connection.
func NewLegacySeeder(db *gorm.DB) *LegacySeeder {
	return &LegacySeeder{db: db}
}

// Insert creates each row in one transaction. Rows are pointers to legacy models.
func (s *LegacySeeder) Insert(rows ...any) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, row := range rows {
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("row %d (%T): %w", i, row, err)
			}
		}
		return nil
	})
}

// MustInsert is Insert that fails the test on error.
func (s *LegacySeeder) MustInsert(t *testing.T, rows ...any) {
	t.Helper()
	require.NoError(t, s.Insert(rows...), "failed to seed legacy rows")
}
