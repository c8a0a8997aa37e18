package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/tphakala/certmigrate/internal/datastore/legacy"
)

// Snapshot copies the legacy tables from a source to a target database.
type Snapshot struct {
	cfg      Config
	out      io.Writer
	sourceDB *gorm.DB
	targetDB *gorm.DB
}

// SnapshotStats tracks copy statistics.
type SnapshotStats struct {
	StartTime time.Time
	EndTime   time.Time
	Tables    []TableStats
}

// TableStats tracks per-table copy statistics.
type TableStats struct {
	Name     string
	Copied   int64
	Skipped  int64
	Errors   int64
	Duration time.Duration
}

// Print outputs the copy statistics.
func (s *SnapshotStats) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "\n=== Snapshot Summary ===")
	_, _ = fmt.Fprintf(w, "Duration: %s\n\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))

	_, _ = fmt.Fprintf(w, "%-20s %10s %10s %10s %12s\n", "Table", "Copied", "Skipped", "Errors", "Duration")
	_, _ = fmt.Fprintln(w, strings.Repeat("-", 66))

	var totalCopied, totalSkipped, totalErrors int64
	for _, t := range s.Tables {
		_, _ = fmt.Fprintf(w, "%-20s %10d %10d %10d %12s\n",
			t.Name, t.Copied, t.Skipped, t.Errors, t.Duration.Round(time.Millisecond))
		totalCopied += t.Copied
		totalSkipped += t.Skipped
		totalErrors += t.Errors
	}

	_, _ = fmt.Fprintln(w, strings.Repeat("-", 66))
	_, _ = fmt.Fprintf(w, "%-20s %10d %10d %10d\n", "TOTAL", totalCopied, totalSkipped, totalErrors)
}

// OpenSnapshot opens both databases and checks that they respond.
func OpenSnapshot(source, target gorm.Dialector, cfg *Config, out io.Writer) (*Snapshot, error) {
	s := &Snapshot{cfg: *cfg, out: out}

	logLevel := logger.Silent
	if cfg.Verbose {
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{Logger: logger.Default.LogMode(logLevel)}

	var err error
	if s.sourceDB, err = open(source, gormConfig); err != nil {
		return nil, fmt.Errorf("failed to open legacy database: %w", err)
	}
	if s.targetDB, err = open(target, gormConfig); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Database connections established successfully")
	return s, nil
}

func open(dialector gorm.Dialector, gormConfig *gorm.Config) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Close closes both database connections.
func (s *Snapshot) Close() {
	for _, db := range []*gorm.DB{s.sourceDB, s.targetDB} {
		if db == nil {
			continue
		}
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// table couples a legacy table with its typed copy function
type table struct {
	name string
	copy func(ctx context.Context, s *Snapshot) (*TableStats, error)
}

var tables = []table{
	{"dealer_master", copyTable[legacy.Dealer]},
	{"users", copyTable[legacy.User]},
	{"technician_master", copyTable[legacy.Technician]},
	{"customer_master", copyTable[legacy.Customer]},
	{"fleet", copyTable[legacy.Fleet]},
	{"ecu_master", copyTable[legacy.ECU]},
	{"certificate_record", copyTable[legacy.CertificateRecord]},
	{"sales", copyTable[legacy.Sale]},
}

// Run creates the snapshot schema and copies every legacy table.
func (s *Snapshot) Run(ctx context.Context) (*SnapshotStats, error) {
	stats := &SnapshotStats{StartTime: time.Now()}

	if err := s.targetDB.WithContext(ctx).AutoMigrate(legacy.Models()...); err != nil {
		return nil, fmt.Errorf("failed to create snapshot tables: %w", err)
	}

	if s.cfg.Clean {
		if err := s.cleanTables(ctx); err != nil {
			return nil, err
		}
	}

	for _, t := range tables {
		tableStats, err := t.copy(ctx, s)
		if err != nil {
			return stats, fmt.Errorf("failed to copy %s: %w", t.name, err)
		}
		stats.Tables = append(stats.Tables, *tableStats)
	}

	stats.EndTime = time.Now()
	return stats, nil
}

// cleanTables deletes every snapshot row.
func (s *Snapshot) cleanTables(ctx context.Context) error {
	_, _ = fmt.Fprintln(s.out, "Cleaning snapshot tables...")
	for _, model := range legacy.Models() {
		if err := s.targetDB.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clean %T: %w", model, err)
		}
	}
	return nil
}

// copyTable copies one table in primary key order using batched inserts.
// Rows already present in the snapshot are skipped.
func copyTable[T any](ctx context.Context, s *Snapshot) (*TableStats, error) {
	start := time.Now()
	model := new(T)
	stats := &TableStats{Name: tableName(s.sourceDB, model)}

	_, _ = fmt.Fprintf(s.out, "Copying %s...\n", stats.Name)

	var sourceCount int64
	if err := s.sourceDB.WithContext(ctx).Model(model).Count(&sourceCount).Error; err != nil {
		return stats, fmt.Errorf("failed to count source rows: %w", err)
	}
	if sourceCount == 0 {
		_, _ = fmt.Fprintf(s.out, "  %s: no rows to copy\n", stats.Name)
		stats.Duration = time.Since(start)
		return stats, nil
	}

	var processed int64
	batchNum := 0
	err := s.sourceDB.WithContext(ctx).Model(model).FindInBatches(new([]T), s.cfg.BatchSize, func(tx *gorm.DB, _ int) error {
		batchNum++
		rows := tx.Statement.Dest.(*[]T)

		result := s.targetDB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rows)
		if result.Error != nil {
			stats.Errors += int64(len(*rows))
			_, _ = fmt.Fprintf(s.out, "  Batch %d error: %v\n", batchNum, result.Error)
			// a failed batch is reported by verification; keep copying
			return nil //nolint:nilerr // continue despite batch error
		}

		stats.Copied += result.RowsAffected
		stats.Skipped += int64(len(*rows)) - result.RowsAffected
		processed += int64(len(*rows))

		if s.cfg.Verbose || batchNum%10 == 0 {
			_, _ = fmt.Fprintf(s.out, "  %s: %d/%d (%.1f%%)\n", stats.Name, processed, sourceCount,
				float64(processed)/float64(sourceCount)*100)
		}
		return ctx.Err()
	}).Error
	if err != nil {
		return stats, err
	}

	stats.Duration = time.Since(start)
	_, _ = fmt.Fprintf(s.out, "  %s: completed (%d copied, %d skipped, %d errors) in %s\n",
		stats.Name, stats.Copied, stats.Skipped, stats.Errors, stats.Duration.Round(time.Millisecond))
	return stats, nil
}

func tableName(db *gorm.DB, model any) string {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return fmt.Sprintf("%T", model)
	}
	return stmt.Schema.Table
}
