// Package datastore opens the source and destination databases of a migration run.
package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/observability/metrics"
)

// Sides of a migration, used as log module names and metric labels
const (
	SideSource      = "source"
	SideDestination = "destination"
)

// statsInterval is how often pool statistics are published while a run is active
const statsInterval = 5 * time.Second

// Manager owns one gorm connection pool.
type Manager interface {
	// Initialize creates or updates the schema for the given models.
	Initialize(models ...any) error
	// DB returns the underlying GORM database.
	DB() *gorm.DB
	// Path returns the database location (file path for SQLite, sanitized DSN for MySQL).
	Path() string
	// Close closes the database connection.
	Close() error
	// IsMySQL returns true if this is a MySQL manager.
	IsMySQL() bool
	// Stats returns the connection pool statistics.
	Stats() sql.DBStats
}

// manager implements Manager for both drivers; only dialector and pool defaults differ.
type manager struct {
	db       *gorm.DB
	settings conf.DatabaseSettings
	side     string
	log      logger.Logger
}

// Open connects to the database described by settings. side is SideSource or
// SideDestination and only affects logging and metric labels.
func Open(settings *conf.DatabaseSettings, side string, log logger.Logger) (Manager, error) {
	log = log.Module(side)

	var dialector gorm.Dialector
	switch settings.Type {
	case conf.DriverSQLite:
		if settings.Path == "" {
			return nil, errors.Newf("%s database path is empty", side).
				Component("datastore").
				Category(errors.CategoryConfiguration).
				Build()
		}
		dialector = sqlite.Open(settings.DSN())
	case conf.DriverMySQL:
		dialector = mysql.Open(settings.DSN())
	default:
		return nil, errors.Newf("unsupported %s database type %q", side, settings.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.NewGormLoggerAdapter(log, settings.SlowQueryThreshold),
		TranslateError: true,
	})
	if err != nil {
		return nil, dbError(err, "open", side, settings)
	}

	m := &manager{db: db, settings: *settings, side: side, log: log}
	if err := m.configurePool(); err != nil {
		_ = m.Close()
		return nil, err
	}

	log.Info("database opened",
		logger.String("driver", settings.Type),
		logger.String("dsn", settings.SanitizedDSN()))
	return m, nil
}

// configurePool applies pool limits. SQLite gets a single connection: one writer
// at a time is all the file supports, and a single connection avoids
// SQLITE_BUSY on concurrent BEGIN upgrades.
func (m *manager) configurePool() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return dbError(err, "pool", m.side, &m.settings)
	}

	if m.settings.Type == conf.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		return nil
	}

	if m.settings.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(m.settings.MaxOpenConns)
	}
	if m.settings.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(m.settings.MaxIdleConns)
	}
	if m.settings.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(m.settings.ConnMaxLifetime)
	}
	return nil
}

// Initialize runs AutoMigrate for models
func (m *manager) Initialize(models ...any) error {
	if err := m.db.AutoMigrate(models...); err != nil {
		return dbError(fmt.Errorf("failed to migrate %s schema: %w", m.side, err), "auto_migrate", m.side, &m.settings)
	}
	return nil
}

// DB returns the underlying GORM database.
func (m *manager) DB() *gorm.DB {
	return m.db
}

// Path returns the database file path or the sanitized DSN.
func (m *manager) Path() string {
	if m.settings.Type == conf.DriverSQLite {
		return m.settings.Path
	}
	return m.settings.SanitizedDSN()
}

// IsMySQL returns true for MySQL connections.
func (m *manager) IsMySQL() bool {
	return m.settings.Type == conf.DriverMySQL
}

// Stats returns the pool statistics, zero when the pool is unavailable.
func (m *manager) Stats() sql.DBStats {
	sqlDB, err := m.db.DB()
	if err != nil {
		return sql.DBStats{}
	}
	return sqlDB.Stats()
}

// Close closes the database connection.
func (m *manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return dbError(err, "close", m.side, &m.settings)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", m.side, &m.settings)
	}
	return nil
}

// PublishStats reports pool statistics of every manager until ctx is done.
// It publishes once more on return so the final state is visible in textfile output.
func PublishStats(ctx context.Context, m *metrics.DatastoreMetrics, managers map[string]Manager) {
	publish := func() {
		for side, mgr := range managers {
			m.UpdateConnectionStats(side, mgr.Stats())
		}
	}

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		publish()
		select {
		case <-ctx.Done():
			publish()
			return
		case <-ticker.C:
		}
	}
}
