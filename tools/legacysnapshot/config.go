package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/certmigrate/internal/conf"
)

// Config holds the configuration for the snapshot tool.
type Config struct {
	// Target snapshot
	SQLitePath string

	// Source database - either DSN or individual components
	MySQLDSN      string
	MySQLHost     string
	MySQLPort     int
	MySQLUser     string
	MySQLPass     string
	MySQLDatabase string

	// Copy options
	BatchSize  int
	Clean      bool
	SkipVerify bool
	Verbose    bool

	// Config file path for fallback
	ConfigPath string
}

// Load validates the configuration, falling back to the source section of the
// certmigrate config.yaml when no MySQL connection was given.
func (c *Config) Load() error {
	if c.MySQLDSN == "" && c.MySQLHost == "" {
		if err := c.loadFromConfigFile(); err != nil {
			return fmt.Errorf("--mysql-dsn or --mysql-host is required (or provide config.yaml): %w", err)
		}
	}
	if c.MySQLDSN == "" && c.MySQLHost == "" {
		return fmt.Errorf("config file has no MySQL source, use --mysql-dsn or --mysql-host")
	}

	if c.SQLitePath == "" {
		return fmt.Errorf("--sqlite-path must not be empty")
	}

	if c.BatchSize < 1 {
		return fmt.Errorf("batch-size must be at least 1")
	}
	if c.BatchSize > 10000 {
		return fmt.Errorf("batch-size too large (max 10000)")
	}
	return nil
}

// loadFromConfigFile reads the source connection from a certmigrate config file.
func (c *Config) loadFromConfigFile() error {
	v := viper.New()

	if c.ConfigPath != "" {
		v.SetConfigFile(c.ConfigPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range conf.GetDefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if !strings.EqualFold(v.GetString("source.type"), conf.DriverMySQL) {
		return nil
	}
	c.MySQLHost = v.GetString("source.host")
	c.MySQLPort = v.GetInt("source.port")
	if c.MySQLPort == 0 {
		c.MySQLPort = 3306
	}
	c.MySQLUser = v.GetString("source.username")
	c.MySQLPass = v.GetString("source.password")
	c.MySQLDatabase = v.GetString("source.database")
	return nil
}

// GetMySQLDSN returns the MySQL DSN string.
// If MySQLDSN is set directly, it's returned as-is.
// Otherwise, a DSN is constructed from individual components.
func (c *Config) GetMySQLDSN() string {
	if c.MySQLDSN != "" {
		return c.MySQLDSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.MySQLUser,
		c.MySQLPass,
		c.MySQLHost,
		c.MySQLPort,
		c.MySQLDatabase,
	)
}

// GetSanitizedMySQLDSN returns the MySQL DSN with password masked for logging.
func (c *Config) GetSanitizedMySQLDSN() string {
	dsn := c.GetMySQLDSN()

	// Format: user:password@tcp(host:port)/database
	if idx := strings.Index(dsn, ":"); idx != -1 {
		if atIdx := strings.LastIndex(dsn, "@"); atIdx != -1 && atIdx > idx {
			return dsn[:idx+1] + "****" + dsn[atIdx:]
		}
	}
	return dsn
}

// SourceDialector opens the legacy MySQL database
func (c *Config) SourceDialector() gorm.Dialector {
	return mysql.Open(c.GetMySQLDSN())
}

// TargetDialector opens the snapshot file
func (c *Config) TargetDialector() gorm.Dialector {
	return sqlite.Open(c.SQLitePath)
}
