// Database error helpers
package datastore

import (
	"strings"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/errors"
)

// dbError creates a properly categorized database error with connection context
func dbError(err error, operation, side string, settings *conf.DatabaseSettings) error {
	priority := errors.PriorityMedium
	category := errors.CategoryDatabase

	switch {
	case isDatabaseCorruption(err):
		priority = errors.PriorityCritical
	case isDiskFull(err):
		priority = errors.PriorityCritical
		category = errors.CategorySystem
	}

	return errors.New(err).
		Component("datastore").
		Category(category).
		Priority(priority).
		Context("operation", operation).
		Context("side", side).
		Context("driver", settings.Type).
		Context("dsn", settings.SanitizedDSN()).
		Build()
}

// isDatabaseCorruption checks if an error indicates a damaged SQLite file
func isDatabaseCorruption(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "corrupt") ||
		strings.Contains(errStr, "file is not a database")
}

func isDiskFull(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "no space") ||
		strings.Contains(errStr, "out of space")
}
