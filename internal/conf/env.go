package conf

import (
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment override, e.g. CERTMIGRATE_MIGRATION_WORKERS
const EnvPrefix = "CERTMIGRATE"

type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings lists the variables operators set most often, so they are
// validated before viper quietly coerces them
func getEnvBindings() []envBinding {
	return []envBinding{
		{"source.type", "CERTMIGRATE_SOURCE_TYPE", validateEnvDriver},
		{"source.password", "CERTMIGRATE_SOURCE_PASSWORD", nil},
		{"source.path", "CERTMIGRATE_SOURCE_PATH", validateEnvPath},
		{"destination.type", "CERTMIGRATE_DESTINATION_TYPE", validateEnvDriver},
		{"destination.password", "CERTMIGRATE_DESTINATION_PASSWORD", nil},
		{"destination.path", "CERTMIGRATE_DESTINATION_PATH", validateEnvPath},
		{"mapping.dir", "CERTMIGRATE_MAPPING_DIR", validateEnvPath},
		{"migration.workers", "CERTMIGRATE_MIGRATION_WORKERS", validateEnvWorkers},
		{"migration.defaultactoremail", "CERTMIGRATE_DEFAULT_ACTOR_EMAIL", validateEnvEmail},
		{"telemetry.dsn", "CERTMIGRATE_SENTRY_DSN", nil},
		{"debug", "CERTMIGRATE_DEBUG", validateEnvBool},
	}
}

func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch strings.ToLower(value) {
	case DriverSQLite, DriverMySQL:
		return nil
	default:
		return fmt.Errorf("must be %q or %q", DriverSQLite, DriverMySQL)
	}
}

func validateEnvWorkers(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 || n > 64 {
		return fmt.Errorf("must be between 1 and 64, got %d", n)
	}
	return nil
}

func validateEnvEmail(value string) error {
	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("must be an email address")
	}
	return nil
}

func validateEnvPath(value string) error {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(value)), "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected: %s", value)
		}
	}
	return nil
}

// configureEnvironmentVariables enables CERTMIGRATE_* overrides for every key
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	return bindEnvVars()
}
