package conf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

const sqliteConfig = `
source:
  type: sqlite
  path: /tmp/legacy.db
destination:
  type: sqlite
  path: /tmp/dest.db
migration:
  workers: 8
  defaultactoremail: ops@example.com
`

func TestLoadAppliesDefaults(t *testing.T) {
	resetViper(t)

	settings, err := Load(writeConfig(t, sqliteConfig))
	require.NoError(t, err)

	assert.Equal(t, 8, settings.Migration.Workers)
	assert.Equal(t, ModeAutomated, settings.Migration.Mode)
	assert.Equal(t, "UAE", settings.Migration.Country)
	assert.Equal(t, "0000000000", settings.Migration.DefaultPhone)
	assert.Equal(t, FormatJSON, settings.Mapping.Format)
	assert.Equal(t, "mappings", settings.Mapping.Dir)
	assert.Same(t, settings, GetSettings())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	resetViper(t)
	t.Setenv("CERTMIGRATE_MIGRATION_WORKERS", "2")
	t.Setenv("CERTMIGRATE_MIGRATION_MODE", "interactive")

	settings, err := Load(writeConfig(t, sqliteConfig))
	require.NoError(t, err)

	assert.Equal(t, 2, settings.Migration.Workers)
	assert.Equal(t, ModeInteractive, settings.Migration.Mode)
}

func TestLoadRejectsInvalidEnvironment(t *testing.T) {
	resetViper(t)
	t.Setenv("CERTMIGRATE_MIGRATION_WORKERS", "zero")

	_, err := Load(writeConfig(t, sqliteConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CERTMIGRATE_MIGRATION_WORKERS")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	resetViper(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidateSettings(t *testing.T) {
	resetViper(t)
	base, err := Defaults()
	require.NoError(t, err)

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults are valid", func(*Settings) {}, ""},
		{"unknown driver", func(s *Settings) { s.Source.Type = "postgres" }, "source.type"},
		{"sqlite needs path", func(s *Settings) { s.Destination.Type = DriverSQLite }, "destination.path is required"},
		{"workers bounded", func(s *Settings) { s.Migration.Workers = 0 }, "migration.workers"},
		{"bad mode", func(s *Settings) { s.Migration.Mode = "batch" }, "migration.mode"},
		{"actor must be email", func(s *Settings) { s.Migration.DefaultActorEmail = "admin" }, "email address"},
		{"telemetry needs dsn", func(s *Settings) { s.Telemetry.Enabled = true }, "telemetry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := *base
			tt.mutate(&s)
			err := ValidateSettings(&s)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseSettings{
		Type:     DriverMySQL,
		Host:     "db.internal",
		Port:     3306,
		Username: "migrator",
		Password: "hunter2",
		Database: "legacy",
	}

	assert.Contains(t, db.DSN(), "migrator:hunter2@tcp(db.internal:3306)/legacy")
	assert.Contains(t, db.DSN(), "parseTime=true")
	assert.NotContains(t, db.SanitizedDSN(), "hunter2")
	assert.Contains(t, db.SanitizedDSN(), "migrator:****@tcp(db.internal:3306)/legacy")

	lite := DatabaseSettings{Type: DriverSQLite, Path: "/data/dest.db"}
	assert.Equal(t, "/data/dest.db?"+sqliteDSNParams, lite.DSN())
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	resetViper(t)
	settings, err := Defaults()
	require.NoError(t, err)
	settings.Migration.Workers = 6

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	viper.Reset()
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, loaded.Migration.Workers)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}
