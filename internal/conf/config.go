// Package conf loads certmigrate settings from config.yaml, environment variables and CLI flags.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
)

// Database driver names
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Batch runner delivery modes
const (
	ModeAutomated   = "automated"
	ModeInteractive = "interactive"
)

// Migration defaults applied when the settings leave them empty
const (
	DefaultCountry    = "UAE"
	DefaultDealerRole = "dealer"
	DefaultPhone      = "0000000000"
)

// Mapping store serialization formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// DatabaseSettings describes one side of the migration
type DatabaseSettings struct {
	Type     string `yaml:"type" mapstructure:"type" validate:"oneof=sqlite mysql"`
	Path     string `yaml:"path" mapstructure:"path"` // sqlite database file
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`

	// AutoMigrate creates missing tables before a run; meant for rehearsals
	// against an empty destination
	AutoMigrate bool `yaml:"automigrate" mapstructure:"automigrate"`

	MaxOpenConns       int           `yaml:"maxopenconns" mapstructure:"maxopenconns" validate:"min=0"`
	MaxIdleConns       int           `yaml:"maxidleconns" mapstructure:"maxidleconns" validate:"min=0"`
	ConnMaxLifetime    time.Duration `yaml:"connmaxlifetime" mapstructure:"connmaxlifetime"`
	SlowQueryThreshold time.Duration `yaml:"slowquerythreshold" mapstructure:"slowquerythreshold"`
}

// MappingSettings controls where mapping stores live
type MappingSettings struct {
	Dir    string `yaml:"dir" mapstructure:"dir" validate:"required"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=json yaml"`
}

// MigrationSettings tunes the batch runner and entity migrators
type MigrationSettings struct {
	Workers           int           `yaml:"workers" mapstructure:"workers" validate:"min=1,max=64"`
	Mode              string        `yaml:"mode" mapstructure:"mode" validate:"oneof=automated interactive"`
	Bulk              bool          `yaml:"bulk" mapstructure:"bulk"`                            // bulk insert certificates in automated mode
	BatchSize         int           `yaml:"batchsize" mapstructure:"batchsize" validate:"min=1"` // source read page size
	DefaultActorEmail string        `yaml:"defaultactoremail" mapstructure:"defaultactoremail" validate:"required,email"`
	Country           string        `yaml:"country" mapstructure:"country" validate:"required"`
	DealerRole        string        `yaml:"dealerrole" mapstructure:"dealerrole" validate:"required"`
	DefaultPhone      string        `yaml:"defaultphone" mapstructure:"defaultphone"`
	CacheTTL          time.Duration `yaml:"cachettl" mapstructure:"cachettl"`
}

// ReportSettings configures report sinks
type ReportSettings struct {
	Dir string `yaml:"dir" mapstructure:"dir"` // xlsx reports are written here, empty disables
	Log bool   `yaml:"log" mapstructure:"log"` // log every unmigrated record
}

// MetricsSettings configures Prometheus metrics
type MetricsSettings struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Listen       string `yaml:"listen" mapstructure:"listen"`             // optional /metrics endpoint during a run
	TextfilePath string `yaml:"textfilepath" mapstructure:"textfilepath"` // node exporter textfile written at the end of a run
}

// TelemetrySettings configures Sentry error reporting
type TelemetrySettings struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	DSN         string  `yaml:"dsn" mapstructure:"dsn"`
	Environment string  `yaml:"environment" mapstructure:"environment"`
	SampleRate  float64 `yaml:"samplerate" mapstructure:"samplerate" validate:"min=0,max=1"`
}

// Settings is the root configuration
type Settings struct {
	Debug bool `yaml:"debug" mapstructure:"debug"`

	Source      DatabaseSettings     `yaml:"source" mapstructure:"source"`
	Destination DatabaseSettings     `yaml:"destination" mapstructure:"destination"`
	Mapping     MappingSettings      `yaml:"mapping" mapstructure:"mapping"`
	Migration   MigrationSettings    `yaml:"migration" mapstructure:"migration"`
	Report      ReportSettings       `yaml:"report" mapstructure:"report"`
	Metrics     MetricsSettings      `yaml:"metrics" mapstructure:"metrics"`
	Telemetry   TelemetrySettings    `yaml:"telemetry" mapstructure:"telemetry"`
	Logging     logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the config file (explicit path or the default search paths), applies
// environment overrides and validates the result.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// initViper registers defaults, env bindings and reads the config file if present.
func initViper(configFile string) error {
	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		return err
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			viper.AddConfigPath(path)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && configFile == "" {
			// Running on defaults + env is fine, every setting has a default
			return nil
		}
		return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
			Category(errors.CategoryConfiguration).
			FileContext(configFile).
			Build()
	}

	return nil
}

// GetSettings returns the settings loaded by the last successful Load
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, in order
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "certmigrate"))
	}
	return append(paths, "/etc/certmigrate")
}

// SaveYAMLConfig writes settings to configPath atomically (temp file, then rename)
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.FileError(fmt.Errorf("error creating config directory: %w", err), configPath)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return errors.FileError(fmt.Errorf("error creating temporary file: %w", err), configPath)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return errors.FileError(fmt.Errorf("error writing to temporary file: %w", err), configPath)
	}
	if err := tempFile.Close(); err != nil {
		return errors.FileError(fmt.Errorf("error closing temporary file: %w", err), configPath)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return errors.FileError(fmt.Errorf("error replacing config file: %w", err), configPath)
	}

	return nil
}
