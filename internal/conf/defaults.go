package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers a default for every setting so a run needs no config file
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("source.type", DriverMySQL)
	viper.SetDefault("source.host", "localhost")
	viper.SetDefault("source.port", 3306)
	viper.SetDefault("source.username", "root")
	viper.SetDefault("source.database", "legacy")
	viper.SetDefault("source.maxopenconns", 8)
	viper.SetDefault("source.maxidleconns", 4)
	viper.SetDefault("source.connmaxlifetime", 30*time.Minute)
	viper.SetDefault("source.slowquerythreshold", 500*time.Millisecond)

	viper.SetDefault("destination.type", DriverMySQL)
	viper.SetDefault("destination.host", "localhost")
	viper.SetDefault("destination.port", 3306)
	viper.SetDefault("destination.username", "root")
	viper.SetDefault("destination.database", "certificates")
	viper.SetDefault("destination.maxopenconns", 16)
	viper.SetDefault("destination.maxidleconns", 8)
	viper.SetDefault("destination.connmaxlifetime", 30*time.Minute)
	viper.SetDefault("destination.slowquerythreshold", 500*time.Millisecond)
	viper.SetDefault("destination.automigrate", false)

	viper.SetDefault("mapping.dir", "mappings")
	viper.SetDefault("mapping.format", FormatJSON)

	viper.SetDefault("migration.workers", 4)
	viper.SetDefault("migration.mode", ModeAutomated)
	viper.SetDefault("migration.bulk", false)
	viper.SetDefault("migration.batchsize", 500)
	viper.SetDefault("migration.defaultactoremail", "admin@example.com")
	viper.SetDefault("migration.country", DefaultCountry)
	viper.SetDefault("migration.dealerrole", DefaultDealerRole)
	viper.SetDefault("migration.defaultphone", DefaultPhone)
	viper.SetDefault("migration.cachettl", 10*time.Minute)

	viper.SetDefault("report.dir", "reports")
	viper.SetDefault("report.log", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.listen", "")
	viper.SetDefault("metrics.textfilepath", "")

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.dsn", "")
	viper.SetDefault("telemetry.environment", "production")
	viper.SetDefault("telemetry.samplerate", 1.0)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/certmigrate.log")
	viper.SetDefault("logging.file_output.level", "debug")
}

// Defaults returns a Settings value populated only from registered defaults.
// Used by `config init` to write a starter config.yaml.
func Defaults() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	setDefaultConfig()
	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, err
	}
	return settings, nil
}
