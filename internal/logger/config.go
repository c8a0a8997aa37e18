package logger

import "io"

// LoggingConfig holds logging configuration, loaded from the "logging" section of config.yaml
type LoggingConfig struct {
	DefaultLevel  string                  `yaml:"default_level" mapstructure:"default_level"` // default log level for all modules
	Timezone      string                  `yaml:"timezone" mapstructure:"timezone"`           // "Local", "UTC", or IANA timezone name
	Console       *ConsoleOutput          `yaml:"console" mapstructure:"console"`
	FileOutput    *FileOutput             `yaml:"file_output" mapstructure:"file_output"`
	ModuleOutputs map[string]ModuleOutput `yaml:"modules" mapstructure:"modules"`             // per-module output configuration
	ModuleLevels  map[string]string       `yaml:"module_levels" mapstructure:"module_levels"` // per-module log levels
}

// ConsoleOutput configures console logging
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Level   string `yaml:"level" mapstructure:"level"`
	JSON    bool   `yaml:"json" mapstructure:"json"` // emit JSON instead of text

	// Writer overrides the destination, os.Stderr when nil
	Writer io.Writer `yaml:"-" mapstructure:"-"`
}

// FileOutput configures the main JSON log file
type FileOutput struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
	Level   string `yaml:"level" mapstructure:"level"`
}

// ModuleOutput routes one module to a dedicated file
type ModuleOutput struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	FilePath    string `yaml:"file_path" mapstructure:"file_path"`
	Level       string `yaml:"level" mapstructure:"level"`
	ConsoleAlso bool   `yaml:"console_also" mapstructure:"console_also"`
}

const (
	DefaultLogLevel = "info"
	DefaultLogPath  = "logs/certmigrate.log"
	DefaultSQLPath  = "logs/sql.log"
)

// applyConfigDefaults fills nil sections so partial configs still log somewhere
func applyConfigDefaults(cfg *LoggingConfig) {
	if cfg == nil {
		return
	}

	if cfg.DefaultLevel == "" {
		cfg.DefaultLevel = DefaultLogLevel
	}

	if cfg.Console == nil {
		cfg.Console = &ConsoleOutput{Enabled: true, Level: cfg.DefaultLevel}
	}

	if cfg.FileOutput == nil {
		cfg.FileOutput = &FileOutput{Enabled: false, Path: DefaultLogPath, Level: cfg.DefaultLevel}
	}

	if cfg.ModuleOutputs == nil {
		cfg.ModuleOutputs = make(map[string]ModuleOutput)
	}

	// SQL traces are noisy, keep them out of the main log when files are enabled
	if cfg.FileOutput.Enabled {
		if _, exists := cfg.ModuleOutputs["sql"]; !exists {
			cfg.ModuleOutputs["sql"] = ModuleOutput{
				Enabled:  true,
				FilePath: DefaultSQLPath,
				Level:    DefaultLogLevel,
			}
		}
	}
}
