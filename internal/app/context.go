package app

import (
	"github.com/tphakala/certmigrate/internal/buildinfo"
	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/observability"
)

// Context is shared by all CLI commands. Setup fills it once the config file
// location is known.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string
	Settings   *conf.Settings
	Logger     logger.Logger
	Metrics    *observability.Metrics

	central *logger.CentralLogger
}

// NewContext creates an empty context for the given build
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Setup loads the settings and creates the logger and metrics registry
func (c *Context) Setup() error {
	settings, err := conf.Load(c.ConfigFile)
	if err != nil {
		return err
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return err
	}
	metrics, err := observability.NewMetrics()
	if err != nil {
		_ = central.Close()
		return err
	}

	c.Settings = settings
	c.central = central
	c.Logger = central.Module("certmigrate")
	c.Metrics = metrics
	return nil
}

// Close flushes and closes the log outputs
func (c *Context) Close() {
	if c.central != nil {
		_ = c.central.Close()
	}
}
