// Package telemetry provides opt-in, privacy-filtered error reporting to Sentry
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
)

const flushTimeout = 2 * time.Second

// allowedExtras are the only event extras that survive filtering
var allowedExtras = map[string]struct{}{
	"error_type":  {},
	"component":   {},
	"entity_kind": {},
	"source_id":   {},
}

// Options tweak Sentry initialization, mostly for tests
type Options struct {
	Release   string
	RunID     string
	Transport sentry.Transport
}

// InitSentry initializes the Sentry SDK when telemetry is enabled and installs
// the errors package reporter, so every EnhancedError built afterwards is
// forwarded. The returned flush func must be called before exit.
func InitSentry(settings *conf.TelemetrySettings, opts Options, log logger.Logger) (flush func(), err error) {
	noop := func() {}
	if !settings.Enabled {
		log.Debug("sentry telemetry is disabled (opt-in required)")
		return noop, nil
	}
	if settings.DSN == "" && opts.Transport == nil {
		return noop, errors.New(fmt.Errorf("telemetry enabled but no dsn configured")).
			Category(errors.CategoryConfiguration).
			Build()
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       settings.SampleRate,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "", // never leak the hostname
		Release:          opts.Release,
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return noop, fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		if opts.RunID != "" {
			scope.SetTag("run_id", opts.RunID)
		}
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))

	log.Info("sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.Float64("sample_rate", settings.SampleRate))

	return func() {
		if !sentry.Flush(flushTimeout) {
			log.Warn("sentry flush timed out", logger.Duration("timeout", flushTimeout))
		}
	}, nil
}

// applyPrivacyFilters strips user, host and runtime data from an event
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if _, ok := allowedExtras[k]; !ok {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	event.Message = logger.RedactSensitiveData(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = logger.RedactSensitiveData(event.Exception[i].Value)
	}
	return event
}
