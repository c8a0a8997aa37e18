// Package migrate provides the migrate command
package migrate

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/certmigrate/internal/app"
	"github.com/tphakala/certmigrate/internal/conf"
	"github.com/tphakala/certmigrate/internal/datastore"
	"github.com/tphakala/certmigrate/internal/logger"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
	"github.com/tphakala/certmigrate/internal/observability"
	"github.com/tphakala/certmigrate/internal/report"
	"github.com/tphakala/certmigrate/internal/runner"
	"github.com/tphakala/certmigrate/internal/telemetry"
)

const allKinds = "all"

// Command creates and returns the migrate command
func Command(ctx *app.Context) *cobra.Command {
	validArgs := []string{allKinds}
	for _, k := range migration.Order {
		validArgs = append(validArgs, string(k))
	}

	cmd := &cobra.Command{
		Use:   "migrate <kind>|all",
		Short: "Migrate one entity kind, or every kind in dependency order",
		Long: `Migrate reads legacy records of the given kind, skips those already recorded in
the mapping store, and creates the matching destination rows. With "all" the kinds
run in dependency order and the run stops at the first kind that does not complete.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: validArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(args[0])
			if err != nil {
				return err
			}
			if interactive, _ := cmd.Flags().GetBool("interactive"); interactive {
				ctx.Settings.Migration.Mode = conf.ModeInteractive
			}
			return run(cmd.Context(), ctx, kinds, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	setupFlags(cmd)
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int("workers", runner.DefaultWorkers, "Number of records migrated concurrently")
	flags.String("mode", conf.ModeAutomated, "Run mode: automated or interactive")
	flags.BoolP("interactive", "i", false, "Ask before migrating each record (same as --mode interactive)")
	flags.Bool("bulk", false, "Insert prepared certificates in one batch")
	flags.Bool("auto-migrate", false, "Create missing destination tables before migrating")
	flags.String("report-dir", "", "Write xlsx reports to this directory")

	_ = viper.BindPFlag("migration.workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("migration.mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("migration.bulk", flags.Lookup("bulk"))
	_ = viper.BindPFlag("destination.automigrate", flags.Lookup("auto-migrate"))
	_ = viper.BindPFlag("report.dir", flags.Lookup("report-dir"))
}

// parseKinds expands "all" into the dependency order
func parseKinds(arg string) ([]mapping.Kind, error) {
	if strings.EqualFold(strings.TrimSpace(arg), allKinds) {
		return migration.Order, nil
	}
	kind, err := mapping.ParseKind(arg)
	if err != nil {
		return nil, err
	}
	return []mapping.Kind{kind}, nil
}

func run(ctx context.Context, appCtx *app.Context, kinds []mapping.Kind, in io.Reader, out io.Writer) error {
	settings := appCtx.Settings

	session, err := app.Open(ctx, settings, appCtx.Metrics, appCtx.Logger)
	if err != nil {
		return err
	}
	defer session.Close()

	ctx = logger.WithTraceID(ctx, session.RunID)
	log := appCtx.Logger.WithContext(ctx)

	flush, err := telemetry.InitSentry(&settings.Telemetry, telemetry.Options{
		Release: appCtx.Build.Release(),
		RunID:   session.RunID,
	}, log)
	if err != nil {
		log.Warn("telemetry disabled", logger.Error(err))
	} else {
		defer flush()
	}

	stopMetrics := startMetrics(ctx, settings, appCtx.Metrics, session, log)
	defer stopMetrics()

	r := runner.New(session.Stores, runner.Options{
		Workers:  settings.Migration.Workers,
		Mode:     settings.Migration.Mode,
		Bulk:     settings.Migration.Bulk,
		Prompter: runner.NewLinePrompter(in, out),
		RunID:    session.RunID,
		Logger:   log,
		Metrics:  appCtx.Metrics.Migration,
	})

	sinks := []report.Sink{report.LogSink{Logger: log, Verbose: settings.Report.Log}}
	if settings.Report.Dir != "" {
		sinks = append(sinks, report.XLSXSink{Dir: settings.Report.Dir})
	}

	// precondition failures abort before any kind runs
	migrators := make([]migration.Migrator, 0, len(kinds))
	for _, kind := range kinds {
		m, err := migration.New(kind, session.Env)
		if err != nil {
			return err
		}
		migrators = append(migrators, m)
	}

	var runErr error
	for _, m := range migrators {
		rep, err := r.Run(ctx, m)
		writeReports(ctx, sinks, rep, log)
		_, _ = fmt.Fprintln(out, rep.Summary)
		if err != nil {
			runErr = err
			break
		}
	}

	if path := settings.Metrics.TextfilePath; settings.Metrics.Enabled && path != "" {
		if err := appCtx.Metrics.WriteTextfile(path); err != nil {
			log.Warn("failed to write metrics textfile", logger.String("path", path), logger.Error(err))
		}
	}
	return runErr
}

// writeReports hands the report to every sink; a failing sink does not stop the others
func writeReports(ctx context.Context, sinks []report.Sink, rep report.Report, log logger.Logger) {
	ctx = context.WithoutCancel(ctx)
	for _, sink := range sinks {
		if err := sink.Write(ctx, rep); err != nil {
			log.Error("failed to write migration report",
				logger.String("kind", string(rep.Summary.Kind)),
				logger.Error(err))
		}
	}
}

// startMetrics publishes pool statistics and serves /metrics when configured.
// The returned func stops both.
func startMetrics(ctx context.Context, settings *conf.Settings, metrics *observability.Metrics, session *app.Session, log logger.Logger) func() {
	statsCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		datastore.PublishStats(statsCtx, metrics.Datastore, session.Managers())
	}()

	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled && settings.Metrics.Listen != "" {
		ep, err := observability.NewEndpoint(settings.Metrics.Listen, metrics, log)
		if err == nil {
			err = ep.Start(statsCtx)
		}
		if err != nil {
			log.Warn("metrics endpoint not started", logger.String("listen", settings.Metrics.Listen), logger.Error(err))
		} else {
			endpoint = ep
		}
	}

	return func() {
		cancel()
		<-done
		if endpoint != nil {
			endpoint.Shutdown()
		}
	}
}
