package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/logger"
)

// Sink receives finished reports
type Sink interface {
	Write(ctx context.Context, rep Report) error
}

// LogSink writes the summary, and optionally every unmigrated record, to a logger
type LogSink struct {
	Logger  logger.Logger
	Verbose bool
}

func (s LogSink) Write(_ context.Context, rep Report) error {
	sum := rep.Summary
	log := s.Logger.With(
		logger.String("run_id", sum.RunID),
		logger.String("kind", string(sum.Kind)))

	if s.Verbose {
		for _, u := range rep.Unmigrated {
			log.Warn("record not migrated",
				logger.String("source_id", u.SourceID),
				logger.String("label", u.Label),
				logger.String("state", u.State),
				logger.String("error_kind", u.Kind),
				logger.Strings("reasons", u.Reasons))
		}
	}

	log.Info("migration finished",
		logger.Int("total", sum.Total),
		logger.Int("migrated", sum.Migrated),
		logger.Int("already_migrated", sum.AlreadyMigrated),
		logger.Int("blocked", sum.Blocked),
		logger.Int("failed", sum.Failed),
		logger.Int("skipped_by_operator", sum.SkippedByOperator),
		logger.Bool("incomplete", sum.Incomplete),
		logger.Duration("duration", sum.Duration()))
	return nil
}

// Sheet names of the xlsx report
const (
	SheetSummary    = "Summary"
	SheetMigrated   = "Migrated"
	SheetUnmigrated = "Unmigrated"
)

// XLSXSink writes <dir>/<kind>_migration_report_<run id>.xlsx
type XLSXSink struct {
	Dir string
}

// Path returns the file a report is written to
func (s XLSXSink) Path(rep Report) string {
	name := fmt.Sprintf("%s_migration_report_%s.xlsx", rep.Summary.Kind, rep.Summary.RunID)
	return filepath.Join(s.Dir, name)
}

func (s XLSXSink) Write(_ context.Context, rep Report) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return reportError(err, "create_report_dir", s.Dir)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return reportError(err, "rename_sheet", SheetSummary)
	}
	sum := rep.Summary
	summaryRows := [][]any{
		{"Run ID", sum.RunID},
		{"Kind", string(sum.Kind)},
		{"Started", sum.StartTime.Format("2006-01-02 15:04:05")},
		{"Duration", sum.Duration().String()},
		{"Total", sum.Total},
		{"Migrated", sum.Migrated},
		{"Already migrated", sum.AlreadyMigrated},
		{"Blocked", sum.Blocked},
		{"Failed", sum.Failed},
		{"Skipped by operator", sum.SkippedByOperator},
		{"Incomplete", sum.Incomplete},
	}
	if err := writeRows(f, SheetSummary, summaryRows); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetMigrated); err != nil {
		return reportError(err, "create_sheet", SheetMigrated)
	}
	if err := writeRows(f, SheetMigrated, migratedRows(rep.Migrated)); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetUnmigrated); err != nil {
		return reportError(err, "create_sheet", SheetUnmigrated)
	}
	unmigrated := [][]any{{"source_id", "label", "state", "error_kind", "reasons"}}
	for _, u := range rep.Unmigrated {
		unmigrated = append(unmigrated, []any{u.SourceID, u.Label, u.State, u.Kind, strings.Join(u.Reasons, "; ")})
	}
	if err := writeRows(f, SheetUnmigrated, unmigrated); err != nil {
		return err
	}

	path := s.Path(rep)
	if err := f.SaveAs(path); err != nil {
		return reportError(err, "save_report", path)
	}
	return nil
}

// migratedRows uses the union of all field names as columns
func migratedRows(migrated []Migrated) [][]any {
	seen := make(map[string]struct{})
	var columns []string
	for _, m := range migrated {
		for k := range m.Fields {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}
	slices.Sort(columns)

	header := []any{"source_id", "destination_id"}
	for _, c := range columns {
		header = append(header, c)
	}
	rows := [][]any{header}
	for _, m := range migrated {
		row := []any{m.SourceID, m.DestinationID}
		for _, c := range columns {
			v, ok := m.Fields[c]
			if !ok || v == nil {
				v = ""
			}
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return reportError(err, "cell_name", sheet)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return reportError(err, "write_row", sheet)
		}
	}
	return nil
}

func reportError(err error, op, target string) error {
	return errors.New(err).
		Component("report").
		Category(errors.CategoryReport).
		Context("operation", op).
		Context("target", target).
		Build()
}
