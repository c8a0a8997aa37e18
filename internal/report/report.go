// Package report accumulates the outcomes of a migration run and hands the
// finished report to sinks.
package report

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
)

// Migrated is a record that now has a mapping entry
type Migrated struct {
	SourceID      string
	DestinationID string
	Fields        map[string]any
}

// Unmigrated is a record that was skipped, blocked or failed
type Unmigrated struct {
	SourceID string
	Label    string
	Kind     string // error kind, or "skipped_by_operator"
	State    string
	Reasons  []string
}

// KindSkippedByOperator marks records the operator chose to skip
const KindSkippedByOperator = "skipped_by_operator"

// Summary holds the counters of a run
type Summary struct {
	RunID             string
	Kind              mapping.Kind
	StartTime         time.Time
	EndTime           time.Time
	Total             int
	Migrated          int
	AlreadyMigrated   int
	Blocked           int
	Failed            int
	SkippedByOperator int
	Incomplete        bool
}

// Duration returns the wall time of the run
func (s Summary) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// Unmigrated returns the number of records without a new mapping entry,
// excluding records that were migrated by an earlier run
func (s Summary) Unmigrated() int {
	return s.Blocked + s.Failed + s.SkippedByOperator
}

func (s Summary) String() string {
	return fmt.Sprintf("%s: %d migrated, %d already migrated, %d blocked, %d failed, %d skipped by operator in %s",
		s.Kind, s.Migrated, s.AlreadyMigrated, s.Blocked, s.Failed, s.SkippedByOperator,
		s.Duration().Round(time.Millisecond))
}

// Report is the immutable result of a run
type Report struct {
	Summary    Summary
	Migrated   []Migrated
	Unmigrated []Unmigrated
}

// Reporter is a thread-safe outcome accumulator for one kind
type Reporter struct {
	mu         sync.Mutex
	summary    Summary
	migrated   []Migrated
	unmigrated []Unmigrated
	now        func() time.Time
}

// New starts a report for kind. An empty runID gets a fresh uuid.
func New(runID string, kind mapping.Kind) *Reporter {
	if runID == "" {
		runID = uuid.NewString()
	}
	r := &Reporter{now: time.Now}
	r.summary = Summary{RunID: runID, Kind: kind, StartTime: r.now()}
	return r
}

// Add records the terminal outcome of one record
func (r *Reporter) Add(out migration.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Total++
	switch out.State {
	case migration.StateMigrated:
		r.summary.Migrated++
		r.migrated = append(r.migrated, Migrated{
			SourceID:      out.Record.SourceID,
			DestinationID: out.DestinationID,
			Fields:        out.Fields,
		})
		return
	case migration.StateSkipped:
		r.summary.AlreadyMigrated++
		return
	case migration.StateBlocked:
		r.summary.Blocked++
	default:
		r.summary.Failed++
	}

	kind := ""
	if len(out.Errors) > 0 {
		kind = string(out.Errors[0].Kind)
	}
	r.unmigrated = append(r.unmigrated, Unmigrated{
		SourceID: out.Record.SourceID,
		Label:    out.Record.Label,
		Kind:     kind,
		State:    out.State.String(),
		Reasons:  out.Reasons(),
	})
}

// SkipByOperator records a record the operator skipped in interactive mode
func (r *Reporter) SkipByOperator(rec migration.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summary.Total++
	r.summary.SkippedByOperator++
	r.unmigrated = append(r.unmigrated, Unmigrated{
		SourceID: rec.SourceID,
		Label:    rec.Label,
		Kind:     KindSkippedByOperator,
		State:    migration.StateSkipped.String(),
		Reasons:  []string{"Skipped by operator"},
	})
}

// MarkIncomplete flags the run as interrupted or aborted
func (r *Reporter) MarkIncomplete() {
	r.mu.Lock()
	r.summary.Incomplete = true
	r.mu.Unlock()
}

// Result closes the summary and returns a copy of everything collected
func (r *Reporter) Result() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.summary
	s.EndTime = r.now()
	return Report{
		Summary:    s,
		Migrated:   append([]Migrated(nil), r.migrated...),
		Unmigrated: append([]Unmigrated(nil), r.unmigrated...),
	}
}
