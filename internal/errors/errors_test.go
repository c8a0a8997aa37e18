package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	reported []*EnhancedError
}

func (r *recordingReporter) ReportError(ee *EnhancedError) {
	r.reported = append(r.reported, ee)
	ee.MarkReported()
}

func (r *recordingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderKeepsExplicitMetadata(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("persist %s", "users").
		Component("mapping").
		Category(CategoryMapping).
		Priority(PriorityHigh).
		RecordContext("users", "42").
		Build()

	assert.Equal(t, "mapping", ee.GetComponent())
	assert.Equal(t, CategoryMapping, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	ctx := ee.GetContext()
	assert.Equal(t, "users", ctx["entity_kind"])
	assert.Equal(t, "42", ctx["source_id"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestEnhancedErrorUnwrapsToCause(t *testing.T) {
	sentinel := NewStd("sentinel")
	wrapped := New(fmt.Errorf("outer: %w", sentinel)).Category(CategoryDatabase).Build()

	require.ErrorIs(t, wrapped, sentinel)
	assert.True(t, IsCategory(wrapped, CategoryDatabase))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, Is(wrapped, &EnhancedError{Category: CategoryDatabase}))
}

func TestReporterReceivesErrorsWhenActive(t *testing.T) {
	rec := &recordingReporter{}
	SetTelemetryReporter(rec)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("mapping file truncated")).Build()

	require.Len(t, rec.reported, 1)
	assert.True(t, ee.IsReported())
	assert.Equal(t, CategoryMapping, ee.Category)
}

func TestDetectCategoryHeuristics(t *testing.T) {
	tests := []struct {
		msg       string
		component string
		want      ErrorCategory
	}{
		{"Duplicate entry 'a@b.c' for key 'email'", "", CategoryConflict},
		{"rename temp file", "", CategoryFileIO},
		{"connection refused", "", CategoryNetwork},
		{"invalid worker count", "", CategoryValidation},
		{"record exploded", "datastore", CategoryDatabase},
		{"record exploded", "resolver", CategoryResolution},
		{"record exploded", "", CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.msg+"/"+tt.component, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(NewStd(tt.msg), tt.component))
		})
	}
}

func TestBasicScrub(t *testing.T) {
	got := basicScrub("dial root:hunter2@tcp(db:3306)/legacy failed for ops@example.com")
	assert.NotContains(t, got, "hunter2")
	assert.NotContains(t, got, "ops@example.com")
	assert.Contains(t, got, "root:[REDACTED]@tcp(db:3306)")

	got = basicScrub("callback https://api.example.com/hook?token=abc")
	assert.Equal(t, "callback https://api.example.com/hook?[REDACTED]", got)
}

func TestGenerateErrorTitle(t *testing.T) {
	ee := New(NewStd("x")).
		Component("mapping").
		Category(CategoryMapping).
		Timing("persist_store", 0).
		Build()
	assert.Equal(t, "Mapping Mapping Store Error Persist Store", generateErrorTitle(ee))
}
