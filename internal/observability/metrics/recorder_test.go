package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestRecorder is a test implementation of the Recorder interface.
// It captures all recorded metrics for verification in tests.
type TestRecorder struct {
	mu         sync.RWMutex
	operations map[string]map[string]int // operation -> status -> count
	durations  map[string][]float64      // operation -> list of durations
	errors     map[string]map[string]int // operation -> errorType -> count
}

// NewTestRecorder creates a new test recorder instance.
func NewTestRecorder() *TestRecorder {
	return &TestRecorder{
		operations: make(map[string]map[string]int),
		durations:  make(map[string][]float64),
		errors:     make(map[string]map[string]int),
	}
}

func (r *TestRecorder) RecordOperation(operation, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.operations[operation] == nil {
		r.operations[operation] = make(map[string]int)
	}
	r.operations[operation][status]++
}

func (r *TestRecorder) RecordDuration(operation string, seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[operation] = append(r.durations[operation], seconds)
}

func (r *TestRecorder) RecordError(operation, errorType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errors[operation] == nil {
		r.errors[operation] = make(map[string]int)
	}
	r.errors[operation][errorType]++
}

// GetOperationCount returns the count of a specific operation and status.
func (r *TestRecorder) GetOperationCount(operation, status string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.operations[operation][status]
}

// GetErrorCount returns the count of a specific error type for an operation.
func (r *TestRecorder) GetErrorCount(operation, errorType string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.errors[operation][errorType]
}

var (
	_ Recorder = (*TestRecorder)(nil)
	_ Recorder = NoOpRecorder{}
	_ Recorder = (*MigrationMetrics)(nil)
)

func TestRecorderImplementationsAgree(t *testing.T) {
	rec := NewTestRecorder()
	var recorders = []Recorder{rec, NoOpRecorder{}}
	for _, r := range recorders {
		r.RecordOperation("users", OutcomeMigrated)
		r.RecordError("users", "write_error")
		r.RecordDuration("users", 0.01)
	}
	assert.Equal(t, 1, rec.GetOperationCount("users", OutcomeMigrated))
	assert.Equal(t, 1, rec.GetErrorCount("users", "write_error"))
	assert.Equal(t, 0, rec.GetErrorCount("users", "mapping_conflict"))
}
