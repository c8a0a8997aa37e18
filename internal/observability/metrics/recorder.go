// Package metrics provides Prometheus collectors for migration runs.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it instead of concrete collectors so tests can
// substitute a recording fake.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g. ("certificates", "migrated").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type, e.g. ("certificates", "dependency_missing").
	RecordError(operation, errorType string)
}

// NoOpRecorder is a no-op implementation of the Recorder interface.
// It is used when metrics are disabled.
type NoOpRecorder struct{}

// RecordOperation does nothing.
func (NoOpRecorder) RecordOperation(operation, status string) {}

// RecordDuration does nothing.
func (NoOpRecorder) RecordDuration(operation string, seconds float64) {}

// RecordError does nothing.
func (NoOpRecorder) RecordError(operation, errorType string) {}
