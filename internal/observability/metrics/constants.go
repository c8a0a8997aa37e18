// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Record outcome label values
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeBlocked  = "blocked"
	OutcomeFailed   = "failed"
)

// Resolution result label values
const (
	ResolutionFound    = "found"
	ResolutionNotFound = "not_found"
	ResolutionFailed   = "failed"
	ResolutionCreated  = "created"
)

// Label value constants used for metric labels.
const (
	// LabelCommit is the operation label for commit operations.
	LabelCommit = "commit"
	// LabelRollback is the status label for rolled back transactions.
	LabelRollback = "rollback"
	// LabelSuccess is the status label for successful operations.
	LabelSuccess = "success"
	// LabelError is the status label for failed operations.
	LabelError = "error"
	// LabelHit is the result label for cache hits.
	LabelHit = "hit"
	// LabelMiss is the result label for cache misses.
	LabelMiss = "miss"
)

// Histogram bucket configuration constants.
const (
	// BucketStart100us is the starting bucket for 0.1ms histograms (0.1ms to ~400ms range).
	BucketStart100us = 0.0001
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
	// BucketCount15 defines 15 exponential buckets.
	BucketCount15 = 15
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics endpoint.
const ShutdownTimeout = 5 * time.Second
