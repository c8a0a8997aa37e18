package migration

import (
	"fmt"

	"github.com/tphakala/certmigrate/internal/errors"
	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/resolver"
)

// ErrorKind classifies why a record was not migrated
type ErrorKind string

const (
	KindAlreadyMigrated     ErrorKind = "already_migrated"
	KindDependencyMissing   ErrorKind = "dependency_missing"
	KindDependencyAmbiguous ErrorKind = "dependency_ambiguous"
	KindPreconditionFatal   ErrorKind = "precondition_fatal"
	KindWriteError          ErrorKind = "write_error"
	KindMappingConflict     ErrorKind = "mapping_conflict"
)

// Sentinels matched by errors.Is against any *RecordError of the same kind
var (
	ErrAlreadyMigrated     = errors.NewStd("already migrated")
	ErrDependencyMissing   = errors.NewStd("dependency missing")
	ErrDependencyAmbiguous = errors.NewStd("dependency ambiguous")
	ErrPreconditionFatal   = errors.NewStd("precondition failed")
	ErrWrite               = errors.NewStd("write failed")
	ErrMappingConflict     = errors.NewStd("mapping conflict")
)

// Reasons reported for failures that have no resolver reason
const (
	ReasonAlreadyMigrated = "Already migrated"
	ReasonSourceRead      = "Source read failed"
	ReasonDeviceModel     = "Device model not found"
	ReasonMissingEmail    = "Email is empty"
	ReasonMissingChassis  = "Chassis number is empty"
	ReasonDefaultActor    = "Default actor not found"
	ReasonMappingConflict = "Mapping conflict"
	ReasonWriteFailed     = "Write failed"
)

// RoleDeviceModel is the dependency role of the device catalog entry
const RoleDeviceModel = "device_model"

// RecordError is the reason a single record was not migrated
type RecordError struct {
	Kind   ErrorKind
	Role   string // dependency role, empty when not dependency related
	Reason string // operator facing reason, e.g. "Customer not found"
	Err    error
}

func (e *RecordError) Error() string {
	msg := string(e.Kind)
	if e.Role != "" {
		msg += "(" + e.Role + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RecordError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind. A mapping conflict is also a
// write error.
func (e *RecordError) Is(target error) bool {
	switch target {
	case ErrAlreadyMigrated:
		return e.Kind == KindAlreadyMigrated
	case ErrDependencyMissing:
		return e.Kind == KindDependencyMissing
	case ErrDependencyAmbiguous:
		return e.Kind == KindDependencyAmbiguous
	case ErrPreconditionFatal:
		return e.Kind == KindPreconditionFatal
	case ErrWrite:
		return e.Kind == KindWriteError || e.Kind == KindMappingConflict
	case ErrMappingConflict:
		return e.Kind == KindMappingConflict
	}
	return false
}

// AlreadyMigrated reports a record whose source id is already mapped
func AlreadyMigrated() *RecordError {
	return &RecordError{Kind: KindAlreadyMigrated, Reason: ReasonAlreadyMigrated}
}

// DependencyMissing reports an unresolved foreign reference
func DependencyMissing(role, reason string) *RecordError {
	return &RecordError{Kind: KindDependencyMissing, Role: role, Reason: reason}
}

// DependencyAmbiguous reports a failure inside a fallback rule
func DependencyAmbiguous(role, reason string, err error) *RecordError {
	return &RecordError{Kind: KindDependencyAmbiguous, Role: role, Reason: reason, Err: err}
}

// WriteError classifies a failed destination write. Mapping conflicts keep
// their own kind.
func WriteError(reason string, err error) *RecordError {
	if errors.Is(err, mapping.ErrConflict) {
		return &RecordError{Kind: KindMappingConflict, Reason: ReasonMappingConflict, Err: err}
	}
	if reason == "" {
		reason = ReasonWriteFailed
	}
	return &RecordError{Kind: KindWriteError, Reason: reason, Err: err}
}

// fromResult converts an unresolved resolver result
func fromResult(res resolver.Result) *RecordError {
	if res.Status == resolver.StatusFailed {
		return DependencyAmbiguous(string(res.Role), res.Reason, res.Err)
	}
	return DependencyMissing(string(res.Role), res.Reason)
}

// preconditionError is fatal for a whole run
func preconditionError(reason string, err error) error {
	return errors.New(&RecordError{Kind: KindPreconditionFatal, Reason: reason, Err: err}).
		Component("migration").
		Category(errors.CategoryMigration).
		Priority(errors.PriorityHigh).
		Build()
}

// recordFailure tags an unexpected failure with the record it belongs to, for logs
func recordFailure(err error, kind mapping.Kind, sourceID string) error {
	return errors.New(fmt.Errorf("migrate %s %s: %w", kind, sourceID, err)).
		Component("migration").
		Category(errors.CategoryMigration).
		RecordContext(string(kind), sourceID).
		Build()
}
