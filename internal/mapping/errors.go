package mapping

import (
	"fmt"

	"github.com/tphakala/certmigrate/internal/errors"
)

// ErrConflict matches every *ConflictError via errors.Is
var ErrConflict = errors.NewStd("mapping conflict")

// ConflictError reports a Put whose pairing contradicts an existing entry.
// The store is never modified when it is returned.
type ConflictError struct {
	Kind          Kind
	DestinationID string
	SourceID      string
	// Existing is the pairing already in the store
	ExistingDestinationID string
	ExistingSourceID      string
}

func (e *ConflictError) Error() string {
	if e.ExistingSourceID != "" && e.ExistingSourceID != e.SourceID {
		return fmt.Sprintf("%s mapping conflict: destination %s already maps to source %s, refusing source %s",
			e.Kind, e.DestinationID, e.ExistingSourceID, e.SourceID)
	}
	return fmt.Sprintf("%s mapping conflict: source %s already maps to destination %s, refusing destination %s",
		e.Kind, e.SourceID, e.ExistingDestinationID, e.DestinationID)
}

// Is makes errors.Is(err, ErrConflict) work
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ErrorCategory implements errors.CategorizedError
func (e *ConflictError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConflict
}
