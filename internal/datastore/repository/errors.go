package repository

import "github.com/tphakala/certmigrate/internal/errors"

// Sentinel errors for repository operations.
// Callers match them with errors.Is instead of GORM-specific errors.
var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.NewStd("user not found")

	// ErrTechnicianNotFound indicates no technician has the requested email.
	ErrTechnicianNotFound = errors.NewStd("technician not found")

	// ErrVehicleNotFound indicates no vehicle has the requested chassis number.
	ErrVehicleNotFound = errors.NewStd("vehicle not found")

	// ErrDeviceNotFound indicates the requested device does not exist.
	ErrDeviceNotFound = errors.NewStd("device not found")

	// ErrDuplicateKey indicates a unique constraint violation.
	ErrDuplicateKey = errors.NewStd("duplicate key")

	// ErrIDsUnknown indicates a batch insert did not report generated ids.
	ErrIDsUnknown = errors.NewStd("generated ids unknown after batch insert")

	// ErrInvalidInput indicates invalid input parameters.
	ErrInvalidInput = errors.NewStd("invalid input")
)
