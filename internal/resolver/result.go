package resolver

import "fmt"

// Role names a foreign reference of a record
type Role string

const (
	RoleDealer     Role = "dealer"
	RoleUser       Role = "user"
	RoleCustomer   Role = "customer"
	RoleDevice     Role = "device"
	RoleTechnician Role = "technician"
	RoleVehicle    Role = "vehicle"
)

// Reasons reported for unresolved roles
const (
	ReasonDealerNotFound     = "Dealer not found"
	ReasonUserNotFound       = "User not found"
	ReasonCustomerNotFound   = "Customer not found"
	ReasonDeviceNotFound     = "Device not found"
	ReasonTechnicianNotFound = "Technician not found or could not be created"
	ReasonVehicleFailed      = "Vehicle creation failed"
)

// Status is the variant of a Result
type Status uint8

const (
	// StatusFound means the role resolved to a destination id
	StatusFound Status = iota
	// StatusAbsent means the record does not reference the role at all
	StatusAbsent
	// StatusNotFound means the reference exists but has no mapping and no fallback
	StatusNotFound
	// StatusFailed means a lookup or fallback creation failed
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusAbsent:
		return "absent"
	case StatusNotFound:
		return "not_found"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Result is the outcome of resolving one role. Absence is a value, never an error.
type Result struct {
	Role    Role
	Status  Status
	ID      int64
	Created bool // the dependency was synthesized by a fallback rule
	Reason  string
	Err     error
}

// Found returns a resolved result
func Found(role Role, id int64) Result {
	return Result{Role: role, Status: StatusFound, ID: id}
}

// Created returns a result for a dependency created by fallback
func Created(role Role, id int64) Result {
	return Result{Role: role, Status: StatusFound, ID: id, Created: true}
}

// Absent returns a result for a role the record does not reference
func Absent(role Role) Result {
	return Result{Role: role, Status: StatusAbsent}
}

// NotFound returns an unresolved result
func NotFound(role Role, reason string) Result {
	return Result{Role: role, Status: StatusNotFound, Reason: reason}
}

// Failed returns a result for a lookup or creation error
func Failed(role Role, reason string, err error) Result {
	return Result{Role: role, Status: StatusFailed, Reason: reason, Err: err}
}

// OK reports whether the record may proceed past this role
func (r Result) OK() bool {
	return r.Status == StatusFound || r.Status == StatusAbsent
}

// IDPtr returns the id for nullable columns, nil when the role is absent
func (r Result) IDPtr() *int64 {
	if r.Status != StatusFound {
		return nil
	}
	id := r.ID
	return &id
}

// String renders the reason the way it appears in reports
func (r Result) String() string {
	switch {
	case r.OK():
		return fmt.Sprintf("%s %s", r.Role, r.Status)
	case r.Err != nil:
		return fmt.Sprintf("%s: %v", r.Reason, r.Err)
	default:
		return r.Reason
	}
}
