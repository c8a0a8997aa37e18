// Package mapping implements the durable source-id to destination-id ledgers that
// make migrations idempotent and let entity kinds reference each other.
package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names an entity kind; each kind has exactly one Store.
type Kind string

const (
	KindUsers        Kind = "users"
	KindTechnicians  Kind = "technicians"
	KindCustomers    Kind = "customers"
	KindVehicles     Kind = "vehicles"
	KindDevices      Kind = "devices"
	KindCertificates Kind = "certificates"
	KindSalesPeople  Kind = "salespeople"
)

// AllKinds returns every kind in dependency order: a kind only references kinds before it.
func AllKinds() []Kind {
	return []Kind{
		KindUsers,
		KindTechnicians,
		KindCustomers,
		KindVehicles,
		KindDevices,
		KindCertificates,
		KindSalesPeople,
	}
}

// ParseKind accepts a kind name case-insensitively
func ParseKind(s string) (Kind, error) {
	want := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range AllKinds() {
		if k == want {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// ID formats a database id as a mapping key
func ID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID parses a mapping key back into a database id
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("mapping id %q is not numeric: %w", s, err)
	}
	return id, nil
}

// Derived source ids for entities synthesized without a legacy row
const (
	DerivedEmailPrefix   = "email:"
	DerivedChassisPrefix = "chassis:"
	DerivedDealerPrefix  = "dealer:"
)

// compareIDs orders numeric ids numerically and falls back to lexical order
func compareIDs(a, b string) int {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	switch {
	case aerr == nil && berr == nil:
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		}
		return 0
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
