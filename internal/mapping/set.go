package mapping

import (
	"fmt"

	"github.com/tphakala/certmigrate/internal/errors"
)

// Set holds the stores of every entity kind for one migration run
type Set struct {
	dir    string
	stores map[Kind]*Store
}

// OpenSet opens a store per kind under dir
func OpenSet(dir string, opts ...Option) (*Set, error) {
	set := &Set{dir: dir, stores: make(map[Kind]*Store)}
	for _, kind := range AllKinds() {
		store, err := Open(dir, kind, opts...)
		if err != nil {
			return nil, err
		}
		set.stores[kind] = store
	}
	return set, nil
}

// Store returns the store of a kind. It panics on an unknown kind since kinds are compile-time constants.
func (s *Set) Store(kind Kind) *Store {
	store, ok := s.stores[kind]
	if !ok {
		panic(fmt.Sprintf("mapping: no store for kind %q", kind))
	}
	return store
}

// Dir returns the mapping directory
func (s *Set) Dir() string { return s.dir }

// PersistAll flushes every store, attempting all of them even if one fails
func (s *Set) PersistAll() error {
	var errs []error
	for _, kind := range AllKinds() {
		if err := s.stores[kind].Persist(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
