package mapping

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/certmigrate/internal/errors"
)

// Entry is one source/destination correspondence plus auxiliary join fields
type Entry struct {
	DestinationID string
	SourceID      string
	Aux           map[string]any
}

type record struct {
	sourceID string
	aux      map[string]any
}

type auxKey struct {
	field string
	value string
}

// Observer is notified after every persist attempt, used for metrics
type Observer func(kind Kind, elapsed time.Duration, err error)

// Option configures a Store
type Option func(*Store)

// WithPersister replaces the atomic file writer
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithFormat selects json (default) or yaml serialization
func WithFormat(format string) Option {
	return func(s *Store) { s.format = format }
}

// WithObserver registers a persist observer
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// Store is the in-memory, write-through mapping ledger for one entity kind.
//
// Reads take a shared lock. Every mutation is serialized through writeMu and only
// becomes visible after the new state was persisted, so a lookup never observes an
// entry that could still be rolled back by a failed persist.
type Store struct {
	kind      Kind
	path      string
	format    string
	codec     codec
	persister Persister
	observer  Observer

	writeMu sync.Mutex
	mu      sync.RWMutex
	byDest  map[string]*record
	bySrc   map[string]string
	byAux   map[auxKey][]string
	order   []string // destination ids in insertion order

	keys keyedMutex
}

// Open loads <dir>/<kind>_mapping.<ext>. A missing file yields an empty store.
func Open(dir string, kind Kind, opts ...Option) (*Store, error) {
	s := &Store{
		kind:      kind,
		persister: AtomicFilePersister{},
		byDest:    make(map[string]*record),
		bySrc:     make(map[string]string),
		byAux:     make(map[auxKey][]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	c, err := codecFor(s.format)
	if err != nil {
		return nil, errors.New(err).Category(errors.CategoryConfiguration).Build()
	}
	s.codec = c
	s.path = filepath.Join(dir, string(kind)+"_mapping"+c.ext())

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.FileError(fmt.Errorf("read %s mapping: %w", s.kind, err), s.path)
	}

	doc, err := s.codec.unmarshal(data)
	if err != nil {
		return errors.New(fmt.Errorf("parse %s mapping file: %w", s.kind, err)).
			Category(errors.CategoryFileParsing).
			FileContext(s.path).
			Build()
	}

	dests := slices.SortedFunc(maps.Keys(doc), compareIDs)
	for _, dst := range dests {
		fields := doc[dst]
		src, ok := fields[sourceIDField]
		if !ok || canonical(src) == "" {
			return errors.New(fmt.Errorf("%s mapping entry %s has no %s", s.kind, dst, sourceIDField)).
				Category(errors.CategoryFileParsing).
				Build()
		}
		aux := make(map[string]any, len(fields))
		for k, v := range fields {
			if k != sourceIDField {
				aux[k] = v
			}
		}
		if err := s.checkLocked(dst, canonical(src)); err != nil {
			return fmt.Errorf("load %s: %w", s.path, err)
		}
		s.applyLocked(Entry{DestinationID: dst, SourceID: canonical(src), Aux: aux})
	}
	return nil
}

// Kind returns the entity kind of the store
func (s *Store) Kind() Kind { return s.kind }

// Path returns the backing file
func (s *Store) Path() string { return s.path }

// LookupBySource returns the destination id mapped to src
func (s *Store) LookupBySource(src string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dst, ok := s.bySrc[src]
	return dst, ok
}

// LookupByDestination returns the source id mapped to dst
func (s *Store) LookupByDestination(dst string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byDest[dst]
	if !ok {
		return "", false
	}
	return rec.sourceID, true
}

// LookupByAuxiliary returns the earliest inserted entry whose aux field equals value.
// Values compare by their printed form, so 7, int64(7) and json.Number("7") match.
func (s *Store) LookupByAuxiliary(field string, value any) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dests := s.byAux[auxKey{field, canonical(value)}]
	if len(dests) == 0 {
		return Entry{}, false
	}
	return s.entryLocked(dests[0]), true
}

// Get returns the full entry for a destination id
func (s *Store) Get(dst string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byDest[dst]; !ok {
		return Entry{}, false
	}
	return s.entryLocked(dst), true
}

// Contains reports whether src has been migrated
func (s *Store) Contains(src string) bool {
	_, ok := s.LookupBySource(src)
	return ok
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byDest)
}

// Entries returns a snapshot of all entries ordered by destination id
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dests := slices.SortedFunc(maps.Keys(s.byDest), compareIDs)
	out := make([]Entry, 0, len(dests))
	for _, dst := range dests {
		out = append(out, s.entryLocked(dst))
	}
	return out
}

// SourceIDs returns the set of migrated source ids
func (s *Store) SourceIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.bySrc))
	for src := range s.bySrc {
		out[src] = struct{}{}
	}
	return out
}

// Put inserts a new pairing or amends the aux fields of an existing identical
// pairing (last write wins per field). It does not persist; use Commit for the
// write-through path.
func (s *Store) Put(dst, src string, aux map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLocked(dst, src); err != nil {
		return err
	}
	s.applyLocked(Entry{DestinationID: dst, SourceID: src, Aux: aux})
	return nil
}

// Commit puts entries and persists the resulting store as one step. If any entry
// conflicts or the persist fails, nothing changes. The returned undo func reverts
// exactly these entries (removing new pairings, restoring previous aux) and
// persists again; callers use it when an enclosing database transaction fails to
// commit after the mapping was written.
func (s *Store) Commit(entries ...Entry) (undo func() error, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	prev := make([]*Entry, len(entries))
	pending := make(map[string]string, len(entries))
	pendingSrc := make(map[string]string, len(entries))
	for i, e := range entries {
		if err := s.checkLocked(e.DestinationID, e.SourceID); err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		// entries within one commit must not contradict each other either
		if src, ok := pending[e.DestinationID]; ok && src != e.SourceID {
			s.mu.RUnlock()
			return nil, &ConflictError{Kind: s.kind, DestinationID: e.DestinationID, SourceID: e.SourceID, ExistingSourceID: src}
		}
		if dst, ok := pendingSrc[e.SourceID]; ok && dst != e.DestinationID {
			s.mu.RUnlock()
			return nil, &ConflictError{Kind: s.kind, DestinationID: e.DestinationID, SourceID: e.SourceID, ExistingDestinationID: dst}
		}
		pending[e.DestinationID] = e.SourceID
		pendingSrc[e.SourceID] = e.DestinationID
		if _, ok := s.byDest[e.DestinationID]; ok {
			old := s.entryLocked(e.DestinationID)
			prev[i] = &old
		}
	}
	doc := s.documentLocked()
	s.mu.RUnlock()

	for _, e := range entries {
		fields := doc[e.DestinationID]
		if fields == nil {
			fields = map[string]any{sourceIDField: e.SourceID}
			doc[e.DestinationID] = fields
		}
		maps.Copy(fields, e.Aux)
	}

	if err := s.write(doc); err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, e := range entries {
		s.applyLocked(e)
	}
	s.mu.Unlock()

	return func() error { return s.revert(entries, prev) }, nil
}

func (s *Store) revert(entries []Entry, prev []*Entry) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	for i := len(entries) - 1; i >= 0; i-- {
		if prev[i] != nil {
			s.replaceAuxLocked(prev[i].DestinationID, prev[i].Aux)
			continue
		}
		s.removeLocked(entries[i].DestinationID)
	}
	doc := s.documentLocked()
	s.mu.Unlock()

	return s.write(doc)
}

// Persist writes the whole store atomically
func (s *Store) Persist() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	doc := s.documentLocked()
	s.mu.RUnlock()

	return s.write(doc)
}

// Clear wipes every entry and persists the empty store. Operator action only.
func (s *Store) Clear() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.write(document{}); err != nil {
		return err
	}

	s.mu.Lock()
	s.byDest = make(map[string]*record)
	s.bySrc = make(map[string]string)
	s.byAux = make(map[auxKey][]string)
	s.order = nil
	s.mu.Unlock()
	return nil
}

// LockKey serializes check-then-create sequences on one natural key (an email,
// a chassis number) across all workers. The returned func releases the lock.
func (s *Store) LockKey(key string) (unlock func()) {
	return s.keys.lock(key)
}

// Verify checks that the forward and reverse indexes form a bijection
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	if len(s.byDest) != len(s.bySrc) {
		errs = append(errs, fmt.Errorf("%s: %d destinations but %d sources", s.kind, len(s.byDest), len(s.bySrc)))
	}
	for dst, rec := range s.byDest {
		if back, ok := s.bySrc[rec.sourceID]; !ok || back != dst {
			errs = append(errs, fmt.Errorf("%s: destination %s -> source %s -> destination %q", s.kind, dst, rec.sourceID, back))
		}
	}
	for src, dst := range s.bySrc {
		if rec, ok := s.byDest[dst]; !ok || rec.sourceID != src {
			errs = append(errs, fmt.Errorf("%s: source %s -> destination %s has no matching entry", s.kind, src, dst))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) write(doc document) error {
	start := time.Now()
	data, err := s.codec.marshal(doc)
	if err == nil {
		err = s.persister.Persist(s.path, data)
	}
	if s.observer != nil {
		s.observer(s.kind, time.Since(start), err)
	}
	if err != nil {
		return errors.New(fmt.Errorf("persist %s mapping: %w", s.kind, err)).
			Category(errors.CategoryMapping).
			Context("entity_kind", string(s.kind)).
			Build()
	}
	return nil
}

// checkLocked enforces the immutable pairing rule
func (s *Store) checkLocked(dst, src string) error {
	if dst == "" || src == "" {
		return fmt.Errorf("%s mapping entry needs both ids (destination %q, source %q)", s.kind, dst, src)
	}
	if rec, ok := s.byDest[dst]; ok && rec.sourceID != src {
		return &ConflictError{Kind: s.kind, DestinationID: dst, SourceID: src, ExistingSourceID: rec.sourceID}
	}
	if existing, ok := s.bySrc[src]; ok && existing != dst {
		return &ConflictError{Kind: s.kind, DestinationID: dst, SourceID: src, ExistingDestinationID: existing}
	}
	return nil
}

func (s *Store) applyLocked(e Entry) {
	rec, ok := s.byDest[e.DestinationID]
	if !ok {
		rec = &record{sourceID: e.SourceID, aux: make(map[string]any, len(e.Aux))}
		s.byDest[e.DestinationID] = rec
		s.bySrc[e.SourceID] = e.DestinationID
		s.order = append(s.order, e.DestinationID)
	}
	for field, value := range e.Aux {
		if old, had := rec.aux[field]; had {
			s.unindexLocked(field, old, e.DestinationID)
		}
		rec.aux[field] = value
		s.indexLocked(field, value, e.DestinationID)
	}
}

func (s *Store) replaceAuxLocked(dst string, aux map[string]any) {
	rec, ok := s.byDest[dst]
	if !ok {
		return
	}
	for field, value := range rec.aux {
		s.unindexLocked(field, value, dst)
	}
	rec.aux = maps.Clone(aux)
	if rec.aux == nil {
		rec.aux = map[string]any{}
	}
	// Re-index in original insertion position
	for field, value := range rec.aux {
		s.indexOrderedLocked(field, value, dst)
	}
}

func (s *Store) removeLocked(dst string) {
	rec, ok := s.byDest[dst]
	if !ok {
		return
	}
	for field, value := range rec.aux {
		s.unindexLocked(field, value, dst)
	}
	delete(s.bySrc, rec.sourceID)
	delete(s.byDest, dst)
	s.order = slices.DeleteFunc(s.order, func(d string) bool { return d == dst })
}

func (s *Store) indexLocked(field string, value any, dst string) {
	key := auxKey{field, canonical(value)}
	if !slices.Contains(s.byAux[key], dst) {
		s.byAux[key] = append(s.byAux[key], dst)
	}
}

// indexOrderedLocked inserts dst keeping the list in store insertion order
func (s *Store) indexOrderedLocked(field string, value any, dst string) {
	key := auxKey{field, canonical(value)}
	list := s.byAux[key]
	if slices.Contains(list, dst) {
		return
	}
	pos := slices.Index(s.order, dst)
	i := 0
	for i < len(list) && slices.Index(s.order, list[i]) < pos {
		i++
	}
	s.byAux[key] = slices.Insert(list, i, dst)
}

func (s *Store) unindexLocked(field string, value any, dst string) {
	key := auxKey{field, canonical(value)}
	list := slices.DeleteFunc(s.byAux[key], func(d string) bool { return d == dst })
	if len(list) == 0 {
		delete(s.byAux, key)
		return
	}
	s.byAux[key] = list
}

func (s *Store) entryLocked(dst string) Entry {
	rec := s.byDest[dst]
	return Entry{DestinationID: dst, SourceID: rec.sourceID, Aux: maps.Clone(rec.aux)}
}

func (s *Store) documentLocked() document {
	doc := make(document, len(s.byDest))
	for dst, rec := range s.byDest {
		fields := make(map[string]any, len(rec.aux)+1)
		maps.Copy(fields, rec.aux)
		fields[sourceIDField] = rec.sourceID
		doc[dst] = fields
	}
	return doc
}

// canonical renders ids and aux values as comparable strings
func canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		// yaml and untyped json produce float64 for integral values
		if t == float64(int64(t)) {
			return fmt.Sprint(int64(t))
		}
		return fmt.Sprint(t)
	default:
		return fmt.Sprint(t)
	}
}

// AuxString returns an aux field in its canonical string form, "" when absent
func (e Entry) AuxString(field string) string {
	return canonical(e.Aux[field])
}

// AuxInt64 returns a numeric aux field regardless of how it was decoded
func (e Entry) AuxInt64(field string) (int64, bool) {
	s := canonical(e.Aux[field])
	if s == "" {
		return 0, false
	}
	id, err := ParseID(s)
	return id, err == nil
}
