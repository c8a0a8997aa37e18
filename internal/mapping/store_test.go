package mapping

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/certmigrate/internal/errors"
)

type failingPersister struct {
	fail atomic.Bool
	next Persister
}

func (f *failingPersister) Persist(path string, data []byte) error {
	if f.fail.Load() {
		return errors.NewStd("disk full")
	}
	return f.next.Persist(path, data)
}

func openTestStore(t *testing.T, kind Kind, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(dir, kind, opts...)
	require.NoError(t, err)
	return store, dir
}

func TestPutAndLookups(t *testing.T) {
	store, _ := openTestStore(t, KindUsers)

	require.NoError(t, store.Put("101", "7", map[string]any{"dealer_id": int64(3)}))
	require.NoError(t, store.Put("102", "8", map[string]any{"dealer_id": int64(3)}))

	dst, ok := store.LookupBySource("7")
	require.True(t, ok)
	assert.Equal(t, "101", dst)

	src, ok := store.LookupByDestination("102")
	require.True(t, ok)
	assert.Equal(t, "8", src)

	_, ok = store.LookupBySource("9")
	assert.False(t, ok)

	entry, ok := store.LookupByAuxiliary("dealer_id", 3)
	require.True(t, ok, "aux values compare by printed form")
	assert.Equal(t, "101", entry.DestinationID, "first inserted entry wins")

	_, ok = store.LookupByAuxiliary("dealer_id", "4")
	assert.False(t, ok)
}

func TestPutRejectsConflictingPairings(t *testing.T) {
	store, _ := openTestStore(t, KindTechnicians)
	require.NoError(t, store.Put("1", "a", nil))

	err := store.Put("1", "b", nil)
	require.ErrorIs(t, err, ErrConflict)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a", conflict.ExistingSourceID)

	err = store.Put("2", "a", nil)
	require.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 1, store.Len())
	_, ok := store.LookupBySource("b")
	assert.False(t, ok, "a rejected put must not leave anything behind")
	require.NoError(t, store.Verify())
}

func TestPutAmendsAuxLastWriteWins(t *testing.T) {
	store, _ := openTestStore(t, KindUsers)
	require.NoError(t, store.Put("1", "a", map[string]any{"dealer_id": 5, "old_user_id": 9}))
	require.NoError(t, store.Put("1", "a", map[string]any{"dealer_id": 6}))

	entry, ok := store.Get("1")
	require.True(t, ok)
	assert.Equal(t, "6", entry.AuxString("dealer_id"))
	assert.Equal(t, "9", entry.AuxString("old_user_id"))

	_, ok = store.LookupByAuxiliary("dealer_id", 5)
	assert.False(t, ok, "stale aux value must be unindexed")
	_, ok = store.LookupByAuxiliary("dealer_id", 6)
	assert.True(t, ok)
}

func TestPersistAndReload(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			store, dir := openTestStore(t, KindCertificates, WithFormat(format))
			_, err := store.Commit(
				Entry{DestinationID: "10", SourceID: "1", Aux: map[string]any{"device_id": int64(44), "serial_number": "SN-1"}},
				Entry{DestinationID: "11", SourceID: "2", Aux: map[string]any{"device_id": int64(45)}},
			)
			require.NoError(t, err)

			reloaded, err := Open(dir, KindCertificates, WithFormat(format))
			require.NoError(t, err)
			assert.Equal(t, 2, reloaded.Len())

			entry, ok := reloaded.LookupByAuxiliary("device_id", int64(44))
			require.True(t, ok)
			assert.Equal(t, "10", entry.DestinationID)
			id, ok := entry.AuxInt64("device_id")
			require.True(t, ok)
			assert.Equal(t, int64(44), id)
			assert.Equal(t, "SN-1", entry.AuxString("serial_number"))
			require.NoError(t, reloaded.Verify())
		})
	}
}

func TestPersistedJSONIsHumanReadable(t *testing.T) {
	store, _ := openTestStore(t, KindDevices)
	_, err := store.Commit(Entry{DestinationID: "5", SourceID: "S100-0001", Aux: map[string]any{"ecu": "S100-0001"}})
	require.NoError(t, err)

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"5\": {")

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "S100-0001", doc["5"]["source_id"])
	assert.Equal(t, filepath.Join(filepath.Dir(store.Path()), "devices_mapping.json"), store.Path())
}

func TestCommitPersistFailureLeavesNoEntry(t *testing.T) {
	fp := &failingPersister{next: AtomicFilePersister{}}
	store, dir := openTestStore(t, KindTechnicians, WithPersister(fp))

	_, err := store.Commit(Entry{DestinationID: "1", SourceID: "a"})
	require.NoError(t, err)

	fp.fail.Store(true)
	_, err = store.Commit(Entry{DestinationID: "2", SourceID: "b", Aux: map[string]any{"email": "x@y.z"}})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMapping))

	_, ok := store.LookupBySource("b")
	assert.False(t, ok)
	_, ok = store.LookupByAuxiliary("email", "x@y.z")
	assert.False(t, ok)

	reloaded, err := Open(dir, KindTechnicians)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
}

func TestCommitRejectsConflictWithoutWriting(t *testing.T) {
	store, _ := openTestStore(t, KindVehicles)
	_, err := store.Commit(Entry{DestinationID: "1", SourceID: "f1"})
	require.NoError(t, err)

	_, err = store.Commit(Entry{DestinationID: "2", SourceID: "f2"}, Entry{DestinationID: "1", SourceID: "f3"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 1, store.Len())

	_, err = store.Commit(Entry{DestinationID: "3", SourceID: "f4"}, Entry{DestinationID: "4", SourceID: "f4"})
	require.ErrorIs(t, err, ErrConflict, "entries of one commit must agree with each other")
	assert.Equal(t, 1, store.Len())
}

func TestCommitUndo(t *testing.T) {
	store, dir := openTestStore(t, KindUsers)
	_, err := store.Commit(Entry{DestinationID: "1", SourceID: "a", Aux: map[string]any{"dealer_id": 1}})
	require.NoError(t, err)

	undo, err := store.Commit(
		Entry{DestinationID: "1", SourceID: "a", Aux: map[string]any{"dealer_id": 2}},
		Entry{DestinationID: "2", SourceID: "b"},
	)
	require.NoError(t, err)
	require.NoError(t, undo())

	assert.Equal(t, 1, store.Len())
	entry, ok := store.LookupByAuxiliary("dealer_id", 1)
	require.True(t, ok)
	assert.Equal(t, "1", entry.DestinationID)

	reloaded, err := Open(dir, KindUsers)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Len())
	_, ok = reloaded.LookupBySource("b")
	assert.False(t, ok)
}

func TestClear(t *testing.T) {
	store, dir := openTestStore(t, KindCustomers)
	_, err := store.Commit(Entry{DestinationID: "1", SourceID: "a", Aux: map[string]any{"email": "a@b.c"}})
	require.NoError(t, err)

	require.NoError(t, store.Clear())
	assert.Equal(t, 0, store.Len())
	_, ok := store.LookupByAuxiliary("email", "a@b.c")
	assert.False(t, ok)

	reloaded, err := Open(dir, KindCustomers)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}

func TestOpenRejectsNonBijectiveFile(t *testing.T) {
	dir := t.TempDir()
	body := `{"1": {"source_id": "7"}, "2": {"source_id": "7"}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users_mapping.json"), []byte(body), 0o600))

	_, err := Open(dir, KindUsers)
	require.ErrorIs(t, err, ErrConflict)
}

func TestOpenAcceptsHandEditedNumbers(t *testing.T) {
	dir := t.TempDir()
	body := `{"12": {"source_id": 7, "dealer_id": 3}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users_mapping.json"), []byte(body), 0o600))

	store, err := Open(dir, KindUsers)
	require.NoError(t, err)
	dst, ok := store.LookupBySource("7")
	require.True(t, ok)
	assert.Equal(t, "12", dst)
	_, ok = store.LookupByAuxiliary("dealer_id", int64(3))
	assert.True(t, ok)
}

func TestConcurrentCommitsKeepBijection(t *testing.T) {
	store, dir := openTestStore(t, KindCertificates)

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Commit(Entry{DestinationID: ID(int64(1000 + i)), SourceID: ID(int64(i))})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, store.Verify())
	reloaded, err := Open(dir, KindCertificates)
	require.NoError(t, err)
	assert.Equal(t, 50, reloaded.Len(), "the last persist must include every commit")
	for i := range 50 {
		dst, ok := reloaded.LookupBySource(ID(int64(i)))
		require.True(t, ok)
		src, ok := reloaded.LookupByDestination(dst)
		require.True(t, ok)
		assert.Equal(t, ID(int64(i)), src)
	}
}

func TestLockKeySerializesCheckThenCreate(t *testing.T) {
	store, _ := openTestStore(t, KindTechnicians)
	var created atomic.Int32

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.LockKey("tech@example.com")
			defer unlock()
			if _, ok := store.LookupByAuxiliary("email", "tech@example.com"); ok {
				return
			}
			created.Add(1)
			_, err := store.Commit(Entry{
				DestinationID: ID(int64(i + 1)),
				SourceID:      DerivedEmailPrefix + "tech@example.com",
				Aux:           map[string]any{"email": "tech@example.com"},
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, store.Len())
}

func TestOpenSet(t *testing.T) {
	set, err := OpenSet(t.TempDir(), WithFormat("yaml"))
	require.NoError(t, err)
	for _, kind := range AllKinds() {
		assert.Equal(t, kind, set.Store(kind).Kind())
	}
	require.NoError(t, set.PersistAll())
	_, err = os.Stat(set.Store(KindUsers).Path())
	require.NoError(t, err)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind(" Certificates ")
	require.NoError(t, err)
	assert.Equal(t, KindCertificates, kind)

	_, err = ParseKind("invoices")
	require.Error(t, err)
}
