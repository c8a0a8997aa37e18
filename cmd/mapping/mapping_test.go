package mapping

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/certmigrate/internal/mapping"
)

func newSet(t *testing.T) *mapping.Set {
	t.Helper()
	set, err := mapping.OpenSet(t.TempDir())
	require.NoError(t, err)

	_, err = set.Store(mapping.KindUsers).Commit(
		mapping.Entry{DestinationID: "2", SourceID: "20", Aux: map[string]any{"email": "b@example.com"}},
		mapping.Entry{DestinationID: "1", SourceID: "10", Aux: map[string]any{"email": "a@example.com", "dealer": "1"}},
	)
	require.NoError(t, err)
	return set
}

func TestShowPrintsEntriesInDestinationOrder(t *testing.T) {
	t.Parallel()
	set := newSet(t)

	var out bytes.Buffer
	require.NoError(t, show(&out, set.Store(mapping.KindUsers), 0))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "DESTINATION")
	assert.Contains(t, lines[1], "dealer=1 email=a@example.com")
	assert.Contains(t, lines[2], "email=b@example.com")
	assert.Contains(t, lines[3], "2 entries")
}

func TestShowHonorsLimit(t *testing.T) {
	t.Parallel()
	set := newSet(t)

	var out bytes.Buffer
	require.NoError(t, show(&out, set.Store(mapping.KindUsers), 1))
	assert.NotContains(t, out.String(), "b@example.com")
	assert.Contains(t, out.String(), "2 entries", "the total is still reported")
}

func TestShowEmptyStore(t *testing.T) {
	t.Parallel()
	set := newSet(t)

	var out bytes.Buffer
	require.NoError(t, show(&out, set.Store(mapping.KindVehicles), 0))
	assert.Contains(t, out.String(), "0 entries")
}

func TestVerifyReportsEveryKind(t *testing.T) {
	t.Parallel()
	set := newSet(t)

	var out bytes.Buffer
	require.NoError(t, verify(&out, set, mapping.AllKinds()))
	for _, kind := range mapping.AllKinds() {
		assert.Contains(t, out.String(), string(kind))
	}
	assert.Contains(t, out.String(), "2 entries")
	assert.NotContains(t, out.String(), "FAIL")
}

func TestFormatAux(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "-", formatAux(nil))
	assert.Equal(t, "a=1 b=x", formatAux(map[string]any{"b": "x", "a": 1}))
}
