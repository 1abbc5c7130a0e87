// ABOUTME: Tests for the restoration store and membership merge priority
// ABOUTME: Covers observe/lookup/clear tombstones and the documented merge order
package restore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/funnel/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func memberships(names ...string) []models.GroupMembership {
	out := make([]models.GroupMembership, len(names))
	for i, n := range names {
		out[i] = models.GroupMembership{Group: models.GroupRef{ID: "id-" + n, Name: n}}
	}
	return out
}

func TestObserveAndLookup(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Observe("C-1", memberships("G1")))

	got, cleared, err := s.Lookup("C-1")
	require.NoError(t, err)
	assert.False(t, cleared)
	require.Len(t, got, 1)
	assert.Equal(t, "G1", got[0].Group.Name)
}

func TestObserveIgnoresEmpty(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Observe("C-1", memberships("G1")))
	require.NoError(t, s.Observe("C-1", nil))

	got, _, err := s.Lookup("C-1")
	require.NoError(t, err)
	require.Len(t, got, 1, "empty observation must not clobber a remembered value")
}

func TestObserveReplacesWithNewerValue(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Observe("C-1", memberships("G1")))
	require.NoError(t, s.Observe("C-1", memberships("G2", "G3")))

	got, _, err := s.Lookup("C-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "G2", got[0].Group.Name)
}

func TestClearTombstone(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Observe("C-1", memberships("G1")))
	require.NoError(t, s.Clear("C-1"))

	got, cleared, err := s.Lookup("C-1")
	require.NoError(t, err)
	assert.True(t, cleared)
	assert.Nil(t, got)

	// A later genuine observation lifts the tombstone.
	require.NoError(t, s.Observe("C-1", memberships("G9")))
	got, cleared, err = s.Lookup("C-1")
	require.NoError(t, err)
	assert.False(t, cleared)
	require.Len(t, got, 1)
}

func TestLookupUnknownEntity(t *testing.T) {
	s := newTestStore(t)
	got, cleared, err := s.Lookup("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.False(t, cleared)
}

func TestAllSkipsTombstones(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Observe("C-1", memberships("G1")))
	require.NoError(t, s.Observe("C-2", memberships("G2")))
	require.NoError(t, s.Clear("C-2"))

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "C-1")
}

func TestMergeMembershipsPriority(t *testing.T) {
	restored := memberships("R")
	incoming := memberships("I")
	previous := memberships("P")

	// Restoration map wins.
	assert.Equal(t, restored, MergeMemberships(restored, false, incoming, previous))

	// Then the fresh API value.
	assert.Equal(t, incoming, MergeMemberships(nil, false, incoming, previous))

	// Then previous in-memory state.
	assert.Equal(t, previous, MergeMemberships(nil, false, nil, previous))

	// Nothing anywhere: empty, not nil.
	assert.Equal(t, []models.GroupMembership{}, MergeMemberships(nil, false, nil, nil))
}

func TestMergeMembershipsTombstone(t *testing.T) {
	previous := memberships("P")

	// A tombstone suppresses restoration and prior state.
	assert.Empty(t, MergeMemberships(nil, true, nil, previous))

	// But a server re-assertion survives it.
	incoming := memberships("I")
	assert.Equal(t, incoming, MergeMemberships(nil, true, incoming, previous))
}
