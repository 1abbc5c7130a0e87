// ABOUTME: Tests for the badger-backed cache adapter
// ABOUTME: Covers JSON round-trips, failure degradation, timestamps, and preferences
package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestGetMissingReturnsNil(t *testing.T) {
	a := newTestAdapter(t)
	assert.Nil(t, a.Get(CollectionClients))

	var out []string
	assert.False(t, a.GetJSON(CollectionClients, &out))
}

func TestJSONRoundTrip(t *testing.T) {
	a := newTestAdapter(t)

	in := []map[string]string{{"id": "C-1", "name": "Acme"}}
	a.SetJSON(CollectionClients, in)

	var out []map[string]string
	require.True(t, a.GetJSON(CollectionClients, &out))
	assert.Equal(t, in, out)
}

func TestCorruptEntryDegradesToNoData(t *testing.T) {
	a := newTestAdapter(t)
	a.Set(CollectionGroups, []byte("{not json"))

	var out []string
	assert.False(t, a.GetJSON(CollectionGroups, &out))
}

func TestRemoveClearsValueAndTimestamp(t *testing.T) {
	a := newTestAdapter(t)
	a.Set(CollectionGroups, []byte("[]"))
	a.Touch(CollectionGroups)
	require.False(t, a.Timestamp(CollectionGroups).IsZero())

	a.Remove(CollectionGroups)
	assert.Nil(t, a.Get(CollectionGroups))
	assert.True(t, a.Timestamp(CollectionGroups).IsZero())
}

func TestTimestamp(t *testing.T) {
	a := newTestAdapter(t)
	assert.True(t, a.Timestamp(CollectionClients).IsZero())

	a.Touch(CollectionClients)
	ts := a.Timestamp(CollectionClients)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestPreferences(t *testing.T) {
	a := newTestAdapter(t)

	assert.Equal(t, "fallback", a.Preference("selected-services", "fallback"))
	a.SetPreference("selected-services", "hosting,design")
	assert.Equal(t, "hosting,design", a.Preference("selected-services", "fallback"))

	assert.True(t, a.BoolPreference("show-sites", true))
	a.SetBoolPreference("show-sites", false)
	assert.False(t, a.BoolPreference("show-sites", true))
}

func TestNilAdapterIsSafe(t *testing.T) {
	var a *Adapter
	assert.Nil(t, a.Get(CollectionClients))
	a.Set(CollectionClients, []byte("x"))
	a.Remove(CollectionClients)
	assert.NotPanics(t, func() { _ = a.Close() })
}
