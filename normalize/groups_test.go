// ABOUTME: Tests for group membership normalization
// ABOUTME: Covers JSON string parsing, legacy fallbacks, dedup, and idempotence
package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/funnel/models"
)

func TestGroupMembershipsNestedGroup(t *testing.T) {
	raw := []any{
		map[string]any{"group": map[string]any{"id": "G1", "name": "Group One", "type": "holding"}},
	}
	got := GroupMemberships(raw, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "G1", got[0].Group.ID)
	assert.Equal(t, "Group One", got[0].Group.Name)
	assert.Equal(t, "holding", got[0].Group.Type)
}

func TestGroupMembershipsJSONString(t *testing.T) {
	raw := `[{"group":{"id":"G2","name":"Two"}}]`
	got := GroupMemberships(raw, nil)
	require.Len(t, got, 1)
	assert.Equal(t, "G2", got[0].Group.ID)
}

func TestGroupMembershipsCommaFallbackOnParseFailure(t *testing.T) {
	got := GroupMemberships("Alpha, Beta", nil)
	require.Len(t, got, 2)
	assert.Equal(t, "Alpha", got[0].Group.Name)
	assert.Empty(t, got[0].Group.ID)
	assert.Equal(t, "Beta", got[1].Group.Name)
}

func TestGroupMembershipsNonSequenceCoercesEmpty(t *testing.T) {
	assert.Empty(t, GroupMemberships(42, nil))
	assert.Empty(t, GroupMemberships(nil, nil))
}

func TestGroupMembershipsLegacyFallback(t *testing.T) {
	cases := []struct {
		name     string
		fallback any
	}{
		{"comma string", "Legacy One, Legacy Two"},
		{"string list", []any{"Legacy One", "Legacy Two"}},
		{"object list", []any{
			map[string]any{"name": "Legacy One"},
			map[string]any{"group": map[string]any{"name": "Legacy Two"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GroupMemberships(nil, tc.fallback)
			require.Len(t, got, 2)
			assert.Equal(t, "Legacy One", got[0].Name)
			assert.Equal(t, "Legacy Two", got[1].Name)
			// Synthesized memberships carry no group id or type.
			assert.Empty(t, got[0].Group.ID)
			assert.Empty(t, got[0].Group.Type)
		})
	}
}

func TestGroupMembershipsSingleLegacyObject(t *testing.T) {
	got := GroupMemberships([]any{}, map[string]any{"name": "Solo Group"})
	require.Len(t, got, 1)
	assert.Equal(t, "Solo Group", got[0].Name)
}

func TestGroupMembershipsDedupPreservesOrder(t *testing.T) {
	got := GroupMemberships(nil, "B, A, B, C, A")
	names := make([]string, len(got))
	for i, m := range got {
		names[i] = m.Name
	}
	assert.Equal(t, []string{"B", "A", "C"}, names)
}

func TestGroupMembershipsRelationWinsOverLegacy(t *testing.T) {
	raw := []any{map[string]any{"group": map[string]any{"id": "G1", "name": "Real"}}}
	got := GroupMemberships(raw, "Legacy Name")
	require.Len(t, got, 1)
	assert.Equal(t, "Real", got[0].Group.Name)
}

func TestGroupMembershipsIdempotent(t *testing.T) {
	first := GroupMemberships(`[{"group":{"id":"G1","name":"One"}},{"name":"Bare"}]`, nil)
	require.NotEmpty(t, first)

	// Re-encode the normalized output as the generic shape and re-normalize.
	reencoded := make([]any, 0, len(first))
	for _, m := range first {
		reencoded = append(reencoded, map[string]any{
			"group": map[string]any{"id": m.Group.ID, "name": m.Group.Name, "type": m.Group.Type},
			"name":  m.Name,
		})
	}
	second := GroupMemberships(reencoded, nil)
	assert.Equal(t, first, second)
}

func TestGroupNames(t *testing.T) {
	raw := map[string]any{
		"groupMemberships": []any{
			map[string]any{"group": map[string]any{"id": "G1", "name": "One"}},
			map[string]any{"group": map[string]any{"id": "G2", "name": "Two"}},
		},
	}
	assert.Equal(t, []string{"One", "Two"}, GroupNames(raw))
}

func TestGroupNamesLegacyField(t *testing.T) {
	raw := map[string]any{"companyGroups": "Old One, Old Two"}
	assert.Equal(t, []string{"Old One", "Old Two"}, GroupNames(raw))
}

func TestEntityGroupNamesAccessor(t *testing.T) {
	e := models.Entity{GroupMemberships: []models.GroupMembership{
		{Group: models.GroupRef{Name: "X"}},
		{Name: "Y"},
		{Group: models.GroupRef{Name: "X"}},
	}}
	assert.Equal(t, []string{"X", "Y"}, e.GroupNames())
}
