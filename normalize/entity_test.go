// ABOUTME: Tests for whole-record entity and opportunity normalization
// ABOUTME: Covers type discrimination, status defaults, billing terms, and revenue probing
package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/funnel/models"
)

func TestEntityFullRecord(t *testing.T) {
	raw := map[string]any{
		"id":       "C-1",
		"type":     "client",
		"name":     "Acme Corp",
		"status":   "active",
		"stage":    "negotiation",
		"industry": "Mining",
		"revenue":  120000.0,
		"contacts": `[{"name":"Jane"}]`,
		"sites":    []any{map[string]any{"name": "HQ", "stage": "Interest"}},
		"billingTerms": map[string]any{
			"currency":       "USD",
			"retainerAmount": 500.0,
		},
		"groupMemberships": []any{
			map[string]any{"group": map[string]any{"id": "G1", "name": "One"}},
		},
		"createdAt": "2025-03-01T08:00:00Z",
	}

	e := Entity(raw)

	assert.Equal(t, "C-1", e.ID)
	assert.False(t, e.GeneratedID)
	assert.Equal(t, models.TypeClient, e.Type)
	assert.Equal(t, "Active", e.Status)
	assert.Equal(t, models.StageAction, e.Stage)
	assert.Equal(t, "Mining", e.Industry)
	assert.Equal(t, 120000.0, e.Revenue)
	require.Len(t, e.Contacts, 1)
	assert.Equal(t, "Jane", e.Contacts[0]["name"])
	require.Len(t, e.Sites, 1)
	assert.Equal(t, "USD", e.BillingTerms.Currency)
	assert.Equal(t, 500.0, e.BillingTerms.RetainerAmount)
	assert.Equal(t, "Net 30", e.BillingTerms.PaymentTerms)
	require.Len(t, e.GroupMemberships, 1)
	assert.Equal(t, 2025, e.CreatedAt.Year())
}

func TestEntityNullTypeIsLegacyClient(t *testing.T) {
	e := Entity(map[string]any{"id": "X", "name": "Legacy"})
	assert.True(t, e.IsClient())
	assert.False(t, e.IsLead())
	assert.Equal(t, models.StatusActive, e.Status)
}

func TestEntityLeadDefaults(t *testing.T) {
	e := Entity(map[string]any{"id": "L1", "type": "lead", "name": "Foo"})
	assert.True(t, e.IsLead())
	assert.Equal(t, models.StatusPotential, e.Status)
	assert.Equal(t, models.StageNoEngagement, e.Stage)
	assert.Equal(t, "Other", e.Industry)
	assert.Empty(t, e.GroupMemberships)
	assert.Equal(t, []map[string]any{}, e.Contacts)
}

func TestEntityGeneratedIDSetsTempID(t *testing.T) {
	e := Entity(map[string]any{"type": "lead", "name": "No Id Inc", "createdAt": "2025-01-01T00:00:00Z"})
	assert.True(t, e.GeneratedID)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, e.ID, e.TempID)
}

func TestStatusTitleCasing(t *testing.T) {
	assert.Equal(t, "On Hold", Status("ON HOLD", models.TypeClient))
	assert.Equal(t, "Qualified", Status("qualified", models.TypeLead))
	assert.Equal(t, models.StatusPotential, Status("  ", models.TypeLead))
	assert.Equal(t, models.StatusActive, Status("", models.TypeClient))
}

func TestEntityRevenueValueFallback(t *testing.T) {
	e := Entity(map[string]any{"id": "X", "value": "2500"})
	assert.Equal(t, 2500.0, e.Revenue)
}

func TestEntityNestedOpportunities(t *testing.T) {
	raw := map[string]any{
		"id":   "C-2",
		"type": "client",
		"name": "Opp Haver",
		"opportunities": []any{
			map[string]any{"id": "O-1", "stage": "proposal", "value": 900.0},
		},
	}
	e := Entity(raw)
	require.Len(t, e.Opportunities, 1)
	assert.Equal(t, models.StageDesire, e.Opportunities[0].Stage)
	assert.Equal(t, 900.0, e.Opportunities[0].Value)
	assert.Equal(t, "O-1", e.Opportunities[0].ID)
}

func TestOpportunityClientIDFromNestedClient(t *testing.T) {
	o := Opportunity(map[string]any{
		"id":     "O-2",
		"client": map[string]any{"id": "C-9"},
		"title":  "Expansion",
	})
	assert.Equal(t, "C-9", o.ClientID)
	assert.Equal(t, "Expansion", o.Name)
}

func TestBillingTermsGarbageYieldsDefaults(t *testing.T) {
	terms := BillingTermsField("{broken json")
	assert.Equal(t, models.DefaultBillingTerms(), terms)
}
