// ABOUTME: Tests for the pipeline aggregator
// ABOUTME: Covers sort order, type filter, search, and per-stage totals
package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/funnel/models"
)

func lead(id, name string, stage models.Stage, value float64, updated time.Time) models.Entity {
	return models.Entity{
		ID: id, Name: name, Type: models.TypeLead,
		Stage: stage, Revenue: value, UpdatedAt: updated,
	}
}

func clientWithOpps(id, name string, opps ...models.Opportunity) models.Entity {
	return models.Entity{ID: id, Name: name, Type: models.TypeClient, Opportunities: opps}
}

func TestAggregateSortOrder(t *testing.T) {
	now := time.Now()
	leads := []models.Entity{
		lead("L-3", "Zeta", models.StageInterest, 0, now),
		lead("L-1", "Alpha", models.StageNoEngagement, 0, now),
		lead("L-2", "Beta", models.StageInterest, 0, now.Add(time.Hour)),
	}
	clients := []models.Entity{
		clientWithOpps("C-1", "Acme", models.Opportunity{
			ID: "O-1", Name: "Expansion", Stage: models.StageAction, Value: 500, UpdatedAt: now,
		}),
	}

	got := Aggregate(leads, clients, Query{Filter: FilterAll})
	require.Len(t, got.Items, 4)

	// Stage order first, then most recent, then name.
	assert.Equal(t, "L-1", got.Items[0].ID)
	assert.Equal(t, "L-2", got.Items[1].ID, "newer update sorts first within a stage")
	assert.Equal(t, "L-3", got.Items[2].ID)
	assert.Equal(t, "O-1", got.Items[3].ID)
}

func TestAggregateNameTiebreak(t *testing.T) {
	now := time.Now()
	leads := []models.Entity{
		lead("L-2", "bravo", models.StageDesire, 0, now),
		lead("L-1", "Alpha", models.StageDesire, 0, now),
	}
	got := Aggregate(leads, nil, Query{})
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Alpha", got.Items[0].Name)
}

func TestAggregateTypeFilter(t *testing.T) {
	leads := []models.Entity{lead("L-1", "Foo", models.StageInterest, 0, time.Now())}
	clients := []models.Entity{
		clientWithOpps("C-1", "Acme", models.Opportunity{ID: "O-1", Stage: models.StageDesire}),
	}

	onlyLeads := Aggregate(leads, clients, Query{Filter: FilterLeads})
	require.Len(t, onlyLeads.Items, 1)
	assert.Equal(t, KindLead, onlyLeads.Items[0].Kind)

	onlyOpps := Aggregate(leads, clients, Query{Filter: FilterOpportunities})
	require.Len(t, onlyOpps.Items, 1)
	assert.Equal(t, KindOpportunity, onlyOpps.Items[0].Kind)
	assert.Equal(t, "C-1", onlyOpps.Items[0].ClientID)
	assert.Equal(t, "Acme", onlyOpps.Items[0].Organization)
}

func TestAggregateSearch(t *testing.T) {
	leads := []models.Entity{
		lead("L-1", "Northwind Traders", models.StageInterest, 0, time.Now()),
		lead("L-2", "Contoso", models.StageInterest, 0, time.Now()),
	}
	clients := []models.Entity{
		clientWithOpps("C-1", "Fabrikam", models.Opportunity{
			ID: "O-1", Name: "Renewal", Stage: models.StageAction, Owner: "jane",
		}),
	}

	byName := Aggregate(leads, clients, Query{Filter: FilterAll, Search: "northwind"})
	require.Len(t, byName.Items, 1)
	assert.Equal(t, "L-1", byName.Items[0].ID)

	byOwner := Aggregate(leads, clients, Query{Filter: FilterAll, Search: "JANE"})
	require.Len(t, byOwner.Items, 1)
	assert.Equal(t, "O-1", byOwner.Items[0].ID)

	byStage := Aggregate(leads, clients, Query{Filter: FilterAll, Search: "action"})
	require.Len(t, byStage.Items, 1)
}

func TestAggregateStageTotals(t *testing.T) {
	now := time.Now()
	leads := []models.Entity{
		lead("L-1", "A", models.StageInterest, 100, now),
		lead("L-2", "B", models.StageInterest, 50, now),
	}
	clients := []models.Entity{
		clientWithOpps("C-1", "Acme", models.Opportunity{
			ID: "O-1", Stage: models.StageAction, Value: 900,
		}),
	}

	got := Aggregate(leads, clients, Query{Filter: FilterAll})
	assert.Equal(t, 3, got.TotalCount)
	assert.Equal(t, 1050.0, got.TotalValue)

	interest := got.Stages[models.StageIndex(models.StageInterest)]
	assert.Equal(t, 2, interest.Count)
	assert.Equal(t, 150.0, interest.Value)

	action := got.Stages[models.StageIndex(models.StageAction)]
	assert.Equal(t, 1, action.Count)
	assert.Equal(t, 900.0, action.Value)

	empty := got.Stages[models.StageIndex(models.StageNoEngagement)]
	assert.Zero(t, empty.Count)
}

func TestAggregateOpportunityFallsBackToClientName(t *testing.T) {
	clients := []models.Entity{
		clientWithOpps("C-1", "Acme", models.Opportunity{ID: "O-1", Stage: models.StageDesire}),
	}
	got := Aggregate(nil, clients, Query{Filter: FilterOpportunities})
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Acme", got.Items[0].Name)
}
