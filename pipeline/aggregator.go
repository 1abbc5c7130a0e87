// ABOUTME: Pipeline aggregator deriving a unified lead+opportunity item collection
// ABOUTME: Stage-ordered sort, type filter, free-text search, per-stage totals
package pipeline

import (
	"sort"
	"strings"

	"github.com/harperreed/funnel/models"
)

// ItemKind discriminates pipeline items.
type ItemKind string

const (
	KindLead        ItemKind = "lead"
	KindOpportunity ItemKind = "opportunity"
)

// TypeFilter selects which item kinds an aggregation includes.
type TypeFilter string

const (
	FilterAll           TypeFilter = "all"
	FilterLeads         TypeFilter = "leads"
	FilterOpportunities TypeFilter = "opportunities"
)

// Item is one unified pipeline entry: a lead, or a client's opportunity.
type Item struct {
	ID           string
	Kind         ItemKind
	Name         string
	Stage        models.Stage
	Value        float64
	Organization string
	Owner        string
	UpdatedAt    int64
	ClientID     string
	Raw          map[string]any
}

// StageSummary aggregates one pipeline stage.
type StageSummary struct {
	Stage models.Stage
	Count int
	Value float64
}

// Summary is a full aggregation result.
type Summary struct {
	Items      []Item
	Stages     []StageSummary
	TotalCount int
	TotalValue float64
}

// Query filters an aggregation.
type Query struct {
	Filter TypeFilter
	Search string
}

// Aggregate produces the unified pipeline from leads and clients. Sorting is
// stage order first, then most-recently-updated, then name.
func Aggregate(leads, clients []models.Entity, q Query) Summary {
	items := collect(leads, clients, q)
	sortItems(items)

	stages := make([]StageSummary, len(models.Stages))
	for i, stage := range models.Stages {
		stages[i].Stage = stage
	}
	var totalValue float64
	for _, item := range items {
		idx := models.StageIndex(item.Stage)
		stages[idx].Count++
		stages[idx].Value += item.Value
		totalValue += item.Value
	}

	return Summary{
		Items:      items,
		Stages:     stages,
		TotalCount: len(items),
		TotalValue: totalValue,
	}
}

func collect(leads, clients []models.Entity, q Query) []Item {
	var items []Item

	if q.Filter == FilterAll || q.Filter == FilterLeads || q.Filter == "" {
		for _, lead := range leads {
			items = appendMatching(items, Item{
				ID:           lead.ID,
				Kind:         KindLead,
				Name:         lead.Name,
				Stage:        lead.Stage,
				Value:        lead.Revenue,
				Organization: firstGroupName(lead),
				UpdatedAt:    lead.UpdatedAt.UnixMilli(),
			}, q.Search)
		}
	}

	if q.Filter == FilterAll || q.Filter == FilterOpportunities || q.Filter == "" {
		for _, client := range clients {
			for _, opp := range client.Opportunities {
				name := opp.Name
				if name == "" {
					name = client.Name
				}
				items = appendMatching(items, Item{
					ID:           opp.ID,
					Kind:         KindOpportunity,
					Name:         name,
					Stage:        opp.Stage,
					Value:        opp.Value,
					Organization: client.Name,
					Owner:        opp.Owner,
					UpdatedAt:    opp.UpdatedAt.UnixMilli(),
					ClientID:     client.ID,
					Raw:          opp.Raw,
				}, q.Search)
			}
		}
	}
	return items
}

func appendMatching(items []Item, item Item, search string) []Item {
	if !matches(item, search) {
		return items
	}
	return append(items, item)
}

func matches(item Item, search string) bool {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return true
	}
	for _, field := range []string{item.Name, item.Organization, string(item.Stage), item.Owner} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		ai, bi := models.StageIndex(a.Stage), models.StageIndex(b.Stage)
		if ai != bi {
			return ai < bi
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt > b.UpdatedAt
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

func firstGroupName(e models.Entity) string {
	names := e.GroupNames()
	if len(names) == 0 {
		return ""
	}
	return names[0]
}
