// ABOUTME: Per-collection list view state: search, filter, sort, pagination
// ABOUTME: Page resets to 1 whenever the active predicate changes
package store

import (
	"sort"
	"strings"

	"github.com/harperreed/funnel/models"
)

// PageSize is the fixed list page size.
const PageSize = 20

// Sort keys accepted by SetSortKey.
const (
	SortByName    = "name"
	SortByUpdated = "updated"
	SortByStage   = "stage"
	SortByRevenue = "revenue"
)

// ListState is the view predicate for one collection.
type ListState struct {
	SearchTerm   string
	StatusFilter string
	SortKey      string
	Page         int
}

// ListStateFor returns the current view state for a collection.
func (s *Store) ListStateFor(t models.EntityType) ListState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lists[canonicalType(t)]
}

// SetSearchTerm updates the free-text search. Changing it resets the page.
func (s *Store) SetSearchTerm(t models.EntityType, term string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lists[canonicalType(t)]
	if ls.SearchTerm == term {
		return
	}
	ls.SearchTerm = term
	ls.Page = 1
}

// SetStatusFilter updates the status filter. Changing it resets the page.
func (s *Store) SetStatusFilter(t models.EntityType, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lists[canonicalType(t)]
	if ls.StatusFilter == status {
		return
	}
	ls.StatusFilter = status
	ls.Page = 1
}

// SetSortKey updates the sort order. Changing it resets the page.
func (s *Store) SetSortKey(t models.EntityType, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.lists[canonicalType(t)]
	if ls.SortKey == key {
		return
	}
	ls.SortKey = key
	ls.Page = 1
}

// SetPage moves to a page. Clamped to 1 at the low end; callers clamp the
// high end against VisibleTotal.
func (s *Store) SetPage(t models.EntityType, page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[canonicalType(t)].Page = page
}

// VisibleEntities returns the current page of a collection after applying
// search, status filter, and sort.
func (s *Store) VisibleEntities(t models.EntityType) []models.Entity {
	filtered := s.filteredEntities(t)

	s.mu.Lock()
	page := s.lists[canonicalType(t)].Page
	s.mu.Unlock()

	start := (page - 1) * PageSize
	if start >= len(filtered) {
		return []models.Entity{}
	}
	end := start + PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end]
}

// VisibleTotal returns the filtered record count for a collection.
func (s *Store) VisibleTotal(t models.EntityType) int {
	return len(s.filteredEntities(t))
}

func (s *Store) filteredEntities(t models.EntityType) []models.Entity {
	t = canonicalType(t)

	s.mu.Lock()
	entities := cloneEntities(s.partitionLocked(t))
	ls := *s.lists[t]
	s.mu.Unlock()

	var filtered []models.Entity
	for _, e := range entities {
		if ls.StatusFilter != "" && !strings.EqualFold(e.Status, ls.StatusFilter) {
			continue
		}
		if ls.SearchTerm != "" && !matchesSearch(e, ls.SearchTerm) {
			continue
		}
		filtered = append(filtered, e)
	}
	sortEntities(filtered, ls.SortKey)
	return filtered
}

func matchesSearch(e models.Entity, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	haystack := []string{e.Name, e.Status, string(e.Stage), e.Industry, e.Notes}
	haystack = append(haystack, e.GroupNames()...)
	for _, field := range haystack {
		if strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

func sortEntities(entities []models.Entity, key string) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := entities[i], entities[j]
		switch key {
		case SortByUpdated:
			return a.UpdatedAt.After(b.UpdatedAt)
		case SortByStage:
			if models.StageIndex(a.Stage) != models.StageIndex(b.Stage) {
				return models.StageIndex(a.Stage) < models.StageIndex(b.Stage)
			}
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case SortByRevenue:
			return a.Revenue > b.Revenue
		default:
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	})
}

// Preference keys for per-view toggles.
const (
	prefShowSites        = "show-sites"
	prefSelectedServices = "selected-services"
)

// ShowSites reads the per-view show-sites toggle.
func (s *Store) ShowSites(view string) bool {
	return s.cache.BoolPreference(prefShowSites+":"+view, false)
}

// SetShowSites persists the per-view show-sites toggle.
func (s *Store) SetShowSites(view string, show bool) {
	s.cache.SetBoolPreference(prefShowSites+":"+view, show)
}

// SelectedServices reads the persisted services filter.
func (s *Store) SelectedServices() []string {
	raw := s.cache.Preference(prefSelectedServices, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// SetSelectedServices persists the services filter.
func (s *Store) SetSelectedServices(services []string) {
	s.cache.SetPreference(prefSelectedServices, strings.Join(services, ","))
}
