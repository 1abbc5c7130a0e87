// ABOUTME: Tests for TUI navigation and rendering
// ABOUTME: Verifies tab switching, search, detail opening, and pipeline output
package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/funnel/cache"
	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/restore"
	"github.com/harperreed/funnel/store"
)

func setupTestModel(t *testing.T) Model {
	t.Helper()

	c, err := cache.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open cache: %v", err)
	}
	r, err := restore.OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to open restore store: %v", err)
	}

	c.SetJSON(cache.CollectionClients, []models.Entity{
		{
			ID:     "c-1",
			Type:   models.TypeClient,
			Name:   "Acme Mining",
			Status: models.StatusActive,
			Stage:  models.StageAction,
			Opportunities: []models.Opportunity{
				{ID: "o-1", Name: "Site survey", Stage: models.StageDesire, Value: 900, ClientID: "c-1"},
			},
		},
		{
			ID:     "c-2",
			Type:   models.TypeClient,
			Name:   "Zebra Logistics",
			Status: models.StatusPotential,
			Stage:  models.StageInterest,
		},
		{
			ID:        "l-1",
			Type:      models.TypeLead,
			Name:      "Bergrivier Farms",
			Status:    models.StatusPotential,
			Stage:     models.StageAwareness,
			Revenue:   250,
			IsStarred: true,
		},
	})

	s := store.New(store.Options{
		Cache:           c,
		Restore:         r,
		RestoreDebounce: time.Hour,
	})
	s.Hydrate()

	t.Cleanup(func() {
		s.Close()
		_ = r.Close()
		_ = c.Close()
	})

	return NewModel(s)
}

func key(s string) tea.KeyMsg {
	switch s {
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	default:
		return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
	}
}

func press(t *testing.T, m Model, s string) Model {
	t.Helper()
	updated, _ := m.handleKeyPress(key(s))
	return updated.(Model)
}

func TestTabSwitchesCollections(t *testing.T) {
	m := setupTestModel(t)

	if m.currentType() != models.TypeClient {
		t.Fatalf("Expected clients tab first, got %v", m.currentType())
	}

	m = press(t, m, "tab")
	if m.currentType() != models.TypeLead {
		t.Errorf("Expected leads tab after tab key, got %v", m.currentType())
	}

	m = press(t, m, "tab")
	if m.currentType() != models.TypeClient {
		t.Errorf("Expected clients tab after second tab key, got %v", m.currentType())
	}
}

func TestEnterOpensDetailAndMarksEditing(t *testing.T) {
	m := setupTestModel(t)

	m = press(t, m, "enter")
	if m.viewMode != ViewDetail {
		t.Fatalf("Expected detail view, got %v", m.viewMode)
	}
	if m.selectedID != "c-1" {
		t.Errorf("Expected selected id c-1, got %s", m.selectedID)
	}
	if !m.store.Editing() {
		t.Error("Opening a record should mark the store as editing")
	}

	m = press(t, m, "esc")
	if m.viewMode != ViewList {
		t.Errorf("Expected list view after esc, got %v", m.viewMode)
	}
	if m.store.Editing() {
		t.Error("Leaving the detail view should clear the editing flag")
	}
}

func TestSearchFiltersList(t *testing.T) {
	m := setupTestModel(t)

	m = press(t, m, "/")
	if !m.searching {
		t.Fatal("Slash should enter search mode")
	}

	for _, r := range "acme" {
		updated, _ := m.handleKeyPress(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(Model)
	}
	m = press(t, m, "enter")

	if m.searching {
		t.Error("Enter should leave search mode")
	}
	visible := m.store.VisibleEntities(models.TypeClient)
	if len(visible) != 1 || visible[0].ID != "c-1" {
		t.Errorf("Expected only c-1 visible, got %d entities", len(visible))
	}
}

func TestNavigationStaysInBounds(t *testing.T) {
	m := setupTestModel(t)

	m = press(t, m, "k")
	if m.selectedRow != 0 {
		t.Errorf("Up at the top should stay at 0, got %d", m.selectedRow)
	}

	m = press(t, m, "j")
	if m.selectedRow != 1 {
		t.Errorf("Down should move to the second row, got %d", m.selectedRow)
	}

	m = press(t, m, "j")
	if m.selectedRow != 1 {
		t.Errorf("Down past the last row should stay put, got %d", m.selectedRow)
	}
}

func TestListViewRendering(t *testing.T) {
	m := setupTestModel(t)

	output := m.renderListView()
	if !strings.Contains(output, "Acme Mining") {
		t.Error("List view should show the client name")
	}
	if !strings.Contains(output, "Clients") || !strings.Contains(output, "Leads") {
		t.Error("List view should render both tabs")
	}
}

func TestPipelineViewRendering(t *testing.T) {
	m := setupTestModel(t)
	m.viewMode = ViewPipeline

	output := m.renderPipelineView()
	if !strings.Contains(output, "Bergrivier Farms") {
		t.Error("Pipeline view should include the lead")
	}
	if !strings.Contains(output, "Site survey") {
		t.Error("Pipeline view should include the client opportunity")
	}
	if !strings.Contains(output, "TOTAL  $1150") {
		t.Errorf("Pipeline view should total lead revenue and opportunity value, got:\n%s", output)
	}
}

func TestDetailViewRendering(t *testing.T) {
	m := setupTestModel(t)
	m = press(t, m, "enter")

	output := m.renderDetailView()
	if !strings.Contains(output, "Acme Mining") {
		t.Error("Detail view should show the entity name")
	}
	if !strings.Contains(output, "Site survey") {
		t.Error("Detail view should list opportunities")
	}
}
