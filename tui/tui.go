// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: List and pipeline views over the record store with live editing guard
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/funnel/models"
	"github.com/harperreed/funnel/pipeline"
	"github.com/harperreed/funnel/store"
)

// ViewMode represents the current TUI view.
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewPipeline
	ViewDetail
)

// Tab selects which collection the list view shows.
type Tab int

const (
	TabClients Tab = iota
	TabLeads
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(0, 1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Padding(0, 2)

	stageHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("81"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// loadedMsg signals that a background load finished.
type loadedMsg struct{ err error }

// opportunitiesMsg signals that the lazy opportunity fetch finished.
type opportunitiesMsg struct{ err error }

// Model is the main bubbletea model.
type Model struct {
	store *store.Store

	viewMode ViewMode
	tab      Tab

	selectedRow int
	selectedID  string

	searchInput textinput.Model
	searching   bool

	// pipelineCancel tears down the in-flight opportunity load when the
	// pipeline view is left; a response arriving after cancel is discarded.
	pipelineCancel context.CancelFunc

	width  int
	height int
	err    error
}

// NewModel creates a new TUI model.
func NewModel(s *store.Store) Model {
	search := textinput.New()
	search.Placeholder = "search"
	search.CharLimit = 64

	return Model{
		store:       s,
		viewMode:    ViewList,
		tab:         TabClients,
		searchInput: search,
		width:       80,
		height:      24,
	}
}

func (m Model) Init() tea.Cmd {
	return m.loadCmd(false)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case loadedMsg:
		m.err = msg.err
		return m, nil
	case opportunitiesMsg:
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewPipeline:
		return m.renderPipelineView()
	case ViewDetail:
		return m.renderDetailView()
	default:
		return m.renderListView()
	}
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		switch msg.String() {
		case "enter", "esc":
			m.searching = false
			m.searchInput.Blur()
			m.store.SetSearchTerm(m.currentType(), m.searchInput.Value())
			m.selectedRow = 0
			return m, nil
		default:
			var cmd tea.Cmd
			m.searchInput, cmd = m.searchInput.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "tab":
		if m.viewMode == ViewList {
			if m.tab == TabClients {
				m.tab = TabLeads
			} else {
				m.tab = TabClients
			}
			m.selectedRow = 0
		}
		return m, nil

	case "p":
		if m.viewMode != ViewPipeline {
			m.viewMode = ViewPipeline
			return m, m.attachOpportunitiesCmd()
		}
		return m, nil

	case "l":
		m.leavePipeline()
		m.viewMode = ViewList
		return m, nil

	case "/":
		if m.viewMode == ViewList {
			m.searching = true
			m.searchInput.Focus()
		}
		return m, nil

	case "r":
		return m, m.loadCmd(true)

	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
		return m, nil

	case "down", "j":
		if m.selectedRow < m.rowCount()-1 {
			m.selectedRow++
		}
		return m, nil

	case "enter":
		if m.viewMode == ViewList {
			entities := m.store.VisibleEntities(m.currentType())
			if m.selectedRow < len(entities) {
				m.selectedID = entities[m.selectedRow].ID
				m.viewMode = ViewDetail
				m.store.Handle(store.OpenEntityCommand{Type: m.currentType(), ID: m.selectedID})
			}
		}
		return m, nil

	case "esc":
		if m.viewMode == ViewDetail {
			m.viewMode = ViewList
			m.selectedID = ""
			m.store.Handle(store.ResetViewCommand{})
		} else if m.viewMode == ViewPipeline {
			m.leavePipeline()
			m.viewMode = ViewList
		}
		return m, nil

	case "s":
		if m.viewMode == ViewDetail && m.selectedID != "" {
			id := m.selectedID
			t := m.currentType()
			return m, func() tea.Msg {
				err := m.store.ToggleStar(context.Background(), t, id)
				return loadedMsg{err: err}
			}
		}
		return m, nil
	}
	return m, nil
}

func (m Model) currentType() models.EntityType {
	if m.tab == TabLeads {
		return models.TypeLead
	}
	return models.TypeClient
}

func (m Model) rowCount() int {
	if m.viewMode == ViewPipeline {
		summary := pipeline.Aggregate(m.store.Leads(), m.store.Clients(), pipeline.Query{})
		return len(summary.Items)
	}
	return len(m.store.VisibleEntities(m.currentType()))
}

func (m Model) loadCmd(force bool) tea.Cmd {
	t := m.currentType()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return loadedMsg{err: m.store.Load(ctx, t, force)}
	}
}

func (m *Model) attachOpportunitiesCmd() tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.pipelineCancel = cancel
	return func() tea.Msg {
		return opportunitiesMsg{err: m.store.AttachOpportunities(ctx)}
	}
}

func (m *Model) leavePipeline() {
	if m.pipelineCancel != nil {
		m.pipelineCancel()
		m.pipelineCancel = nil
	}
}
