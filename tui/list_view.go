// ABOUTME: List view rendering for the TUI
// ABOUTME: Tabbed table of clients or leads with search and paging state
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func (m Model) renderListView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("funnel"))
	b.WriteString("\n\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.searching {
		b.WriteString(m.searchInput.View())
		b.WriteString("\n\n")
	}

	b.WriteString(m.renderTable())
	b.WriteString("\n")

	t := m.currentType()
	state := m.store.ListStateFor(t)
	total := m.store.VisibleTotal(t)
	b.WriteString(helpStyle.Render(fmt.Sprintf("page %d  %d matching", state.Page, total)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("tab switch · / search · enter open · p pipeline · r refresh · q quit"))
	return b.String()
}

func (m Model) renderTabs() string {
	clientsTab := tabInactiveStyle.Render("Clients")
	leadsTab := tabInactiveStyle.Render("Leads")
	if m.tab == TabClients {
		clientsTab = tabActiveStyle.Render("Clients")
	} else {
		leadsTab = tabActiveStyle.Render("Leads")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, clientsTab, " ", leadsTab)
}

func (m Model) renderTable() string {
	entities := m.store.VisibleEntities(m.currentType())

	columns := []table.Column{
		{Title: "Name", Width: 28},
		{Title: "Status", Width: 10},
		{Title: "Stage", Width: 14},
		{Title: "Groups", Width: 20},
		{Title: "★", Width: 2},
	}

	rows := make([]table.Row, 0, len(entities))
	for _, e := range entities {
		star := ""
		if e.IsStarred {
			star = "★"
		}
		rows = append(rows, table.Row{
			e.Name,
			e.Status,
			string(e.Stage),
			strings.Join(e.GroupNames(), ", "),
			star,
		})
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithHeight(min(len(rows)+1, m.height-10)),
	)
	tbl.SetCursor(m.selectedRow)

	return tbl.View()
}
