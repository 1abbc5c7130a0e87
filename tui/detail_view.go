// ABOUTME: Detail view rendering for the TUI
// ABOUTME: Read-focused single-entity panel; opening it marks the record as being edited
package tui

import (
	"fmt"
	"strings"
)

func (m Model) renderDetailView() string {
	var b strings.Builder

	e, ok := m.store.Entity(m.currentType(), m.selectedID)
	if !ok {
		b.WriteString(errStyle.Render("record no longer exists"))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("esc back"))
		return b.String()
	}

	b.WriteString(titleStyle.Render(e.Name))
	b.WriteString("\n\n")

	fields := []struct {
		label string
		value string
	}{
		{"Type", string(e.Type)},
		{"Status", e.Status},
		{"Stage", string(e.Stage)},
		{"Industry", e.Industry},
		{"Revenue", fmt.Sprintf("$%.0f", e.Revenue)},
		{"Groups", strings.Join(e.GroupNames(), ", ")},
		{"Agent", e.ExternalAgentID},
		{"Notes", e.Notes},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("  %-10s %s\n", f.label, f.value))
	}

	if e.IsStarred {
		b.WriteString("  ★ starred\n")
	}

	if len(e.Opportunities) > 0 {
		b.WriteString("\n")
		b.WriteString(stageHeaderStyle.Render("Opportunities"))
		b.WriteString("\n")
		for _, opp := range e.Opportunities {
			name := opp.Name
			if name == "" {
				name = e.Name
			}
			b.WriteString(fmt.Sprintf("  %-30s %-14s $%.0f\n", truncate(name, 30), opp.Stage, opp.Value))
		}
	}

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("s star · esc back · q quit"))
	return b.String()
}
