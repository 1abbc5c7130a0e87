// ABOUTME: Pipeline view rendering for the TUI
// ABOUTME: Stage-grouped board of leads and opportunities with monetary totals
package tui

import (
	"fmt"
	"strings"

	"github.com/harperreed/funnel/pipeline"
)

func (m Model) renderPipelineView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("funnel · pipeline"))
	b.WriteString("\n\n")

	summary := pipeline.Aggregate(m.store.Leads(), m.store.Clients(), pipeline.Query{})

	row := 0
	for _, stage := range summary.Stages {
		header := fmt.Sprintf("%s  (%d · $%.0f)", stage.Stage, stage.Count, stage.Value)
		b.WriteString(stageHeaderStyle.Render(header))
		b.WriteString("\n")

		for _, item := range summary.Items {
			if string(item.Stage) != string(stage.Stage) {
				continue
			}
			cursor := "  "
			if row == m.selectedRow {
				cursor = "> "
			}
			kind := "lead"
			if item.Kind == pipeline.KindOpportunity {
				kind = "opp"
			}
			line := fmt.Sprintf("%s%-30s %-5s $%-10.0f %s", cursor, truncate(item.Name, 30), kind, item.Value, item.Organization)
			b.WriteString(strings.TrimRight(line, " "))
			b.WriteString("\n")
			row++
		}
		b.WriteString("\n")
	}

	b.WriteString(stageHeaderStyle.Render(fmt.Sprintf("TOTAL  $%.0f", summary.TotalValue)))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(errStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("l/esc back to list · r refresh · q quit"))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
