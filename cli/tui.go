// ABOUTME: TUI subcommand
// ABOUTME: Hydrates the store, starts live sync, and runs the bubbletea program
package cli

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/harperreed/funnel/tui"
)

// TUICommand opens the interactive terminal UI.
func TUICommand(app *App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.Store.Hydrate()
	if app.Live != nil {
		if err := app.Store.Start(ctx); err != nil {
			zap.L().Warn("live sync unavailable", zap.Error(err))
		}
	}

	model := tui.NewModel(app.Store)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
