// Package tui is the interactive terminal chat over the assistant.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the chat and blocks until the user quits or ctx ends.
func Run(ctx context.Context, asker Asker, registry Registry, opts Options) error {
	program := tea.NewProgram(
		NewModel(asker, registry, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
