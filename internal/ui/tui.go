// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kanade-player/kanade-go/internal/engine"
)

// NewModel creates a TUI model bound to a running engine.
func NewModel(mailbox *engine.Mailbox, fetch StatusFunc) Model {
	return Model{
		mailbox: mailbox,
		fetch:   fetch,
	}
}

// Run starts the TUI program in the alternate screen.
func Run(mailbox *engine.Mailbox, fetch StatusFunc) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(mailbox, fetch), tea.WithAltScreen())
	return p, nil
}
