// ABOUTME: TUI startup
// ABOUTME: Wraps the bubbletea program for the mixer UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// New creates the bubbletea program on the alternate screen
func New(ctrl Controller, backend string) *tea.Program {
	return tea.NewProgram(NewModel(ctrl, backend), tea.WithAltScreen())
}
