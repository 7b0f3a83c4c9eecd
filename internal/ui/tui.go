// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the server status view
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI program. Callers push StatusMsg updates via
// Program.Send and should Quit the program on shutdown.
func Run(serverName string, port int) *tea.Program {
	return tea.NewProgram(NewModel(serverName, port), tea.WithAltScreen())
}
