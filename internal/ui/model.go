// ABOUTME: Bubbletea model for the server status TUI
// ABOUTME: Shows connected clients, stream progress, and recent events
package ui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

const maxEventLines = 5

// ClientRow is one connected client in the status view.
type ClientRow struct {
	ID         string
	RemoteAddr string
}

// StatusMsg updates TUI state. Zero fields leave the current value alone.
type StatusMsg struct {
	ServerName string
	Port       int
	Clients    []ClientRow
	HasClients bool

	StreamsSent   int64
	ChunksSent    int64
	BytesSent     int64
	ChunksDropped int64

	EventLine string
}

// Model represents the TUI state
type Model struct {
	serverName string
	port       int

	clients []ClientRow

	streamsSent   int64
	chunksSent    int64
	bytesSent     int64
	chunksDropped int64

	events []string

	width  int
	height int
}

// NewModel creates a TUI model
func NewModel(serverName string, port int) Model {
	return Model{
		serverName: serverName,
		port:       port,
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := ""
	s += m.renderHeader()
	s += m.renderClients()
	s += m.renderStats()
	s += m.renderEvents()
	s += m.renderHelp()

	return s
}

// renderHeader renders the server identity line
func (m Model) renderHeader() string {
	return fmt.Sprintf(`┌─ PCMCast Server ─────────────────────────────────────┐
│ %-52s │
├──────────────────────────────────────────────────────┤
`, fmt.Sprintf("%s (port %d)", truncate(m.serverName, 38), m.port))
}

// renderClients renders the connected client list
func (m Model) renderClients() string {
	if len(m.clients) == 0 {
		return "│ No clients connected                                 │\n"
	}

	s := fmt.Sprintf("│ Clients (%d):%-40s │\n", len(m.clients), "")
	for _, c := range m.clients {
		line := fmt.Sprintf("%s  %s", truncate(c.ID, 12), c.RemoteAddr)
		s += fmt.Sprintf("│   %-50s │\n", truncate(line, 50))
	}
	return s
}

// renderStats renders cumulative streaming statistics
func (m Model) renderStats() string {
	return fmt.Sprintf(`├──────────────────────────────────────────────────────┤
│ Streams: %-6d Chunks: %-8d Dropped: %-8d │
│ Sent: %-46s │
`, m.streamsSent, m.chunksSent, m.chunksDropped, formatBytes(m.bytesSent))
}

// renderEvents renders the recent event log
func (m Model) renderEvents() string {
	if len(m.events) == 0 {
		return ""
	}

	s := "├──────────────────────────────────────────────────────┤\n"
	for _, line := range m.events {
		s += fmt.Sprintf("│ %-52s │\n", truncate(line, 52))
	}
	return s
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return `│ q:Quit                                               │
└──────────────────────────────────────────────────────┘
`
}

// applyStatus updates model from a status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.ServerName != "" {
		m.serverName = msg.ServerName
	}
	if msg.Port != 0 {
		m.port = msg.Port
	}
	if msg.HasClients {
		m.clients = msg.Clients
	}
	if msg.StreamsSent != 0 {
		m.streamsSent = msg.StreamsSent
	}
	if msg.ChunksSent != 0 {
		m.chunksSent = msg.ChunksSent
	}
	if msg.BytesSent != 0 {
		m.bytesSent = msg.BytesSent
	}
	if msg.ChunksDropped != 0 {
		m.chunksDropped = msg.ChunksDropped
	}
	if msg.EventLine != "" {
		m.events = append(m.events, msg.EventLine)
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
	}
}

// Utility functions
func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
