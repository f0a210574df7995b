// ABOUTME: Bubbletea model for the mixer TUI
// ABOUTME: Shows category levels, master volume, active sessions and engine stats
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/stream"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/playback"
)

// RefreshInterval is how often the model polls the controller
const RefreshInterval = 200 * time.Millisecond

const levelStep = 0.05

// Controller is the part of sound.System the TUI drives
type Controller interface {
	Sessions() []stream.Snapshot
	GetLevel(category audio.Category) (float64, error)
	SetLevel(category audio.Category, level float64) error
	MasterVolume() float64
	SetMasterVolume(v float64)
	StopAll()
	Stats() playback.Stats
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	helpStyle     = lipgloss.NewStyle().Faint(true)
)

// Model represents the TUI state
type Model struct {
	ctrl    Controller
	backend string

	levels   [audio.NumCategories]float64
	master   float64
	muted    bool
	unmuted  float64
	selected audio.Category
	sessions []stream.Snapshot
	stats    playback.Stats

	showDebug bool
	width     int
	height    int
}

type tickMsg time.Time

// NewModel creates a model over ctrl
func NewModel(ctrl Controller, backend string) Model {
	m := Model{ctrl: ctrl, backend: backend, master: 1, unmuted: 1}
	m.refresh()
	return m
}

// Init starts the refresh ticker
func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		m.refresh()
		return m, tick()
	}
	return m, nil
}

func (m *Model) refresh() {
	if m.ctrl == nil {
		return
	}
	for _, c := range audio.Categories {
		if v, err := m.ctrl.GetLevel(c); err == nil {
			m.levels[c] = v
		}
	}
	if !m.muted {
		m.master = m.ctrl.MasterVolume()
	}
	m.sessions = m.ctrl.Sessions()
	m.stats = m.ctrl.Stats()
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up":
		m.setMaster(m.master + levelStep)
	case "down":
		m.setMaster(m.master - levelStep)
	case "left", "right", "tab":
		m.selected = audio.Category((int(m.selected) + 1) % audio.NumCategories)
	case "+", "=":
		m.setLevel(m.levels[m.selected] + levelStep)
	case "-", "_":
		m.setLevel(m.levels[m.selected] - levelStep)
	case "m":
		m.toggleMute()
	case "s":
		if m.ctrl != nil {
			m.ctrl.StopAll()
		}
		m.sessions = nil
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

func (m *Model) setMaster(v float64) {
	v = min(max(v, 0), 1)
	m.master = v
	m.muted = false
	if m.ctrl != nil {
		m.ctrl.SetMasterVolume(v)
	}
}

func (m *Model) setLevel(v float64) {
	v = min(max(v, 0), 1)
	m.levels[m.selected] = v
	if m.ctrl != nil {
		m.ctrl.SetLevel(m.selected, v)
	}
}

func (m *Model) toggleMute() {
	if m.muted {
		m.muted = false
		m.master = m.unmuted
	} else {
		m.muted = true
		m.unmuted = m.master
		m.master = 0
	}
	if m.ctrl != nil {
		m.ctrl.SetMasterVolume(m.master)
	}
}

// View renders the TUI
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Mixer"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Output: "))
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s, %s", m.backend, m.stats.State)))
	b.WriteString("\n")

	mute := ""
	if m.muted {
		mute = " (muted)"
	}
	b.WriteString(headerStyle.Render("Master: "))
	b.WriteString(fmt.Sprintf("[%s] %3d%%%s\n", renderBar(m.master, 10), percent(m.master), mute))

	for _, c := range audio.Categories {
		label := fmt.Sprintf("%-7s", c.String()+":")
		if c == m.selected {
			label = selectedStyle.Render(label)
		} else {
			label = headerStyle.Render(label)
		}
		b.WriteString(fmt.Sprintf("%s [%s] %3d%%\n", label, renderBar(m.levels[c], 10), percent(m.levels[c])))
	}
	b.WriteString("\n")

	b.WriteString(selectedStyle.Render(fmt.Sprintf("Active Sessions (%d)", len(m.sessions))))
	b.WriteString("\n")
	if len(m.sessions) == 0 {
		b.WriteString(valueStyle.Render("  No sessions"))
		b.WriteString("\n")
	}
	for _, s := range m.sessions {
		b.WriteString(fmt.Sprintf("  %-24s %-6s %-9s %s\n",
			truncate(s.Name, 24), s.Category, s.State, renderProgress(s.Position, s.Length, 12)))
	}

	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓:Master  ←/→:Category  +/-:Level  m:Mute  s:Stop all  d:Debug  q:Quit"))
	return b.String()
}

// renderDebug renders engine counters
func (m Model) renderDebug() string {
	st := m.stats
	return fmt.Sprintf("Buffers: %d x %d bytes (%d in flight)\nRefills: %d  Underruns: %d  Submit failures: %d\nPitch: %.3f\n",
		st.Buffers, st.BufferBytes, st.InFlight, st.Refills, st.Underruns, st.SubmitFailures, st.Pitch)
}

func percent(v float64) int {
	return int(v*100 + 0.5)
}

func renderBar(v float64, width int) string {
	filled := int(v*float64(width) + 0.5)
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func renderProgress(pos, length, width int) string {
	if length <= 0 {
		return strings.Repeat("░", width)
	}
	return renderBar(float64(pos)/float64(length), width)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}
