// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Renders engine status and maps keys onto playback commands
package ui

import (
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kanade-player/kanade-go/internal/audio"
	"github.com/kanade-player/kanade-go/internal/device"
	"github.com/kanade-player/kanade-go/internal/engine"
)

const refreshInterval = 250 * time.Millisecond

// StatusFunc reports the engine's current status snapshot.
type StatusFunc func() engine.Status

// Model represents the TUI state.
type Model struct {
	status  engine.Status
	mailbox *engine.Mailbox
	fetch   StatusFunc

	paused bool

	width  int
	height int
}

// tickMsg drives the periodic status refresh.
type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tick()
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
		if m.fetch != nil {
			m.status = m.fetch()
			m.paused = m.status.Device == device.StatePaused
		}
		return m, tick()
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	s := m.renderHeader()
	s += m.renderTrack()
	s += m.renderBuffer()
	s += m.renderHelp()
	return s
}

func (m Model) renderHeader() string {
	return fmt.Sprintf(`┌─ Kanade ─────────────────────────────────────────────┐
│ Device: %-45s │
├──────────────────────────────────────────────────────┤
`, m.status.Device)
}

func (m Model) renderTrack() string {
	if m.status.Title == "" {
		return "│ No track loaded                                      │\n"
	}

	s := fmt.Sprintf("│ Track:  %-45s │\n", truncate(m.status.Title, 45))
	s += fmt.Sprintf("│ Artist: %-45s │\n", truncate(m.status.Artist, 45))
	s += fmt.Sprintf("│ Album:  %-45s │\n", truncate(m.status.Album, 45))
	s += fmt.Sprintf("│ Format: %-45s │\n", formatSpec(m.status.Spec))
	return s
}

func (m Model) renderBuffer() string {
	line := fmt.Sprintf("Buffered: %d samples", m.status.Buffered)
	if m.status.EOF {
		line += " (end of stream)"
	}
	return fmt.Sprintf("│ %-52s │\n", line)
}

func (m Model) renderHelp() string {
	return `│ space:Pause/Resume  q:Quit                           │
└──────────────────────────────────────────────────────┘
`
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case " ":
		kind := engine.CommandPause
		if m.paused {
			kind = engine.CommandResume
		}
		if err := m.mailbox.Submit(engine.Command{Kind: kind}); err != nil {
			log.Printf("Command %s dropped: %v", kind, err)
		}
		m.paused = !m.paused
	}

	return m, nil
}

func formatSpec(spec audio.StreamSpec) string {
	if spec.SampleRate == 0 {
		return "unknown"
	}
	mode := "PCM"
	if spec.Mode == audio.ModeDSD {
		mode = "DSD"
	}
	return fmt.Sprintf("%s %dHz %s", mode, spec.SampleRate, channelName(spec.Channels))
}

// truncate shortens by runes so multi-byte titles never end in a torn
// character.
func truncate(s string, length int) string {
	r := []rune(s)
	if len(r) <= length {
		return s
	}
	return string(r[:length-3]) + "..."
}

func channelName(channels int) string {
	if channels == 1 {
		return "Mono"
	}
	return "Stereo"
}
