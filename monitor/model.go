package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Go port of the teacher's cli/tui inspect model, adapted to poll the
// worker-pool snapshot instead of rendering a run's stored data.

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Width(16)
	idleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	busyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	finiStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type tickMsg time.Time

type snapshotMsg Snapshot

// Model is a Bubble Tea model polling a ubridge monitor socket and
// rendering the live worker pool.
type Model struct {
	socketName string
	refresh    time.Duration
	snapshot   Snapshot
	err        error
	quitting   bool
}

// NewModel creates a Model that polls socketName every refresh.
func NewModel(socketName string, refresh time.Duration) Model {
	return Model{socketName: socketName, refresh: refresh}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.poll(), tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) }))
}

func (m Model) poll() tea.Cmd {
	return func() tea.Msg {
		snap, err := FetchOnce(m.socketName)
		if err != nil {
			return snapshotMsg{}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, tea.Batch(m.poll(), tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) }))
	case snapshotMsg:
		m.snapshot = Snapshot(msg)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("ubridge worker pool"))
	b.WriteString("\n")
	if len(m.snapshot.Workers) == 0 {
		b.WriteString("(no workers)\n")
	}
	for _, w := range m.snapshot.Workers {
		style := busyStyle
		switch w.State {
		case "idle":
			style = idleStyle
		case "fini":
			style = finiStyle
		}
		b.WriteString(labelStyle.Render(w.ID))
		b.WriteString(style.Render(fmt.Sprintf("pid=%d state=%s", w.PID, w.State)))
		b.WriteString("\n")
	}
	return b.String()
}
