package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mulltray/mulltray/internal/models"
	"github.com/mulltray/mulltray/internal/state"
	"github.com/mulltray/mulltray/internal/tray"
)

const (
	maxHistory    = 100
	noticeTimeout = 4 * time.Second
)

// Model is the root Bubbletea model for the watch view.
type Model struct {
	socketPath string
	dispatch   func(models.Command)

	// Last pushed presentation
	icon    tray.Icon
	title   string
	entries []tray.MenuEntry

	notice   string
	noticeID int

	history  []string
	viewport viewport.Model
	width    int
	height   int

	now func() time.Time
}

// NewModel creates the view in the unknown state.
func NewModel(socketPath string, dispatch func(models.Command)) Model {
	initial := tray.Present(state.Snapshot{})
	return Model{
		socketPath: socketPath,
		dispatch:   dispatch,
		icon:       initial.Icon,
		title:      initial.Title,
		entries:    initial.Entries,
		viewport:   viewport.New(80, 10),
		now:        time.Now,
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update processes messages and returns an updated model and commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(msg.Width-2, 10)
		m.viewport.Height = max(msg.Height-8, 3)
		m.syncHistory()
		return m, nil

	case iconMsg:
		m.icon = msg.icon
		return m, nil

	case titleMsg:
		m.title = msg.title
		m.record(msg.title)
		return m, nil

	case menuMsg:
		m.entries = msg.entries
		return m, nil

	case noticeMsg:
		m.noticeID++
		m.notice = msg.text
		m.record("! " + msg.text)
		id := m.noticeID
		return m, tea.Tick(noticeTimeout, func(time.Time) tea.Msg {
			return clearNoticeMsg{id: id}
		})

	case clearNoticeMsg:
		if msg.id == m.noticeID {
			m.notice = ""
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.ForceQuit) {
			return m, tea.Quit
		}
		for _, e := range m.entries {
			b, ok := keys.binding(e.Command)
			if !ok || !key.Matches(msg, b) {
				continue
			}
			if e.Enabled && m.dispatch != nil {
				m.dispatch(e.Command)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) record(line string) {
	stamp := m.now().Format("15:04:05")
	m.history = append(m.history, stamp+"  "+line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.syncHistory()
}

func (m *Model) syncHistory() {
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

// View renders the current state.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("mulltray"))
	b.WriteString("  ")
	b.WriteString(socketStyle.Render(m.socketPath))
	b.WriteString("\n\n")

	style, ok := iconStyles[m.icon]
	if !ok {
		style = iconStyles[tray.IconUnknown]
	}
	glyph := iconGlyphs[m.icon]
	if glyph == "" {
		glyph = "?"
	}
	b.WriteString(style.Render(glyph + " " + m.title))
	b.WriteString("\n")

	if m.notice != "" {
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n")

	b.WriteString(historyStyle.Render(m.viewport.View()))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	return b.String()
}

func (m Model) renderStatusBar() string {
	var hints []string
	for _, e := range m.entries {
		b, ok := keys.binding(e.Command)
		if !ok {
			continue
		}
		h := b.Help()
		if e.Enabled {
			hints = append(hints, keyStyle.Render(h.Key)+" "+hintStyle.Render(h.Desc))
		} else {
			hints = append(hints, disabledKeyStyle.Render(h.Key+" "+h.Desc))
		}
	}
	bar := " " + strings.Join(hints, "  ")
	if m.width > 0 {
		return statusBarStyle.Width(m.width).Render(bar)
	}
	return statusBarStyle.Render(bar)
}
