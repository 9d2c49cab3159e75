package ui

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/logtail"
)

var logLevels = []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError}

// logState holds the client log viewer.
type logState struct {
	viewport viewport.Model
	entries  []logtail.Entry
	minLevel slog.Level
	follow   bool
	err      error
	loaded   bool
}

func newLogState() logState {
	return logState{
		viewport: viewport.New(0, 0),
		minLevel: slog.LevelDebug,
		follow:   true,
	}
}

func (m Model) logPath() string {
	if m.config == nil {
		return ""
	}
	return m.config.LogFile
}

func (m *Model) refreshLogs() tea.Cmd {
	path := m.logPath()
	if path == "" {
		return nil
	}
	return logsCmd(path)
}

func (m *Model) resizeLogViewport() {
	m.logs.viewport.Width = max(0, m.width-4)
	m.logs.viewport.Height = max(0, m.contentHeight()-2)
	m.updateLogViewport()
}

func (m *Model) handleLogs(msg logsMsg) {
	m.logs.loaded = true
	m.logs.err = msg.err
	if msg.err == nil {
		m.logs.entries = msg.entries
	}
	m.updateLogViewport()
}

func (m *Model) updateLogViewport() {
	m.logs.viewport.Style = lipgloss.NewStyle().Background(lipgloss.Color(m.theme.FocusBg))
	m.logs.viewport.SetContent(m.renderLogContent())
	if m.logs.follow {
		m.logs.viewport.GotoBottom()
	}
}

func (m Model) renderLogContent() string {
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)

	entries := logtail.Filter(m.logs.entries, m.logs.minLevel)
	if len(entries) == 0 {
		return bg.Render("No log records at this level.", styles.MutedText)
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, bg.Render(truncate(e.Format(), max(20, m.width-6)), m.levelStyle(e.Level, styles)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) levelStyle(level slog.Level, styles Styles) lipgloss.Style {
	switch {
	case level >= slog.LevelError:
		return styles.DangerText
	case level >= slog.LevelWarn:
		return styles.WarningText
	case level >= slog.LevelInfo:
		return styles.Text
	default:
		return styles.FaintText
	}
}

func (m Model) handleLogsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Follow):
		m.logs.follow = !m.logs.follow
		if m.logs.follow {
			m.logs.viewport.GotoBottom()
		}
		return m, nil
	case key.Matches(msg, m.keys.LogLevel):
		m.logs.minLevel = nextLevel(m.logs.minLevel)
		m.updateLogViewport()
		return m, nil
	case key.Matches(msg, m.keys.Top):
		m.logs.follow = false
		m.logs.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.logs.viewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.PageUp):
		m.logs.follow = false
	}
	var cmd tea.Cmd
	m.logs.viewport, cmd = m.logs.viewport.Update(msg)
	return m, cmd
}

func nextLevel(l slog.Level) slog.Level {
	for i, lv := range logLevels {
		if lv == l {
			return logLevels[(i+1)%len(logLevels)]
		}
	}
	return logLevels[0]
}

func (m Model) renderLogs() string {
	height := m.contentHeight()
	styles := m.theme.Styles().WithBackground(m.theme.FocusBg)
	bg := NewBgStyle(m.theme.FocusBg)

	var body string
	switch {
	case m.logPath() == "":
		body = bg.Render("Logging is disabled.", styles.MutedText)
	case m.logs.err != nil:
		body = bg.Render("Cannot read "+m.logPath()+": "+m.logs.err.Error(), styles.DangerText)
	case !m.logs.loaded:
		body = bg.Render("Loading...", styles.MutedText)
	default:
		body = m.logs.viewport.View()
	}

	follow := "paused"
	if m.logs.follow {
		follow = "following"
	}
	title := fmt.Sprintf("Logs ≥%s · %s", m.logs.minLevel, follow)
	return m.renderTitledBox(title, body, m.width, height, m.theme.FocusBg)
}
