package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/library"
)

type adminState struct {
	loaded   bool
	stats    library.Stats
	users    []library.User
	overdue  []library.Issue
	selected int
}

func (m Model) handleAdminKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.isAdmin() {
		return m, nil
	}
	if key.Matches(msg, m.keys.Role) {
		u, ok := pick(m.admin.users, m.admin.selected)
		if !ok {
			return m, nil
		}
		if m.user != nil && u.ID == m.user.ID {
			m.pushToast(toastWarn, "You cannot change your own role")
			return m, nil
		}
		role := "admin"
		if u.IsAdmin() {
			role = "member"
		}
		m.inflight++
		return m, roleCmd(m.ctx, m.svc, u.ID, role)
	}
	m.admin.selected = moveSelection(msg, m.keys, m.admin.selected, len(m.admin.users), m.contentHeight()-6)
	return m, nil
}

func (m Model) handleAdmin(msg adminMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil {
		return m, nil
	}
	m.admin.loaded = true
	m.admin.stats = msg.stats
	m.admin.users = msg.users
	m.admin.overdue = msg.overdue
	m.admin.selected = clamp(m.admin.selected, len(m.admin.users))
	return m, nil
}

func (m Model) handleRole(msg roleMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil {
		return m, nil
	}
	for i := range m.admin.users {
		if m.admin.users[i].ID == msg.user.ID {
			m.admin.users[i] = msg.user
		}
	}
	m.pushToast(toastSuccess, fmt.Sprintf("%s is now %s", msg.user.Username, msg.user.Role))
	return m, nil
}

func (m Model) renderAdmin() string {
	height := m.contentHeight()
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)

	switch {
	case !m.isAdmin():
		return m.renderTitledBox("Admin", bg.Render("Administrators only.", styles.MutedText), m.width, height, m.theme.SurfaceAlt)
	case !m.admin.loaded:
		return m.renderTitledBox("Admin", bg.Render("Loading...", styles.MutedText), m.width, height, m.theme.SurfaceAlt)
	}

	s := m.admin.stats
	stat := func(label string, v any, style lipgloss.Style) string {
		return bg.Render(label, styles.MutedText) + bg.Space() + bg.Render(fmt.Sprint(v), style)
	}
	overdueStyle := styles.Text
	if s.OverdueIssues > 0 {
		overdueStyle = styles.DangerText
	}
	lines := []string{
		bg.Join([]string{
			stat("Books", s.TotalBooks, styles.Text),
			stat("Copies", fmt.Sprintf("%d/%d", s.AvailableCopies, s.TotalCopies), styles.Text),
			stat("Users", s.TotalUsers, styles.Text),
			stat("On loan", s.ActiveIssues, styles.Text),
			stat("Overdue", s.OverdueIssues, overdueStyle),
			stat("Fines", fmt.Sprintf("%.2f", s.OutstandingFines), styles.WarningText),
		}, "  "),
		"",
		bg.Render("Users", styles.AccentText.Bold(true)),
	}

	rows := max(1, height-2-len(lines)-2)
	start := scrollStart(m.admin.selected, len(m.admin.users), rows)
	for i := start; i < len(m.admin.users) && i < start+rows; i++ {
		lines = append(lines, m.formatUserRow(m.admin.users[i], m.width-2, i == m.admin.selected))
	}

	if len(m.admin.overdue) > 0 {
		var titles []string
		for _, o := range m.admin.overdue {
			titles = append(titles, fmt.Sprintf("%s (%s)", o.BookTitle, o.Username))
		}
		lines = append(lines, "",
			bg.Render("Overdue:", styles.DangerText)+bg.Space()+
				bg.Render(truncate(strings.Join(titles, ", "), m.width-14), styles.Text))
	}
	return m.renderTitledBox("Admin", strings.Join(lines, "\n"), m.width, height, m.theme.SurfaceAlt)
}

func (m Model) formatUserRow(u library.User, width int, selected bool) string {
	bgColor := m.theme.SurfaceAlt
	if selected {
		bgColor = m.theme.SelectionBg
	}
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)

	badge := badgeMember
	if u.IsAdmin() {
		badge = badgeAdmin
	}
	row := styles.StatusStyle(badge).Render(fmt.Sprintf("%-6s", badge)) + bg.Space() +
		bg.Render(padRight(truncate(u.Username, 20), 20), styles.Text) + bg.Space() +
		bg.Render(truncate(u.Email, max(8, width-32)), styles.MutedText)
	return bg.FillLine(row, width)
}
