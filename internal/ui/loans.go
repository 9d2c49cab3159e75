package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/library"
)

type loansState struct {
	selected int
}

// openLoans returns the signed-in user's loans that are still out, most
// urgent first.
func (m Model) openLoans() []library.Issue {
	var out []library.Issue
	for _, l := range m.snapshot.Loans {
		if l.Open() {
			out = append(out, l)
		}
	}
	sortLoans(out)
	return out
}

func sortLoans(loans []library.Issue) {
	slices.SortStableFunc(loans, func(a, b library.Issue) int {
		return a.DueDate.Compare(b.DueDate)
	})
}

func (m Model) handleLoansKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	loans := m.openLoans()
	switch {
	case key.Matches(msg, m.keys.Return):
		if l, ok := pick(loans, m.loans.selected); ok {
			m.inflight++
			return m, returnCmd(m.ctx, m.svc, l.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.Renew):
		if l, ok := pick(loans, m.loans.selected); ok {
			m.inflight++
			return m, renewCmd(m.ctx, m.svc, l.ID)
		}
		return m, nil
	}
	m.loans.selected = moveSelection(msg, m.keys, m.loans.selected, len(loans), m.contentHeight()-2)
	return m, nil
}

func (m Model) handleLoans(msg loansMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil {
		return m, nil
	}
	loans := msg.loans
	if loans == nil {
		loans = []library.Issue{}
	}
	m.store.SetLoans(loans)
	m.snapshot.Loans = loans
	m.loans.selected = clamp(m.loans.selected, len(m.openLoans()))
	return m, nil
}

func (m Model) handleLoanAction(msg loanActionMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil {
		return m, nil
	}
	text := fmt.Sprintf("%s %q", msg.action, msg.issue.BookTitle)
	if msg.action == "Renewed" && !msg.issue.DueDate.IsZero() {
		text += ", now due " + msg.issue.DueDate.Local().Format("Jan 2")
	}
	if msg.issue.Fine > 0 {
		text += fmt.Sprintf(" (fine %.2f)", msg.issue.Fine)
	}
	m.pushToast(toastSuccess, text)
	m.refresh()
	m.inflight += 2
	return m, tea.Batch(loansCmd(m.ctx, m.svc), refetchBookCmd(m.ctx, m.svc, msg.issue.BookID))
}

func (m Model) renderLoans() string {
	height := m.contentHeight()
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)

	if !m.signedIn() {
		return m.renderTitledBox("My loans", bg.Render("Press L to sign in.", styles.MutedText), m.width, height, m.theme.SurfaceAlt)
	}

	loans := m.openLoans()
	var lines []string
	if len(loans) == 0 {
		lines = append(lines, bg.Render("Nothing on loan.", styles.MutedText))
	}
	rows := height - 2
	start := scrollStart(m.loans.selected, len(loans), rows)
	now := m.now()
	for i := start; i < len(loans) && i < start+rows; i++ {
		lines = append(lines, m.formatLoanRow(loans[i], now, m.width-2, i == m.loans.selected))
	}
	return m.renderTitledBox(fmt.Sprintf("My loans (%d)", len(loans)), strings.Join(lines, "\n"), m.width, height, m.theme.SurfaceAlt)
}

func (m Model) formatLoanRow(l library.Issue, now time.Time, width int, selected bool) string {
	bgColor := m.theme.SurfaceAlt
	if selected {
		bgColor = m.theme.SelectionBg
	}
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)

	status := loanStatus(l, now)
	due := "due " + l.DueDate.Local().Format("Jan 2")
	if status == badgeOverdue {
		due = fmt.Sprintf("overdue %s", formatDays(now.Sub(l.DueDate)))
	}
	titleWidth := max(10, width-40)
	row := styles.StatusStyle(status).Render(fmt.Sprintf("%-8s", status)) + bg.Space() +
		bg.Render(padRight(truncate(l.BookTitle, titleWidth), titleWidth), styles.Text) + bg.Space() +
		bg.Render(due, dueStyle(status, styles)) + bg.Spaces(2) +
		bg.Render(fmt.Sprintf("renewed %d", l.Renewals), styles.FaintText)
	return bg.FillLine(row, width)
}

func loanStatus(l library.Issue, now time.Time) string {
	switch {
	case !l.Open():
		return badgeReturned
	case l.Status == library.StatusOverdue, !l.DueDate.IsZero() && now.After(l.DueDate):
		return badgeOverdue
	default:
		return badgeIssued
	}
}

func dueStyle(status string, styles Styles) lipgloss.Style {
	if status == badgeOverdue {
		return styles.DangerText
	}
	return styles.MutedText
}

func formatDays(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days <= 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
