package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/api"
)

// renderHeader renders the status bar: logo, connection, user, counts.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	parts := []string{bg.Render("shelf", styles.Logo)}

	switch {
	case m.snapshot.IsOffline():
		parts = append(parts,
			bg.Render("● OFFLINE", styles.DangerText),
			bg.Render(classifyConnectionError(m.snapshot.LastError), styles.WarningText))
	case m.snapshot.LastError != nil:
		parts = append(parts, bg.Render("● "+classifyConnectionError(m.snapshot.LastError), styles.WarningText))
	case m.snapshot.HasCatalog:
		parts = append(parts, bg.Render("● ONLINE", styles.SuccessText))
	default:
		parts = append(parts, bg.Render("Connecting...", styles.WarningText.Bold(true)))
	}

	if m.user != nil {
		who := bg.Render(displayName(*m.user), styles.Text)
		if m.user.IsAdmin() {
			who += bg.Space() + styles.StatusStyle(badgeAdmin).Render("admin")
		}
		parts = append(parts, who)
		open := len(m.openLoans())
		if open > 0 {
			loanStyle := styles.Text
			for _, l := range m.openLoans() {
				if loanStatus(l, m.now()) == badgeOverdue {
					loanStyle = styles.DangerText
					break
				}
			}
			parts = append(parts, bg.Render("Loans:", styles.MutedText)+bg.Space()+
				bg.Render(fmt.Sprintf("%d", open), loanStyle))
		}
	} else {
		parts = append(parts, bg.Render("signed out", styles.FaintText))
	}

	if m.inflight > 0 {
		parts = append(parts, bg.Render(m.spinner.View(), styles.AccentText))
	}
	if !m.snapshot.LastUpdated.IsZero() && m.width >= 90 {
		parts = append(parts, bg.Render("updated "+m.snapshot.LastUpdated.Format("15:04:05"), styles.FaintText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// classifyConnectionError shortens a poll error for the header.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	var ae *api.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case api.KindNetworkError:
			return "UNREACHABLE"
		case api.KindTimeout:
			return "TIMEOUT"
		case api.KindServiceUnavailable, api.KindServerError:
			return "SERVICE ERROR"
		case api.KindRateLimited:
			return "RATE LIMITED"
		}
		return strings.ToUpper(ae.Kind.String())
	}
	return "ERROR"
}

// renderCommandBar lists the keys for the active view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	for _, v := range viewOrder {
		label := v.String()
		if v == m.currentView {
			label = "[" + label + "]"
		}
		commands = append(commands, cmd{fmt.Sprintf("%d", int(v)+1), label})
	}

	switch m.currentView {
	case ViewCatalog:
		commands = append(commands, cmd{"/", "Search"}, cmd{"i", "Borrow"})
	case ViewLoans:
		commands = append(commands, cmd{"r", "Return"}, cmd{"n", "Renew"})
	case ViewAdmin:
		if m.isAdmin() {
			commands = append(commands, cmd{"R", "Role"})
		}
	case ViewLogs:
		follow := "Pause"
		if !m.logs.follow {
			follow = "Follow"
		}
		commands = append(commands, cmd{"Space", follow}, cmd{"v", "Level"})
	}

	account := "Sign in"
	if m.signedIn() {
		account = "Sign out"
	}
	commands = append(commands, cmd{"L", account}, cmd{"?", "More"})

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments,
			bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}
	segments = append(segments,
		bg.Render("T", styles.AccentText)+colon+bg.Render(m.theme.Name, styles.FaintText))

	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

// renderFooter shows the newest toast, or the API address.
func (m Model) renderFooter() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	bg := NewBgStyle(m.theme.Surface)

	if t, ok := m.latestToast(); ok {
		style := styles.InfoText
		switch t.level {
		case toastSuccess:
			style = styles.SuccessText
		case toastWarn:
			style = styles.WarningText
		case toastError:
			style = styles.DangerText
		}
		return styles.Header.Width(m.width).Render(bg.Render(truncate(t.text, m.width-2), style))
	}

	text := ""
	if m.svc != nil {
		text = truncateMiddle(m.svc.BaseURL(), max(10, m.width-2))
	}
	return lipgloss.NewStyle().
		Background(lipgloss.Color(m.theme.Surface)).
		Width(m.width).
		Render(bg.Render(" "+text, styles.FaintText))
}
