package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/shelf/internal/api"
)

type loginForm struct {
	visible bool
	inputs  [2]textinput.Model // username, password
	focus   int
	notice  string
	err     string
	busy    bool
}

func newLoginForm(lastUser string) loginForm {
	user := textinput.New()
	user.Prompt = "Username  "
	user.CharLimit = 64
	user.SetValue(lastUser)

	pass := textinput.New()
	pass.Prompt = "Password  "
	pass.CharLimit = 128
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return loginForm{inputs: [2]textinput.Model{user, pass}}
}

// open shows the form with an optional notice, focusing the first empty
// field.
func (f *loginForm) open(notice string) {
	f.visible = true
	f.notice = notice
	f.err = ""
	f.busy = false
	f.inputs[1].SetValue("")
	f.focus = 0
	if strings.TrimSpace(f.inputs[0].Value()) != "" {
		f.focus = 1
	}
	f.applyFocus()
}

func (f *loginForm) close() {
	f.visible = false
	f.busy = false
	f.inputs[1].SetValue("")
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
}

func (f *loginForm) applyFocus() {
	for i := range f.inputs {
		if i == f.focus {
			f.inputs[i].Focus()
		} else {
			f.inputs[i].Blur()
		}
	}
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.login.busy {
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		return m, nil
	}
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case key.Matches(msg, m.keys.Escape):
		m.login.close()
		return m, nil
	case key.Matches(msg, m.keys.NextField), msg.Type == tea.KeyShiftTab, msg.Type == tea.KeyUp:
		m.login.focus = 1 - m.login.focus
		m.login.applyFocus()
		return m, textinput.Blink
	case key.Matches(msg, m.keys.Confirm):
		user := strings.TrimSpace(m.login.inputs[0].Value())
		pass := m.login.inputs[1].Value()
		if user == "" || pass == "" {
			m.login.err = "Enter a username and password."
			return m, nil
		}
		if m.login.focus == 0 {
			m.login.focus = 1
			m.login.applyFocus()
			return m, nil
		}
		m.login.busy = true
		m.login.err = ""
		m.inflight++
		return m, loginCmd(m.ctx, m.svc, user, pass)
	}

	var cmd tea.Cmd
	m.login.inputs[m.login.focus], cmd = m.login.inputs[m.login.focus].Update(msg)
	return m, cmd
}

func (m Model) handleLogin(msg loginMsg) (tea.Model, tea.Cmd) {
	m.done()
	m.login.busy = false
	if msg.err != nil {
		switch api.KindOf(msg.err) {
		case api.KindUnauthorized, api.KindBadRequest, api.KindValidation:
			m.login.err = "Invalid username or password."
		default:
			m.login.err = "Sign-in failed: " + msg.err.Error()
		}
		m.login.inputs[1].SetValue("")
		return m, nil
	}

	m.login.close()
	m.user = msg.user
	if m.user == nil {
		m.user = m.svc.Session().CurrentUser()
	}
	if m.user != nil {
		m.pushToast(toastSuccess, "Signed in as "+displayName(*m.user))
		if m.prefs.LastUser != m.user.Username {
			m.prefs.LastUser = m.user.Username
			m.savePrefs()
		}
	}
	m.refresh()
	var cmds []tea.Cmd
	if m.currentView != ViewLoans {
		m.inflight++
		cmds = append(cmds, loansCmd(m.ctx, m.svc))
	}
	if cmd := m.reloadView(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleLogout(msg logoutMsg) (tea.Model, tea.Cmd) {
	m.done()
	m.user = nil
	m.loans = loansState{}
	m.admin = adminState{}
	m.snapshot.Loans = nil
	m.store.SetLoans(nil)
	if msg.err != nil {
		m.pushToast(toastWarn, "Signed out locally; the server did not confirm")
	} else {
		m.pushToast(toastInfo, "Signed out")
	}
	m.refresh()
	return m, nil
}

func (m Model) renderLogin() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.Text.Bold(true).Render("Sign in"))
	b.WriteString("\n")
	b.WriteString(styles.FaintText.Render(strings.Repeat("─", 34)))
	b.WriteString("\n")
	if m.login.notice != "" {
		b.WriteString(styles.WarningText.Render(m.login.notice))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(m.login.inputs[0].View())
	b.WriteString("\n")
	b.WriteString(m.login.inputs[1].View())
	b.WriteString("\n\n")
	switch {
	case m.login.busy:
		b.WriteString(m.spinner.View() + " " + styles.MutedText.Render("Signing in..."))
	case m.login.err != "":
		b.WriteString(styles.DangerText.Render(m.login.err))
	default:
		b.WriteString(styles.FaintText.Render("enter submit · tab switch · esc cancel"))
	}

	modal := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.Accent)).
		Padding(1, 2).
		Width(48).
		Render(b.String())

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal,
		lipgloss.WithWhitespaceChars(" "),
		lipgloss.WithWhitespaceForeground(lipgloss.Color(m.theme.Background)),
	)
}
