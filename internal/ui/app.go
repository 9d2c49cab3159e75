package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/config"
	"github.com/five82/shelf/internal/library"
	"github.com/five82/shelf/internal/prefs"
	"github.com/five82/shelf/internal/session"
	"github.com/five82/shelf/internal/state"
)

// View is the active screen.
type View int

const (
	ViewCatalog View = iota
	ViewLoans
	ViewAdmin
	ViewLogs
)

var viewOrder = []View{ViewCatalog, ViewLoans, ViewAdmin, ViewLogs}

func (v View) String() string {
	switch v {
	case ViewLoans:
		return "My loans"
	case ViewAdmin:
		return "Admin"
	case ViewLogs:
		return "Logs"
	default:
		return "Catalog"
	}
}

// Options configures the console.
type Options struct {
	Context   context.Context
	Service   *library.Service
	Store     *state.Store
	Config    *config.Config
	Prefs     prefs.Prefs
	PrefsPath string

	// Errors carries every classified request failure for toasts.
	Errors <-chan *api.Error
	// AuthLost fires when a token refresh failed and the session was cleared.
	AuthLost <-chan error
	// Restored delivers the outcome of verifying a persisted session.
	Restored <-chan error
	// Refresh asks the background poller for an immediate poll.
	Refresh func()

	PollTick time.Duration
}

// Model is the root Bubble Tea model.
type Model struct {
	ctx       context.Context
	svc       *library.Service
	store     *state.Store
	config    *config.Config
	prefs     prefs.Prefs
	prefsPath string
	errs      <-chan *api.Error
	authLost  <-chan error
	restored  <-chan error
	refresh   func()
	pollTick  time.Duration

	keys        keyMap
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool

	snapshot state.Snapshot
	user     *session.User

	catalog catalogState
	loans   loansState
	admin   adminState
	logs    logState
	login   loginForm

	toasts   []toast
	spinner  spinner.Model
	inflight int
	showHelp bool
	now      func() time.Time
}

// New creates the console model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}
	p := opts.Prefs
	if p.Theme == "" {
		p = prefs.Defaults()
	}
	refresh := opts.Refresh
	if refresh == nil {
		refresh = func() {}
	}

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		ctx:         ctx,
		svc:         opts.Service,
		store:       opts.Store,
		config:      opts.Config,
		prefs:       p,
		prefsPath:   opts.PrefsPath,
		errs:        opts.Errors,
		authLost:    opts.AuthLost,
		restored:    opts.Restored,
		refresh:     refresh,
		pollTick:    pollTick,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(p.Theme),
		currentView: ViewCatalog,
		catalog:     newCatalogState(),
		logs:        newLogState(),
		login:       newLoginForm(p.LastUser),
		spinner:     sp,
		now:         time.Now,
	}
	if m.svc != nil {
		m.user = m.svc.Session().CurrentUser()
	}
	return m
}

// Run starts the console and blocks until the user quits or ctx ends.
func Run(opts Options) error {
	if opts.Store == nil || opts.Service == nil {
		return fmt.Errorf("ui requires a service and a data store")
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("run console: %w", err)
	}
	return nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
		m.spinner.Tick,
		waitForAPIError(m.errs),
		waitForAuthLost(m.authLost),
		waitForRestore(m.restored),
	}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeLogViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.user = m.svc.Session().CurrentUser()
		m.clampSelections()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case searchDebounceMsg:
		return m.handleSearchDebounce(msg)
	case searchResultMsg:
		return m.handleSearchResult(msg)
	case issueResultMsg:
		return m.handleIssueResult(msg)
	case bookMsg:
		return m.handleBook(msg)
	case loansMsg:
		return m.handleLoans(msg)
	case loanActionMsg:
		return m.handleLoanAction(msg)
	case adminMsg:
		return m.handleAdmin(msg)
	case roleMsg:
		return m.handleRole(msg)
	case loginMsg:
		return m.handleLogin(msg)
	case logoutMsg:
		return m.handleLogout(msg)
	case logsMsg:
		m.handleLogs(msg)
		return m, nil

	case apiErrorMsg:
		m.pushAPIError(msg.err)
		return m, waitForAPIError(m.errs)

	case authLostMsg:
		m.user = nil
		m.loans = loansState{}
		m.admin = adminState{}
		m.login.open("Session expired. Sign in again.")
		return m, tea.Batch(waitForAuthLost(m.authLost), fetchSnapshotCmd(m.store))

	case restoredMsg:
		return m.handleRestored(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.login.visible {
		return m.renderLogin()
	}
	return m.renderMain()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.login.visible {
		return m.handleLoginKey(msg)
	}
	if m.catalog.searching {
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		m.prefs.Theme = m.theme.Name
		m.savePrefs()
		return m, nil
	case key.Matches(msg, m.keys.Account):
		if m.signedIn() {
			m.inflight++
			return m, logoutCmd(m.ctx, m.svc)
		}
		m.login.open("")
		return m, nil
	case key.Matches(msg, m.keys.Reload):
		cmd := m.reloadView()
		return m, cmd
	case key.Matches(msg, m.keys.Tab):
		return m.switchView(m.offsetView(1))
	case key.Matches(msg, m.keys.ShiftTab):
		return m.switchView(m.offsetView(-1))
	case key.Matches(msg, m.keys.ViewCatalog):
		return m.switchView(ViewCatalog)
	case key.Matches(msg, m.keys.ViewLoans):
		return m.switchView(ViewLoans)
	case key.Matches(msg, m.keys.ViewAdmin):
		return m.switchView(ViewAdmin)
	case key.Matches(msg, m.keys.ViewLogs):
		return m.switchView(ViewLogs)
	}

	switch m.currentView {
	case ViewCatalog:
		return m.handleCatalogKey(msg)
	case ViewLoans:
		return m.handleLoansKey(msg)
	case ViewAdmin:
		return m.handleAdminKey(msg)
	case ViewLogs:
		return m.handleLogsKey(msg)
	}
	return m, nil
}

func (m Model) offsetView(delta int) View {
	for i, v := range viewOrder {
		if v == m.currentView {
			return viewOrder[(i+delta+len(viewOrder))%len(viewOrder)]
		}
	}
	return ViewCatalog
}

// switchView activates v and loads whatever it shows.
func (m Model) switchView(v View) (tea.Model, tea.Cmd) {
	m.currentView = v
	cmd := m.reloadView()
	return m, cmd
}

func (m *Model) reloadView() tea.Cmd {
	switch m.currentView {
	case ViewLoans:
		if !m.signedIn() {
			return nil
		}
		m.inflight++
		return loansCmd(m.ctx, m.svc)
	case ViewAdmin:
		if !m.isAdmin() {
			return nil
		}
		m.inflight++
		return adminCmd(m.ctx, m.svc)
	case ViewLogs:
		return m.refreshLogs()
	default:
		m.refresh()
		return nil
	}
}

func (m Model) handleTick() (tea.Model, tea.Cmd) {
	m.pruneToasts()
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.store != nil {
		cmds = append(cmds, fetchSnapshotCmd(m.store))
	}
	if m.currentView == ViewLogs && m.logs.follow {
		if cmd := m.refreshLogs(); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleRestored(msg restoredMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err == nil:
		if u := m.svc.Session().CurrentUser(); u != nil {
			m.user = u
			m.pushToast(toastInfo, "Welcome back, "+displayName(*u))
		}
		m.refresh()
	case errors.Is(msg.err, session.ErrNoSession), errors.Is(msg.err, context.Canceled):
	default:
		m.user = nil
		m.login.open("Saved session is no longer valid. Sign in again.")
	}
	return m, fetchSnapshotCmd(m.store)
}

func (m *Model) done() {
	if m.inflight > 0 {
		m.inflight--
	}
}

func (m Model) signedIn() bool {
	return m.svc != nil && m.svc.Session().Authenticated()
}

func (m Model) isAdmin() bool {
	return m.user != nil && m.user.IsAdmin()
}

func (m *Model) savePrefs() {
	if err := prefs.Save(m.prefsPath, m.prefs); err != nil {
		m.pushToast(toastWarn, "Could not save preferences")
	}
}

// renderMain renders header, command bar, body and footer.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderContent() string {
	switch m.currentView {
	case ViewLoans:
		return m.renderLoans()
	case ViewAdmin:
		return m.renderAdmin()
	case ViewLogs:
		return m.renderLogs()
	default:
		return m.renderCatalog()
	}
}

// contentHeight is the body height left after header, command bar and
// footer.
func (m Model) contentHeight() int {
	return max(3, m.height-3)
}

func displayName(u session.User) string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Username
}
