package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/library"
	"github.com/five82/shelf/internal/state"
)

type catalogState struct {
	selected  int
	input     textinput.Model
	searching bool // input has focus
	query     string
	// results replaces the polled catalog while a search is active.
	results []library.Book
	seq     *state.Sequencer
}

func newCatalogState() catalogState {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = "title, author or ISBN"
	ti.CharLimit = 120
	return catalogState{input: ti, seq: &state.Sequencer{}}
}

// books returns what the catalog currently lists.
func (m Model) books() []library.Book {
	if m.catalog.query != "" {
		return m.catalog.results
	}
	return m.snapshot.Books
}

func (m Model) selectedBook() (library.Book, bool) {
	books := m.books()
	if m.catalog.selected < 0 || m.catalog.selected >= len(books) {
		return library.Book{}, false
	}
	return books[m.catalog.selected], true
}

func (m *Model) clampSelections() {
	m.catalog.selected = clamp(m.catalog.selected, len(m.books()))
	m.loans.selected = clamp(m.loans.selected, len(m.openLoans()))
	m.admin.selected = clamp(m.admin.selected, len(m.admin.users))
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func (m Model) handleCatalogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Search):
		m.catalog.searching = true
		m.catalog.input.SetValue(m.catalog.query)
		m.catalog.input.CursorEnd()
		cmd := m.catalog.input.Focus()
		return m, cmd
	case key.Matches(msg, m.keys.Escape):
		if m.catalog.query != "" {
			m.catalog.seq.Next() // drop in-flight searches
			m.catalog.query = ""
			m.catalog.results = nil
			m.catalog.selected = 0
		}
		return m, nil
	case key.Matches(msg, m.keys.Issue):
		return m.borrowSelected()
	}
	m.catalog.selected = moveSelection(msg, m.keys, m.catalog.selected, len(m.books()), m.contentHeight()-2)
	return m, nil
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter:
		m.catalog.searching = false
		m.catalog.input.Blur()
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.catalog.input, cmd = m.catalog.input.Update(msg)
	query := strings.TrimSpace(m.catalog.input.Value())
	if query == m.catalog.query {
		return m, cmd
	}
	m.catalog.query = query
	m.catalog.selected = 0
	seq := m.catalog.seq.Next()
	if query == "" {
		m.catalog.results = nil
		return m, cmd
	}
	return m, tea.Batch(cmd, debounceSearchCmd(seq, query))
}

// handleSearchDebounce fires the request only if no keystroke arrived
// during the debounce window.
func (m Model) handleSearchDebounce(msg searchDebounceMsg) (tea.Model, tea.Cmd) {
	if !m.catalog.seq.Latest(msg.seq) {
		return m, nil
	}
	m.inflight++
	return m, searchCmd(m.ctx, m.svc, msg.seq, msg.query)
}

// handleSearchResult applies a response only when it answers the newest
// query. Older responses that arrive late are dropped.
func (m Model) handleSearchResult(msg searchResultMsg) (tea.Model, tea.Cmd) {
	m.done()
	if !m.catalog.seq.Latest(msg.seq) {
		return m, nil
	}
	if msg.err != nil {
		if m.catalog.results == nil {
			m.catalog.results = []library.Book{}
		}
		return m, nil
	}
	m.catalog.results = msg.books
	if m.catalog.results == nil {
		m.catalog.results = []library.Book{}
	}
	m.catalog.selected = clamp(m.catalog.selected, len(m.catalog.results))
	return m, nil
}

// borrowSelected issues the selected book. The available count drops
// immediately and is corrected from the service once the call settles.
func (m Model) borrowSelected() (tea.Model, tea.Cmd) {
	book, ok := m.selectedBook()
	if !ok {
		return m, nil
	}
	if !m.signedIn() {
		m.login.open("Sign in to borrow books.")
		return m, nil
	}
	applied := false
	if book.AvailableQuantity > 0 {
		applied = m.adjustAvailable(book.ID, -1)
	}
	m.inflight++
	return m, issueCmd(m.ctx, m.svc, book, applied)
}

// adjustAvailable applies delta to the store and to any search results
// holding the book. It reports whether anything changed.
func (m *Model) adjustAvailable(bookID string, delta int) bool {
	_, changed := m.store.AdjustAvailable(bookID, delta)
	for i := range m.catalog.results {
		if m.catalog.results[i].ID == bookID {
			m.catalog.results[i].AvailableQuantity = max(0, m.catalog.results[i].AvailableQuantity+delta)
			changed = true
		}
	}
	for i := range m.snapshot.Books {
		if m.snapshot.Books[i].ID == bookID {
			m.snapshot.Books[i].AvailableQuantity = max(0, m.snapshot.Books[i].AvailableQuantity+delta)
		}
	}
	return changed
}

func (m Model) handleIssueResult(msg issueResultMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil {
		if msg.applied {
			m.adjustAvailable(msg.book.ID, +1)
		}
		if api.KindOf(msg.err) == api.KindConflict {
			m.pushToast(toastWarn, fmt.Sprintf("%q has no copies available", msg.book.Title))
		}
		m.inflight++
		return m, refetchBookCmd(m.ctx, m.svc, msg.book.ID)
	}
	due := ""
	if !msg.issue.DueDate.IsZero() {
		due = ", due " + msg.issue.DueDate.Local().Format("Jan 2")
	}
	m.pushToast(toastSuccess, fmt.Sprintf("Borrowed %q%s", msg.book.Title, due))
	m.refresh()
	m.inflight += 2
	return m, tea.Batch(refetchBookCmd(m.ctx, m.svc, msg.book.ID), loansCmd(m.ctx, m.svc))
}

// handleBook swaps in the service's copy of a book.
func (m Model) handleBook(msg bookMsg) (tea.Model, tea.Cmd) {
	m.done()
	if msg.err != nil || msg.book.ID == "" {
		return m, nil
	}
	m.store.ReplaceBook(msg.book)
	replace := func(books []library.Book) {
		for i := range books {
			if books[i].ID == msg.book.ID {
				books[i] = msg.book
			}
		}
	}
	replace(m.catalog.results)
	replace(m.snapshot.Books)
	return m, nil
}

func (m Model) renderCatalog() string {
	height := m.contentHeight()
	styles := m.theme.Styles().WithBackground(m.theme.SurfaceAlt)
	bg := NewBgStyle(m.theme.SurfaceAlt)
	inner := m.width - 2

	var lines []string
	if m.catalog.searching || m.catalog.query != "" {
		if m.catalog.searching {
			lines = append(lines, m.catalog.input.View())
		} else {
			lines = append(lines, bg.Render("/ "+m.catalog.query, styles.AccentText)+bg.Space()+
				bg.Render("(esc clears)", styles.FaintText))
		}
	}

	books := m.books()
	switch {
	case !m.snapshot.HasCatalog && m.catalog.query == "":
		lines = append(lines, bg.Render("Loading catalog...", styles.MutedText))
	case len(books) == 0 && m.catalog.query != "" && m.catalog.results == nil:
		lines = append(lines, bg.Render("Searching...", styles.MutedText))
	case len(books) == 0:
		lines = append(lines, bg.Render("No books found", styles.MutedText))
	default:
		rows := height - 2 - len(lines)
		start := scrollStart(m.catalog.selected, len(books), rows)
		for i := start; i < len(books) && i < start+rows; i++ {
			lines = append(lines, m.formatBookRow(books[i], inner, i == m.catalog.selected))
		}
	}

	return m.renderTitledBox(m.catalogTitle(), strings.Join(lines, "\n"), m.width, height, m.theme.SurfaceAlt)
}

func (m Model) catalogTitle() string {
	if m.catalog.query != "" {
		return fmt.Sprintf("Search (%d)", len(m.catalog.results))
	}
	if p := m.snapshot.Pagination; p != nil && p.Total > 0 {
		return fmt.Sprintf("Catalog (%d of %d)", len(m.snapshot.Books), p.Total)
	}
	return fmt.Sprintf("Catalog (%d)", len(m.snapshot.Books))
}

func (m Model) formatBookRow(b library.Book, width int, selected bool) string {
	bgColor := m.theme.SurfaceAlt
	if selected {
		bgColor = m.theme.SelectionBg
	}
	styles := m.theme.Styles().WithBackground(bgColor)
	bg := NewBgStyle(bgColor)

	badge := badgeAvailable
	if !b.Available() {
		badge = badgeUnavailable
	}
	avail := fmt.Sprintf("%d/%d", b.AvailableQuantity, b.Quantity)

	titleWidth := max(10, width/2)
	authorWidth := max(8, width-titleWidth-16)
	row := styles.StatusStyle(badge).Render(fmt.Sprintf("%5s", avail)) + bg.Space() +
		bg.Render(padRight(truncate(b.Title, titleWidth), titleWidth), styles.Text) + bg.Space() +
		bg.Render(truncate(b.Author, authorWidth), styles.MutedText)
	return bg.FillLine(row, width)
}
