package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/library"
	"github.com/five82/shelf/internal/logtail"
	"github.com/five82/shelf/internal/state"
)

const (
	searchDebounce = 250 * time.Millisecond
	logTailLines   = 500
)

type tickMsg time.Time

type snapshotMsg state.Snapshot

type searchDebounceMsg struct {
	seq   uint64
	query string
}

type searchResultMsg struct {
	seq   uint64
	query string
	books []library.Book
	err   error
}

type issueResultMsg struct {
	book    library.Book
	applied bool // availability was decremented ahead of the call
	issue   library.Issue
	err     error
}

type bookMsg struct {
	book library.Book
	err  error
}

type loansMsg struct {
	loans []library.Issue
	err   error
}

type loanActionMsg struct {
	action string
	issue  library.Issue
	err    error
}

type adminMsg struct {
	stats   library.Stats
	users   []library.User
	overdue []library.Issue
	err     error
}

type roleMsg struct {
	user library.User
	err  error
}

type loginMsg struct {
	user *library.User
	err  error
}

type logoutMsg struct{ err error }

type logsMsg struct {
	entries []logtail.Entry
	err     error
}

type apiErrorMsg struct{ err *api.Error }

type authLostMsg struct{ err error }

type restoredMsg struct{ err error }

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(store *state.Store) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(store.Snapshot())
	}
}

func debounceSearchCmd(seq uint64, query string) tea.Cmd {
	return tea.Tick(searchDebounce, func(time.Time) tea.Msg {
		return searchDebounceMsg{seq: seq, query: query}
	})
}

func searchCmd(ctx context.Context, svc *library.Service, seq uint64, query string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Books.Search(ctx, query)
		return searchResultMsg{seq: seq, query: query, books: res.Data, err: err}
	}
}

func issueCmd(ctx context.Context, svc *library.Service, book library.Book, applied bool) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Issues.Issue(ctx, library.IssueRequest{BookID: book.ID})
		return issueResultMsg{book: book, applied: applied, issue: res.Data, err: err}
	}
}

// refetchBookCmd bypasses the cache so the confirmed count replaces the
// optimistic one.
func refetchBookCmd(ctx context.Context, svc *library.Service, id string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Books.Refetch(ctx, id)
		return bookMsg{book: res.Data, err: err}
	}
}

func loansCmd(ctx context.Context, svc *library.Service) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Issues.Mine(ctx)
		return loansMsg{loans: res.Data, err: err}
	}
}

func returnCmd(ctx context.Context, svc *library.Service, issueID string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Issues.Return(ctx, issueID)
		return loanActionMsg{action: "Returned", issue: res.Data, err: err}
	}
}

func renewCmd(ctx context.Context, svc *library.Service, issueID string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Issues.Renew(ctx, issueID)
		return loanActionMsg{action: "Renewed", issue: res.Data, err: err}
	}
}

func adminCmd(ctx context.Context, svc *library.Service) tea.Cmd {
	return func() tea.Msg {
		stats, err := svc.Admin.Stats(ctx)
		if err != nil {
			return adminMsg{err: err}
		}
		users, err := svc.Admin.Users(ctx, library.UserQuery{Limit: 100})
		if err != nil {
			return adminMsg{err: err}
		}
		overdue, err := svc.Issues.Overdue(ctx)
		if err != nil {
			return adminMsg{err: err}
		}
		return adminMsg{stats: stats.Data, users: users.Data, overdue: overdue.Data}
	}
}

func roleCmd(ctx context.Context, svc *library.Service, userID, role string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Admin.UpdateUserRole(ctx, userID, role)
		return roleMsg{user: res.Data, err: err}
	}
}

func loginCmd(ctx context.Context, svc *library.Service, username, password string) tea.Cmd {
	return func() tea.Msg {
		res, err := svc.Auth.Login(ctx, username, password)
		if err != nil {
			return loginMsg{err: err}
		}
		return loginMsg{user: res.Data.User}
	}
}

func logoutCmd(ctx context.Context, svc *library.Service) tea.Cmd {
	return func() tea.Msg {
		return logoutMsg{err: svc.Auth.Logout(ctx)}
	}
}

func logsCmd(path string) tea.Cmd {
	return func() tea.Msg {
		entries, err := logtail.Tail(path, logTailLines)
		return logsMsg{entries: entries, err: err}
	}
}

// Channel listeners re-arm themselves from Update after each message. A nil
// channel yields a nil command.

func waitForAPIError(ch <-chan *api.Error) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return apiErrorMsg{err: e}
	}
}

func waitForAuthLost(ch <-chan error) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return authLostMsg{err: err}
	}
}

func waitForRestore(ch <-chan error) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		err, ok := <-ch
		if !ok {
			return nil
		}
		return restoredMsg{err: err}
	}
}
