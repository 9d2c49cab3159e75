package library

import (
	"context"
	"net/http"
	"net/url"

	"github.com/five82/shelf/internal/api"
)

// Issues is the borrowing client.
type Issues struct {
	c *caller
}

type issueList struct {
	Issues []Issue `json:"issues"`
}

type issueOne struct {
	Issue Issue `json:"issue"`
}

func pickIssues(l issueList) []Issue { return l.Issues }
func pickIssue(o issueOne) Issue     { return o.Issue }

// List returns loans. Members only ever see their own.
func (i *Issues) List(ctx context.Context, q IssueQuery) (Result[[]Issue], error) {
	r, err := call[issueList](ctx, i.c, api.Request{Method: http.MethodGet, Path: "/issues", Query: q.values()})
	return field(r, err, pickIssues)
}

// Mine returns the signed-in user's loans.
func (i *Issues) Mine(ctx context.Context) (Result[[]Issue], error) {
	r, err := call[issueList](ctx, i.c, api.Request{Method: http.MethodGet, Path: "/issues/my"})
	return field(r, err, pickIssues)
}

// RefetchMine returns the signed-in user's loans straight from the service,
// refreshing the cache.
func (i *Issues) RefetchMine(ctx context.Context) (Result[[]Issue], error) {
	r, err := call[issueList](ctx, i.c, api.Request{Method: http.MethodGet, Path: "/issues/my", SkipCache: true})
	return field(r, err, pickIssues)
}

// Overdue returns every loan past its due date. Admin only.
func (i *Issues) Overdue(ctx context.Context) (Result[[]Issue], error) {
	r, err := call[issueList](ctx, i.c, api.Request{Method: http.MethodGet, Path: "/issues/overdue"})
	return field(r, err, pickIssues)
}

// Issue borrows a copy. The request is sent as is; when no copy is
// available the service's rejection is returned.
func (i *Issues) Issue(ctx context.Context, req IssueRequest) (Result[Issue], error) {
	r, err := call[issueOne](ctx, i.c, api.Request{Method: http.MethodPost, Path: "/issues", Body: req}, "/books")
	return field(r, err, pickIssue)
}

// Return hands a copy back.
func (i *Issues) Return(ctx context.Context, issueID string) (Result[Issue], error) {
	r, err := call[issueOne](ctx, i.c, api.Request{Method: http.MethodPut, Path: "/issues/" + url.PathEscape(issueID) + "/return"}, "/books")
	return field(r, err, pickIssue)
}

// Renew extends the due date of an open loan.
func (i *Issues) Renew(ctx context.Context, issueID string) (Result[Issue], error) {
	r, err := call[issueOne](ctx, i.c, api.Request{Method: http.MethodPut, Path: "/issues/" + url.PathEscape(issueID) + "/renew"})
	return field(r, err, pickIssue)
}
