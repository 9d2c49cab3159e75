package library

import (
	"context"
	"net/http"
	"net/url"

	"github.com/five82/shelf/internal/api"
)

// Admin is the administration client. Every call needs the admin role.
type Admin struct {
	c *caller
}

// Stats returns library totals.
func (a *Admin) Stats(ctx context.Context) (Result[Stats], error) {
	type wrap struct {
		Stats Stats `json:"stats"`
	}
	r, err := call[wrap](ctx, a.c, api.Request{Method: http.MethodGet, Path: "/admin/stats"})
	return field(r, err, func(w wrap) Stats { return w.Stats })
}

// Users lists accounts.
func (a *Admin) Users(ctx context.Context, q UserQuery) (Result[[]User], error) {
	type wrap struct {
		Users []User `json:"users"`
	}
	r, err := call[wrap](ctx, a.c, api.Request{Method: http.MethodGet, Path: "/admin/users", Query: q.values()})
	return field(r, err, func(w wrap) []User { return w.Users })
}

// UpdateUserRole sets role ("admin" or "member") on a user.
func (a *Admin) UpdateUserRole(ctx context.Context, userID, role string) (Result[User], error) {
	type wrap struct {
		User User `json:"user"`
	}
	r, err := call[wrap](ctx, a.c, api.Request{
		Method: http.MethodPut,
		Path:   "/admin/users/" + url.PathEscape(userID) + "/role",
		Body:   map[string]string{"role": role},
	})
	return field(r, err, func(w wrap) User { return w.User })
}

// DeleteUser removes an account with no open loans.
func (a *Admin) DeleteUser(ctx context.Context, userID string) error {
	_, err := call[nothing](ctx, a.c, api.Request{Method: http.MethodDelete, Path: "/admin/users/" + url.PathEscape(userID)})
	return err
}
