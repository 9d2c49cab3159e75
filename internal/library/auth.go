package library

import (
	"context"
	"net/http"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/session"
)

// Auth is the authentication client. Login and Register store the session;
// Logout clears it.
type Auth struct {
	c       *caller
	session *session.Store
}

// Login signs in and stores the returned tokens and profile.
func (a *Auth) Login(ctx context.Context, username, password string) (Result[AuthResult], error) {
	r, err := call[AuthResult](ctx, a.c, api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/login",
		Body:            map[string]string{"username": username, "password": password},
		SkipAuthRefresh: true,
	}, "/")
	if err != nil {
		return r, err
	}
	return r, a.store(ctx, r.Data)
}

// Register creates a member account and signs it in.
func (a *Auth) Register(ctx context.Context, in RegisterInput) (Result[AuthResult], error) {
	r, err := call[AuthResult](ctx, a.c, api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/register",
		Body:            in,
		SkipAuthRefresh: true,
	}, "/")
	if err != nil {
		return r, err
	}
	return r, a.store(ctx, r.Data)
}

func (a *Auth) store(ctx context.Context, res AuthResult) error {
	var u User
	if res.User != nil {
		u = *res.User
	}
	return a.session.Login(ctx, res.Token, res.RefreshToken, u)
}

// Me fetches the signed-in profile from the service, bypassing the cache.
func (a *Auth) Me(ctx context.Context) (Result[User], error) {
	type wrap struct {
		User User `json:"user"`
	}
	r, err := call[wrap](ctx, a.c, api.Request{Method: http.MethodGet, Path: "/auth/me", SkipCache: true})
	return field(r, err, func(w wrap) User { return w.User })
}

// Refresh exchanges a refresh token for new tokens. It never triggers the
// 401 refresh path itself, never notifies the observer and does not touch the
// session.
func (a *Auth) Refresh(ctx context.Context, refreshToken string) (Result[AuthResult], error) {
	return call[AuthResult](ctx, a.c, api.Request{
		Method:          http.MethodPost,
		Path:            "/auth/refresh",
		Body:            map[string]string{"refreshToken": refreshToken},
		SkipAuthRefresh: true,
		SkipObserver:    true,
	})
}

// Logout revokes the token on the service when possible and always clears
// the local session and cache.
func (a *Auth) Logout(ctx context.Context) error {
	if a.session.Authenticated() {
		if _, err := call[nothing](ctx, a.c, api.Request{
			Method:          http.MethodPost,
			Path:            "/auth/logout",
			SkipAuthRefresh: true,
		}); err != nil && !api.IsCanceled(err) {
			a.c.logger.Warn("server logout failed", "error", err)
		}
	}
	a.c.invalidate(ctx, "/")
	return a.session.Logout(context.WithoutCancel(ctx))
}
