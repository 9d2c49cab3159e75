package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/cache"
	"github.com/five82/shelf/internal/retry"
	"github.com/five82/shelf/internal/session"
)

// Service bundles the resource clients around one api.Client, cache and
// session store.
type Service struct {
	Books  *Books
	Issues *Issues
	Admin  *Admin
	Auth   *Auth

	client       *api.Client
	session      *session.Store
	caller       *caller
	onAuthFailed func(error)
}

// Option configures a Service.
type Option func(*Service)

// WithRetryPolicy sets the policy used by requests that opt into retries.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Service) { s.caller.policy = p }
}

// WithLogger sets the logger for cache and import diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.caller.logger = l
		}
	}
}

// WithAuthFailed registers the callback run after the session has been
// cleared because a token refresh failed. The console uses it to return to
// the login screen.
func WithAuthFailed(fn func(error)) Option {
	return func(s *Service) { s.onAuthFailed = fn }
}

// NewService wires the resource clients and registers the Service as the
// client's Authenticator. A nil cache disables caching.
func NewService(client *api.Client, store *session.Store, c cache.Cache, opts ...Option) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	cl := &caller{
		api:    client,
		cache:  c,
		policy: retry.Default(),
		logger: slog.New(slog.DiscardHandler),
	}
	s := &Service{
		Books:   &Books{c: cl},
		Issues:  &Issues{c: cl},
		Admin:   &Admin{c: cl},
		Auth:    &Auth{c: cl, session: store},
		client:  client,
		session: store,
		caller:  cl,
	}
	for _, opt := range opts {
		opt(s)
	}
	client.SetAuthenticator(s)
	return s
}

// Session returns the session store.
func (s *Service) Session() *session.Store {
	return s.session
}

// BaseURL returns the API address the service talks to.
func (s *Service) BaseURL() string {
	return s.client.BaseURL()
}

// Refresh implements api.Authenticator.
func (s *Service) Refresh(ctx context.Context) error {
	rt := s.session.RefreshToken()
	if rt == "" {
		return fmt.Errorf("refresh: %w", session.ErrNoSession)
	}
	r, err := s.Auth.Refresh(ctx, rt)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if r.Data.Token == "" {
		return errors.New("refresh: service returned no token")
	}
	return s.session.SetToken(ctx, r.Data.Token, r.Data.RefreshToken)
}

// AuthFailed implements api.Authenticator.
func (s *Service) AuthFailed(err error) {
	ctx := context.Background()
	s.caller.logger.Warn("session expired", "error", err)
	s.caller.invalidate(ctx, "/")
	if lerr := s.session.Logout(ctx); lerr != nil {
		s.caller.logger.Warn("clear session failed", "error", lerr)
	}
	if s.onAuthFailed != nil {
		s.onAuthFailed(err)
	}
}

// Restore rehydrates the stored session and verifies it with Auth.Me in the
// background.
func (s *Service) Restore(ctx context.Context) <-chan error {
	return s.session.Restore(ctx, func(ctx context.Context) error {
		r, err := s.Auth.Me(ctx)
		if err != nil {
			return err
		}
		if r.Data.Username == "" {
			return errors.New("verify session: empty profile")
		}
		return nil
	})
}

// Subscribe streams service events to fn until ctx is done. Book and issue
// events drop the matching cache entries before fn runs.
func (s *Service) Subscribe(ctx context.Context, fn func(api.Event)) error {
	return s.client.Subscribe(ctx, "/events", func(ev api.Event) {
		switch {
		case strings.HasPrefix(ev.Type, "book."):
			s.caller.invalidate(ctx, "/books")
		case strings.HasPrefix(ev.Type, "issue."):
			s.caller.invalidate(ctx, "/issues", "/books")
		}
		if fn != nil {
			fn(ev)
		}
	})
}
