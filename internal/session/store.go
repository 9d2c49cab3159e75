package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoSession indicates that there is no signed-in user.
var ErrNoSession = errors.New("no session")

// User is the signed-in user's profile.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role,omitempty"`
}

// IsAdmin reports whether the user may use the admin console.
func (u User) IsAdmin() bool {
	return u.Role == "admin"
}

type tokenRecord struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh,omitempty"`
}

// Snapshot is a copy of the session at a point in time.
type Snapshot struct {
	Token         string
	RefreshToken  string
	User          *User
	Authenticated bool
	// Verified is false while a restored session awaits server confirmation.
	Verified bool
}

// Store owns the current session.
type Store struct {
	storage Storage
	logger  *slog.Logger

	mu       sync.RWMutex
	token    string
	refresh  string
	user     *User
	verified bool
	restored bool
	// gen changes on every login and logout, so work started for one
	// session cannot act on its successor. Token refreshes keep it.
	gen uint64
}

// NewStore returns an empty Store persisting to storage. A nil storage keeps
// the session in memory only.
func NewStore(storage Storage, logger *slog.Logger) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{storage: storage, logger: logger}
}

// Login replaces the session and persists both slots.
func (s *Store) Login(ctx context.Context, token, refresh string, user User) error {
	if token == "" {
		return fmt.Errorf("login: empty token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.token, s.refresh, s.user, s.verified = token, refresh, &u, true
	s.gen++
	if err := s.saveToken(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.storage.Save(ctx, SlotUser, data); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.logger.Info("session started", "user", u.Username)
	return nil
}

// SetToken replaces the tokens of the current session, keeping the user. An
// empty refresh keeps the previous refresh token.
func (s *Store) SetToken(ctx context.Context, token, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return ErrNoSession
	}
	s.token = token
	if refresh != "" {
		s.refresh = refresh
	}
	return s.saveToken(ctx)
}

func (s *Store) saveToken(ctx context.Context) error {
	data, err := json.Marshal(tokenRecord{Access: s.token, Refresh: s.refresh})
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := s.storage.Save(ctx, SlotToken, data); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// Logout clears memory first, then both slots. Storage errors are returned
// but the in-memory session is gone either way.
func (s *Store) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hadSession := s.token != ""
	s.token, s.refresh, s.user, s.verified = "", "", nil, false
	s.gen++
	return s.clearSlots(ctx, hadSession)
}

// logoutIf ends the session only if it is still the one identified by gen.
func (s *Store) logoutIf(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.token == "" {
		return nil
	}
	s.token, s.refresh, s.user, s.verified = "", "", nil, false
	s.gen++
	return s.clearSlots(ctx, true)
}

// clearSlots empties both storage slots. Callers hold mu.
func (s *Store) clearSlots(ctx context.Context, hadSession bool) error {
	errs := []error{
		s.storage.Clear(ctx, SlotToken),
		s.storage.Clear(ctx, SlotUser),
	}
	if hadSession {
		s.logger.Info("session ended")
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// CurrentToken returns the access token, or "" when signed out.
func (s *Store) CurrentToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// RefreshToken returns the refresh token, or "".
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}

// CurrentUser returns a copy of the profile, or nil when signed out.
func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Authenticated reports whether a token is held.
func (s *Store) Authenticated() bool {
	return s.CurrentToken() != ""
}

// Snapshot returns a copy of the whole session.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Token:         s.token,
		RefreshToken:  s.refresh,
		Authenticated: s.token != "",
		Verified:      s.verified,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// Restore rehydrates the session from storage. It runs at most once; later
// calls return a closed channel. When a token is found the session is marked
// authenticated before Restore returns and verify runs in the background; a
// verification failure logs the session out. The channel receives the
// verification error (nil on success) and is then closed. With no stored
// token it receives ErrNoSession. A canceled verification leaves the session
// in place, unverified.
func (s *Store) Restore(ctx context.Context, verify func(context.Context) error) <-chan error {
	result := make(chan error, 1)

	s.mu.Lock()
	if s.restored {
		s.mu.Unlock()
		close(result)
		return result
	}
	s.restored = true
	tok, user, err := s.load(ctx)
	if err != nil || tok.Access == "" {
		s.mu.Unlock()
		if err != nil {
			s.logger.Warn("session restore failed", "error", err)
		}
		result <- ErrNoSession
		close(result)
		return result
	}
	s.token, s.refresh, s.user, s.verified = tok.Access, tok.Refresh, user, false
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	go func() {
		defer close(result)
		if verify == nil {
			s.markVerified(gen)
			result <- nil
			return
		}
		if err := verify(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				result <- err
				return
			}
			s.logger.Warn("restored session rejected", "error", err)
			if lerr := s.logoutIf(context.WithoutCancel(ctx), gen); lerr != nil {
				s.logger.Warn("logout after rejected session failed", "error", lerr)
			}
			result <- err
			return
		}
		s.markVerified(gen)
		result <- nil
	}()
	return result
}

// markVerified flags the session as confirmed, unless it has been replaced
// meanwhile.
func (s *Store) markVerified(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.token != "" {
		s.verified = true
	}
}

func (s *Store) load(ctx context.Context) (tokenRecord, *User, error) {
	var tok tokenRecord
	data, err := s.storage.Load(ctx, SlotToken)
	if errors.Is(err, ErrSlotEmpty) {
		return tok, nil, nil
	}
	if err != nil {
		return tok, nil, fmt.Errorf("load token: %w", err)
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return tok, nil, fmt.Errorf("parse token: %w", err)
	}

	data, err = s.storage.Load(ctx, SlotUser)
	if errors.Is(err, ErrSlotEmpty) {
		return tok, nil, nil
	}
	if err != nil {
		return tok, nil, fmt.Errorf("load user: %w", err)
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return tok, nil, fmt.Errorf("parse user: %w", err)
	}
	return tok, &u, nil
}
