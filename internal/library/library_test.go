package library

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/cache"
	"github.com/five82/shelf/internal/fakeapi"
	"github.com/five82/shelf/internal/retry"
	"github.com/five82/shelf/internal/session"
	"github.com/google/go-cmp/cmp"
)

type harness struct {
	fake     *fakeapi.Server
	store    *session.Store
	storage  *session.MemoryStorage
	cache    *cache.Memory
	svc      *Service
	observed atomic.Int32
	failed   atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fake: fakeapi.New(nil)}
	if err := h.fake.Seed(); err != nil {
		t.Fatalf("Seed returned error: %v", err)
	}
	ts := httptest.NewServer(h.fake)
	t.Cleanup(ts.Close)

	h.storage = session.NewMemoryStorage()
	h.store = session.NewStore(h.storage, nil)
	h.cache = cache.NewMemory()
	client, err := api.NewClient(ts.URL+"/api",
		api.WithTokenSource(h.store),
		api.WithObserver(func(*api.Error) { h.observed.Add(1) }),
	)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	h.svc = NewService(client, h.store, h.cache,
		WithRetryPolicy(retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond}),
		WithAuthFailed(func(error) { h.failed.Add(1) }),
	)
	return h
}

func (h *harness) login(t *testing.T, user, pass string) {
	t.Helper()
	if _, err := h.svc.Auth.Login(context.Background(), user, pass); err != nil {
		t.Fatalf("Login(%s) returned error: %v", user, err)
	}
}

// sequence returns a TokenFunc yielding the given tokens in order.
func sequence(tokens ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		tok := tokens[i%len(tokens)]
		i++
		return tok
	}
}

func TestSearch_CachedUntilWrite(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	ctx := context.Background()

	first, err := h.svc.Books.Search(ctx, "dune")
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(first.Data) != 1 || first.Data[0].ID != "1" || first.Data[0].Title != "Dune" || first.Data[0].AvailableQuantity != 2 {
		t.Fatalf("Search data = %+v", first.Data)
	}
	if first.Pagination == nil || first.Pagination.Total != 1 {
		t.Fatalf("Pagination = %+v, want total 1", first.Pagination)
	}

	second, err := h.svc.Books.Search(ctx, "dune")
	if err != nil {
		t.Fatalf("second Search returned error: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("cached Search mismatch (-want +got):\n%s", diff)
	}
	if got := h.fake.Hits(http.MethodGet, "/books?search=dune"); got != 1 {
		t.Fatalf("network reads = %d, want 1", got)
	}

	if _, err := h.svc.Books.Update(ctx, "1", BookInput{Description: "Arrakis"}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if _, err := h.svc.Books.Search(ctx, "dune"); err != nil {
		t.Fatalf("third Search returned error: %v", err)
	}
	if got := h.fake.Hits(http.MethodGet, "/books?search=dune"); got != 2 {
		t.Fatalf("network reads after write = %d, want 2", got)
	}
}

func TestWrite_InvalidatesOnlyItsResource(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	ctx := context.Background()

	if _, err := h.svc.Books.List(ctx, BookQuery{}); err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if _, err := h.svc.Books.Get(ctx, "2"); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if _, err := h.svc.Issues.Mine(ctx); err != nil {
		t.Fatalf("Mine returned error: %v", err)
	}
	if _, err := h.svc.Books.Update(ctx, "5", BookInput{Category: "Fiction"}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	for _, key := range []string{cache.Key("GET", "/books", nil), cache.Key("GET", "/books/2", nil)} {
		if _, ok := h.cache.Get(ctx, key); ok {
			t.Fatalf("%s survived a write to /books/5", key)
		}
	}
	if _, ok := h.cache.Get(ctx, cache.Key("GET", "/issues/my", nil)); !ok {
		t.Fatalf("/issues/my was invalidated by a /books write")
	}
}

func TestRefreshOnUnauthorized(t *testing.T) {
	h := newHarness(t)
	h.fake.TokenFunc = sequence("t1", "r1", "t2", "r2")
	h.login(t, "admin", "admin123")
	ctx := context.Background()

	if got := h.store.CurrentToken(); got != "t1" {
		t.Fatalf("token after login = %q, want t1", got)
	}
	if u := h.store.CurrentUser(); u == nil || u.Username != "admin" {
		t.Fatalf("user after login = %+v, want admin", u)
	}

	h.fake.ExpireTokens()
	r, err := h.svc.Issues.Mine(ctx)
	if err != nil {
		t.Fatalf("Mine returned error: %v", err)
	}
	if r.Data == nil {
		t.Fatalf("Mine data is nil")
	}
	if got := h.store.CurrentToken(); got != "t2" {
		t.Fatalf("token after refresh = %q, want t2", got)
	}
	if got := h.store.RefreshToken(); got != "r2" {
		t.Fatalf("refresh token after refresh = %q, want r2", got)
	}
	if got := h.fake.Hits(http.MethodPost, "/auth/refresh"); got != 1 {
		t.Fatalf("refresh calls = %d, want 1", got)
	}
	if got := h.fake.Hits(http.MethodGet, "/issues/my"); got != 2 {
		t.Fatalf("/issues/my calls = %d, want 2 (original + retry)", got)
	}
	if h.observed.Load() != 0 || h.failed.Load() != 0 {
		t.Fatalf("observer=%d authFailed=%d, want 0/0", h.observed.Load(), h.failed.Load())
	}
}

func TestRefreshFailureLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t, "reader", "reader123")

	h.fake.ExpireTokens()
	h.fake.RevokeRefreshTokens()
	_, err := h.svc.Issues.Mine(context.Background())
	if api.KindOf(err) != api.KindUnauthorized {
		t.Fatalf("Mine error = %v, want unauthorized", err)
	}
	if h.store.Authenticated() {
		t.Fatalf("session survived failed refresh")
	}
	if h.failed.Load() != 1 {
		t.Fatalf("auth failed callbacks = %d, want 1", h.failed.Load())
	}
	if h.observed.Load() != 1 {
		t.Fatalf("observer calls = %d, want 1", h.observed.Load())
	}
}

func TestIssueUnavailableBook(t *testing.T) {
	h := newHarness(t)
	h.login(t, "reader", "reader123")
	ctx := context.Background()

	book, err := h.svc.Books.Get(ctx, "3")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if book.Data.Available() {
		t.Fatalf("book 3 should have no available copies: %+v", book.Data)
	}

	_, err = h.svc.Issues.Issue(ctx, IssueRequest{BookID: "3"})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("Issue error = %v, want *api.Error", err)
	}
	if apiErr.Kind != api.KindConflict || apiErr.Message != "no copies available" {
		t.Fatalf("Issue error = %+v, want conflict from the service", apiErr)
	}
	if got := h.fake.Hits(http.MethodPost, "/issues"); got != 1 {
		t.Fatalf("issue requests = %d, want 1", got)
	}
}

func TestIssueReturnRefreshesAvailability(t *testing.T) {
	h := newHarness(t)
	h.login(t, "reader", "reader123")
	ctx := context.Background()

	before, err := h.svc.Books.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	issued, err := h.svc.Issues.Issue(ctx, IssueRequest{BookID: "1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if issued.Data.Status != StatusIssued || !issued.Data.Open() {
		t.Fatalf("issued = %+v", issued.Data)
	}
	after, err := h.svc.Books.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if after.Data.AvailableQuantity != before.Data.AvailableQuantity-1 {
		t.Fatalf("AvailableQuantity = %d, want %d", after.Data.AvailableQuantity, before.Data.AvailableQuantity-1)
	}

	renewed, err := h.svc.Issues.Renew(ctx, issued.Data.ID)
	if err != nil {
		t.Fatalf("Renew returned error: %v", err)
	}
	if !renewed.Data.DueDate.After(issued.Data.DueDate) || renewed.Data.Renewals != 1 {
		t.Fatalf("renewed = %+v", renewed.Data)
	}

	if _, err := h.svc.Issues.Return(ctx, issued.Data.ID); err != nil {
		t.Fatalf("Return returned error: %v", err)
	}
	final, err := h.svc.Books.Get(ctx, "1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if final.Data.AvailableQuantity != before.Data.AvailableQuantity {
		t.Fatalf("AvailableQuantity after return = %d, want %d", final.Data.AvailableQuantity, before.Data.AvailableQuantity)
	}
}

func TestImportRetriesTransientFailures(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	h.fake.FailNext("/books", http.StatusServiceUnavailable, 2)

	qty := 2
	var progress []int
	r, err := h.svc.Books.Import(context.Background(), []BookInput{
		{Title: "Solaris", Author: "Stanislaw Lem", Quantity: &qty},
		{Title: "Missing Author"},
	}, func(done, total int) { progress = append(progress, done) })

	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("Import error = %v, want *ImportError", err)
	}
	if _, ok := importErr.Failed[1]; !ok || len(importErr.Failed) != 1 {
		t.Fatalf("Failed = %v, want only index 1", importErr.Failed)
	}
	if api.KindOf(importErr.Failed[1]) != api.KindValidation {
		t.Fatalf("Failed[1] = %v, want validation", importErr.Failed[1])
	}
	if len(r.Data) != 1 || r.Data[0].Title != "Solaris" || r.Data[0].AvailableQuantity != 2 {
		t.Fatalf("created = %+v", r.Data)
	}
	if got := h.fake.Hits(http.MethodPost, "/books"); got != 4 {
		t.Fatalf("POST /books = %d, want 4 (two failures, one success, one rejection)", got)
	}
	if got := h.observed.Load(); got != 1 {
		t.Fatalf("observer calls = %d, want 1 (only the rejection; recovered 503s stay silent)", got)
	}
	if diff := cmp.Diff([]int{1, 2}, progress); diff != "" {
		t.Fatalf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestImportReportsExhaustedRetriesOnce(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	h.fake.FailNext("/books", http.StatusServiceUnavailable, 10)

	_, err := h.svc.Books.Import(context.Background(), []BookInput{{Title: "Solaris", Author: "Stanislaw Lem"}}, nil)
	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("Import error = %v, want *ImportError", err)
	}
	if api.KindOf(importErr.Failed[0]) != api.KindServiceUnavailable {
		t.Fatalf("Failed[0] = %v, want service unavailable", importErr.Failed[0])
	}
	if got := h.fake.Hits(http.MethodPost, "/books"); got != 4 {
		t.Fatalf("POST /books = %d, want 4 attempts", got)
	}
	if got := h.observed.Load(); got != 1 {
		t.Fatalf("observer calls = %d, want 1", got)
	}
}

func TestCanceledReadIsNotCached(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.svc.Books.List(ctx, BookQuery{})
	if !api.IsCanceled(err) {
		t.Fatalf("List error = %v, want canceled", err)
	}
	if h.cache.Len() != 0 {
		t.Fatalf("cache has %d entries after a canceled read", h.cache.Len())
	}
	if h.observed.Load() != 0 {
		t.Fatalf("observer called for a canceled call")
	}
}

func TestAdminOperations(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.login(t, "reader", "reader123")
	if _, err := h.svc.Admin.Stats(ctx); api.KindOf(err) != api.KindForbidden {
		t.Fatalf("member Stats error = %v, want forbidden", err)
	}
	if err := h.svc.Auth.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	h.login(t, "admin", "admin123")
	st, err := h.svc.Admin.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if st.Data.TotalBooks != 5 || st.Data.TotalUsers != 2 {
		t.Fatalf("Stats = %+v", st.Data)
	}

	users, err := h.svc.Admin.Users(ctx, UserQuery{Role: "member"})
	if err != nil {
		t.Fatalf("Users returned error: %v", err)
	}
	if len(users.Data) != 1 || users.Data[0].Username != "reader" {
		t.Fatalf("Users = %+v", users.Data)
	}
	promoted, err := h.svc.Admin.UpdateUserRole(ctx, users.Data[0].ID, "admin")
	if err != nil {
		t.Fatalf("UpdateUserRole returned error: %v", err)
	}
	if !promoted.Data.IsAdmin() {
		t.Fatalf("promoted user = %+v", promoted.Data)
	}
	if _, err := h.svc.Admin.UpdateUserRole(ctx, users.Data[0].ID, "owner"); api.KindOf(err) != api.KindValidation {
		t.Fatalf("invalid role error = %v, want validation", err)
	}
	if err := h.svc.Admin.DeleteUser(ctx, users.Data[0].ID); err != nil {
		t.Fatalf("DeleteUser returned error: %v", err)
	}
	after, err := h.svc.Admin.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if after.Data.TotalUsers != 1 {
		t.Fatalf("TotalUsers after delete = %d, want 1", after.Data.TotalUsers)
	}
}

func TestRegisterAndLogout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, err := h.svc.Auth.Register(ctx, RegisterInput{Username: "newbie", Password: "secret1", Email: "n@example.com"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if r.Data.User == nil || r.Data.User.Role != "member" {
		t.Fatalf("registered user = %+v", r.Data.User)
	}
	if !h.store.Authenticated() {
		t.Fatalf("Register did not store the session")
	}
	if _, err := h.svc.Auth.Register(ctx, RegisterInput{Username: "newbie", Password: "secret1"}); api.KindOf(err) != api.KindConflict {
		t.Fatalf("duplicate Register error = %v, want conflict", err)
	}

	if err := h.svc.Auth.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if h.store.Authenticated() {
		t.Fatalf("session survived Logout")
	}
	if got := h.fake.Hits(http.MethodPost, "/auth/logout"); got != 1 {
		t.Fatalf("server logout calls = %d, want 1", got)
	}
}

func TestLoginBadCredentialsDoesNotRefresh(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Auth.Login(context.Background(), "admin", "wrong")
	if api.KindOf(err) != api.KindUnauthorized {
		t.Fatalf("Login error = %v, want unauthorized", err)
	}
	if got := h.fake.Hits(http.MethodPost, "/auth/refresh"); got != 0 {
		t.Fatalf("refresh calls = %d, want 0", got)
	}
	if h.failed.Load() != 0 {
		t.Fatalf("auth failed callback ran for a login failure")
	}
}

func TestRestoreVerifiesStoredSession(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")

	restored := session.NewStore(h.storage, nil)
	client, err := api.NewClient(h.svc.client.BaseURL(), api.WithTokenSource(restored))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	svc := NewService(client, restored, nil)
	select {
	case err := <-svc.Restore(context.Background()):
		if err != nil {
			t.Fatalf("Restore result = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Restore did not finish")
	}
	if !restored.Snapshot().Verified {
		t.Fatalf("restored session not verified")
	}
}

func TestRestoreRejectedSessionLogsOut(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	h.fake.ExpireTokens()
	h.fake.RevokeRefreshTokens()

	restored := session.NewStore(h.storage, nil)
	client, err := api.NewClient(h.svc.client.BaseURL(), api.WithTokenSource(restored))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	svc := NewService(client, restored, nil)
	select {
	case err := <-svc.Restore(context.Background()):
		if api.KindOf(err) != api.KindUnauthorized {
			t.Fatalf("Restore result = %v, want unauthorized", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Restore did not finish")
	}
	if restored.Authenticated() {
		t.Fatalf("rejected session still authenticated")
	}
}

func TestSubscribeInvalidatesAndDelivers(t *testing.T) {
	h := newHarness(t)
	h.login(t, "admin", "admin123")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := h.svc.Books.List(ctx, BookQuery{}); err != nil {
		t.Fatalf("List returned error: %v", err)
	}

	events := make(chan api.Event, 4)
	done := make(chan error, 1)
	go func() { done <- h.svc.Subscribe(ctx, func(ev api.Event) { events <- ev }) }()

	deadline := time.Now().Add(2 * time.Second)
	for h.fake.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Write through the fake directly so the client cache is untouched.
	h.fake.AddBook(fakeapi.Book{Title: "Kindred", Author: "Octavia Butler", Quantity: 1, AvailableQuantity: 1})
	h.fake.Publish("book.created", map[string]string{"title": "Kindred"})

	select {
	case ev := <-events:
		if ev.Type != "book.created" {
			t.Fatalf("event type = %q, want book.created", ev.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	if _, ok := h.cache.Get(ctx, cache.Key("GET", "/books", nil)); ok {
		t.Fatalf("/books cache survived a book event")
	}

	cancel()
	select {
	case err := <-done:
		if !api.IsCanceled(err) {
			t.Fatalf("Subscribe returned %v, want canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not stop")
	}
}
