package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTokens struct {
	mu    sync.Mutex
	token string
}

func (f *fakeTokens) CurrentToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) set(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

type fakeAuth struct {
	tokens    *fakeTokens
	next      string
	err       error
	gate      <-chan struct{}
	refreshes atomic.Int32
	failures  atomic.Int32
}

func (f *fakeAuth) Refresh(ctx context.Context) error {
	f.refreshes.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return f.err
	}
	f.tokens.set(f.next)
	return nil
}

func (f *fakeAuth) AuthFailed(error) {
	f.failures.Add(1)
	f.tokens.set("")
}

func TestParseBaseURL_DefaultsAndNormalizes(t *testing.T) {
	u, err := parseBaseURL("")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.String() != defaultBaseURL {
		t.Fatalf("url = %q, want %q", u.String(), defaultBaseURL)
	}

	u, err = parseBaseURL("example.com:1234/api/?x=1#frag")
	if err != nil {
		t.Fatalf("parseBaseURL returned error: %v", err)
	}
	if u.Scheme != "http" || u.Path != "/api" || u.RawQuery != "" || u.Fragment != "" {
		t.Fatalf("url not normalized: %q", u.String())
	}

	if _, err := parseBaseURL("http://"); err == nil {
		t.Fatalf("parseBaseURL without host returned nil error")
	}
}

func TestClient_SendAppliesOutboundChain(t *testing.T) {
	t.Parallel()

	var got http.Header
	var gotPath, gotQuery string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "t1"}
	c, err := NewClient(server.URL+"/api", WithTokenSource(tokens), WithHeader("X-Client", "tests"))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	resp, err := c.Send(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/books",
		Query:  map[string][]string{"search": {"dune"}},
		Body:   map[string]string{"title": "Dune"},
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotPath != "/api/books" || gotQuery != "search=dune" {
		t.Fatalf("request = %s?%s, want /api/books?search=dune", gotPath, gotQuery)
	}
	if got.Get("Authorization") != "Bearer t1" {
		t.Fatalf("Authorization = %q, want Bearer t1", got.Get("Authorization"))
	}
	if got.Get(headerRequestID) == "" || got.Get(headerRequestID) != resp.RequestID {
		t.Fatalf("X-Request-ID = %q, response id %q", got.Get(headerRequestID), resp.RequestID)
	}
	if _, err := time.Parse(time.RFC3339Nano, got.Get(headerRequestTime)); err != nil {
		t.Fatalf("X-Request-Time = %q, want RFC3339: %v", got.Get(headerRequestTime), err)
	}
	if got.Get("X-Client") != "tests" || !strings.HasPrefix(got.Get("User-Agent"), "shelf/") {
		t.Fatalf("default headers missing: %v", got)
	}
	if got.Get("Content-Type") != "application/json" || gotBody["title"] != "Dune" {
		t.Fatalf("body = %v (content-type %q), want JSON title", gotBody, got.Get("Content-Type"))
	}
}

func TestClient_NoTokenNoAuthorization(t *testing.T) {
	t.Parallel()

	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL, WithTokenSource(&fakeTokens{}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := c.Send(context.Background(), Request{Path: "/books"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if auth != "" {
		t.Fatalf("Authorization = %q, want empty", auth)
	}
}

func TestClient_ClassifiesStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   Kind
	}{
		{400, KindBadRequest},
		{401, KindUnauthorized},
		{403, KindForbidden},
		{404, KindNotFound},
		{409, KindConflict},
		{422, KindValidation},
		{429, KindRateLimited},
		{500, KindServerError},
		{502, KindServiceUnavailable},
		{503, KindServiceUnavailable},
		{504, KindServiceUnavailable},
		{418, KindUnknown},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/status/"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":false,"message":"server says no"}`))
	}))
	t.Cleanup(server.Close)

	var mu sync.Mutex
	var observed []*Error
	c, err := NewClient(server.URL, WithObserver(func(e *Error) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, e)
	}))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	for _, tc := range cases {
		_, err := c.Send(context.Background(), Request{Path: "/status/" + strconv.Itoa(tc.status)})
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: error = %v, want *Error", tc.status, err)
		}
		if apiErr.Kind != tc.want || apiErr.Status != tc.status {
			t.Fatalf("status %d: kind = %v status = %d, want %v", tc.status, apiErr.Kind, apiErr.Status, tc.want)
		}
		if apiErr.Message != "server says no" {
			t.Fatalf("status %d: message = %q, want envelope message", tc.status, apiErr.Message)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != len(cases) {
		t.Fatalf("observer called %d times, want %d", len(observed), len(cases))
	}
}

func TestClient_TimeoutClassified(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	c, err := NewClient(server.URL, WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.Send(context.Background(), Request{Path: "/slow"})
	if KindOf(err) != KindTimeout {
		t.Fatalf("Send error = %v, want timeout kind", err)
	}
	if IsCanceled(err) {
		t.Fatalf("timeout reported as cancellation: %v", err)
	}
}

func TestClient_NetworkErrorClassified(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	c, err := NewClient(addr, WithTimeout(2*time.Second))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	_, err = c.Send(context.Background(), Request{Path: "/books"})
	if KindOf(err) != KindNetworkError {
		t.Fatalf("Send error = %v (kind %v), want network error", err, KindOf(err))
	}
}

func TestClient_CancellationIsNotAnError(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(server.Close)

	var notified atomic.Int32
	c, err := NewClient(server.URL, WithObserver(func(*Error) { notified.Add(1) }))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	// Already cancelled: nothing is sent.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Send(ctx, Request{Path: "/books"}); !IsCanceled(err) {
		t.Fatalf("Send with cancelled ctx = %v, want ErrCanceled", err)
	}

	// Cancelled while in flight.
	ctx, cancel = context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()
	resp, err := c.Send(ctx, Request{Path: "/books"})
	if !IsCanceled(err) {
		t.Fatalf("Send error = %v, want ErrCanceled", err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		t.Fatalf("cancellation surfaced as *Error: %v", apiErr)
	}
	if resp != nil {
		t.Fatalf("response = %#v, want nil", resp)
	}
	if n := notified.Load(); n != 0 {
		t.Fatalf("observer called %d times, want 0", n)
	}
}

func TestClient_RefreshesOnceAndRetries(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	var retriedWith string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer t2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		retriedWith = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"success":true,"data":{"ok":true}}`))
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "t1"}
	auth := &fakeAuth{tokens: tokens, next: "t2"}
	c, err := NewClient(server.URL, WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	resp, err := c.Send(context.Background(), Request{Path: "/books"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if !resp.OK() || retriedWith != "Bearer t2" {
		t.Fatalf("retry response = %d with %q, want 200 with Bearer t2", resp.Status, retriedWith)
	}
	if got := auth.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server calls = %d, want 2", got)
	}
}

func TestClient_SecondUnauthorizedDoesNotLoop(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "t1"}
	auth := &fakeAuth{tokens: tokens, next: "t2"}
	var notified atomic.Int32
	c, err := NewClient(server.URL, WithTokenSource(tokens), WithObserver(func(*Error) { notified.Add(1) }))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	_, err = c.Send(context.Background(), Request{Path: "/books"})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("Send error = %v, want unauthorized", err)
	}
	if got := auth.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server calls = %d, want 2 (original + one retry)", got)
	}
	if got := notified.Load(); got != 1 {
		t.Fatalf("observer called %d times, want 1", got)
	}
}

func TestClient_RefreshFailureSignalsAuthFailure(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "t1"}
	auth := &fakeAuth{tokens: tokens, err: errors.New("refresh rejected")}
	c, err := NewClient(server.URL, WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	_, err = c.Send(context.Background(), Request{Path: "/books"})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("Send error = %v, want unauthorized", err)
	}
	if got := auth.failures.Load(); got != 1 {
		t.Fatalf("AuthFailed calls = %d, want 1", got)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server calls = %d, want 1 (no retry after failed refresh)", got)
	}
	if tokens.CurrentToken() != "" {
		t.Fatalf("token = %q, want cleared", tokens.CurrentToken())
	}
}

func TestClient_ConcurrentUnauthorizedShareRefresh(t *testing.T) {
	t.Parallel()

	var unauthorized atomic.Int32
	bothSeen := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer fresh" {
			_, _ = w.Write([]byte(`{"success":true}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		if unauthorized.Add(1) == 2 {
			close(bothSeen)
		}
	}))
	t.Cleanup(server.Close)

	// Hold the refresh open until both callers have had time to join it.
	gate := make(chan struct{})
	go func() {
		<-bothSeen
		time.Sleep(100 * time.Millisecond)
		close(gate)
	}()

	tokens := &fakeTokens{token: "stale"}
	auth := &fakeAuth{tokens: tokens, next: "fresh", gate: gate}
	c, err := NewClient(server.URL, WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Send(context.Background(), Request{Path: "/books"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d returned error: %v", i, err)
		}
	}
	if got := auth.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1 shared refresh", got)
	}
}

func TestClient_ConcurrentUnauthorizedShareAuthFailure(t *testing.T) {
	t.Parallel()

	var unauthorized atomic.Int32
	allSeen := make(chan struct{})
	const callers = 3
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		if unauthorized.Add(1) == callers {
			close(allSeen)
		}
	}))
	t.Cleanup(server.Close)

	gate := make(chan struct{})
	go func() {
		<-allSeen
		time.Sleep(100 * time.Millisecond)
		close(gate)
	}()

	tokens := &fakeTokens{token: "stale"}
	auth := &fakeAuth{tokens: tokens, err: errors.New("refresh rejected"), gate: gate}
	c, err := NewClient(server.URL, WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Send(context.Background(), Request{Path: "/books"})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if KindOf(err) != KindUnauthorized {
			t.Fatalf("call %d error = %v, want unauthorized", i, err)
		}
	}
	if got := auth.refreshes.Load(); got != 1 {
		t.Fatalf("refreshes = %d, want 1 shared refresh", got)
	}
	if got := auth.failures.Load(); got != 1 {
		t.Fatalf("AuthFailed calls = %d, want 1", got)
	}
}

func TestClient_SkipAuthRefresh(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	tokens := &fakeTokens{token: "t1"}
	auth := &fakeAuth{tokens: tokens, next: "t2"}
	c, err := NewClient(server.URL, WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	c.SetAuthenticator(auth)

	_, err = c.Send(context.Background(), Request{Method: http.MethodPost, Path: "/auth/refresh", SkipAuthRefresh: true})
	if KindOf(err) != KindUnauthorized {
		t.Fatalf("Send error = %v, want unauthorized", err)
	}
	if got := auth.refreshes.Load(); got != 0 {
		t.Fatalf("refreshes = %d, want 0", got)
	}
}

func TestClient_ProgressReported(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("x", 4096)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(server.Close)

	c, err := NewClient(server.URL)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	var last int64
	_, err = c.Send(context.Background(), Request{
		Path:     "/export",
		Progress: func(n, _ int64) { last = n },
	})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if last != int64(len(payload)) {
		t.Fatalf("progress = %d, want %d", last, len(payload))
	}
}

func TestClassify_KeepsExistingClassification(t *testing.T) {
	orig := &Error{Kind: KindConflict, Status: 409, Message: "no copies"}
	wrapped := errors.Join(errors.New("context"), orig)
	if got := Classify(wrapped); got != orig {
		t.Fatalf("Classify = %#v, want original *Error", got)
	}
	if got := Classify(errClientTimeout); got.Kind != KindTimeout {
		t.Fatalf("Classify(timeout) kind = %v, want timeout", got.Kind)
	}
	if got := Classify(errors.New("mystery")); got.Kind != KindUnknown {
		t.Fatalf("Classify(mystery) kind = %v, want unknown", got.Kind)
	}
}
