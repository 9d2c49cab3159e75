package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenSource supplies the bearer token attached to outgoing requests.
type TokenSource interface {
	CurrentToken() string
}

// Authenticator recovers from a 401 by refreshing credentials.
type Authenticator interface {
	// Refresh obtains and stores a new access token.
	Refresh(ctx context.Context) error
	// AuthFailed is called once per failed Refresh; it should clear the session and
	// send the user back to login. It must not block.
	AuthFailed(err error)
}

// Observer is notified once with every classified failure.
type Observer func(*Error)

// Client talks to the library REST API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	timeout   time.Duration
	userAgent string
	headers   http.Header
	tokens    TokenSource
	hooks     []RequestHook
	logger    *slog.Logger
	observer  Observer

	mu        sync.RWMutex
	auth      Authenticator
	refreshes singleflight.Group
}

const (
	defaultBaseURL   = "http://localhost:5000/api"
	defaultUserAgent = "shelf/0.1"
	defaultTimeout   = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithHeader adds a default header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers.Set(key, value) }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the debug logger used by the logging interceptors.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver registers the failure observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// WithRequestHook appends an outbound hook after the built-in ones.
func WithRequestHook(h RequestHook) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = append(c.hooks, h)
		}
	}
}

// NewClient builds a Client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:   base,
		http:      &http.Client{},
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
		headers:   make(http.Header),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.hooks = append([]RequestHook{bearerToken(c), stampRequest()}, c.hooks...)
	c.hooks = append(c.hooks, logRequest(c))
	return c, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// SetAuthenticator installs the 401 recovery handler. Passing nil disables it.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.auth = a
}

func (c *Client) authenticator() Authenticator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.auth
}

// Send performs req and returns the buffered response. Failures are returned
// as *Error, except cancellation which returns an error matching ErrCanceled.
func (c *Client) Send(ctx context.Context, req Request) (*Response, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}
	resp, err := c.dispatch(ctx, req)
	if err == nil {
		return resp, nil
	}
	if IsCanceled(err) {
		return nil, err
	}
	classified := Classify(err)
	if !req.SkipObserver {
		c.notify(classified)
	}
	return resp, classified
}

func (c *Client) dispatch(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.exchange(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logResponse(req, resp)

	if resp.Status == http.StatusUnauthorized && !req.Retried && !req.SkipAuthRefresh {
		if auth := c.authenticator(); auth != nil {
			if rerr := c.refresh(ctx, auth); rerr != nil {
				if IsCanceled(rerr) {
					return nil, rerr
				}
				c.logger.Debug("token refresh failed", "path", req.Path, "error", rerr)
				return resp, statusError(resp)
			}
			retry := req
			retry.Retried = true
			resp, err = c.exchange(ctx, retry)
			if err != nil {
				return nil, err
			}
			c.logResponse(retry, resp)
		}
	}

	if !resp.OK() {
		return resp, statusError(resp)
	}
	return resp, nil
}

// refresh runs at most one Authenticator.Refresh at a time; concurrent callers
// wait for and share the in-flight result. A failed refresh reports
// AuthFailed once, however many callers shared it.
func (c *Client) refresh(ctx context.Context, auth Authenticator) error {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		err := auth.Refresh(context.WithoutCancel(ctx))
		if err != nil && !IsCanceled(err) {
			auth.AuthFailed(err)
		}
		return nil, err
	})
	select {
	case <-ctx.Done():
		return canceledError(ctx)
	case res := <-ch:
		return res.Err
	}
}

// exchange is the only place that touches the network.
func (c *Client) exchange(ctx context.Context, req Request) (*Response, error) {
	if ctx.Err() != nil {
		return nil, canceledError(ctx)
	}
	callCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	httpReq, err := c.newHTTPRequest(callCtx, req)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body io.Reader = resp.Body
	if req.Progress != nil {
		body = &progressReader{r: resp.Body, total: resp.ContentLength, fn: req.Progress}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, c.transportError(ctx, callCtx, err)
	}
	return &Response{
		Status:    resp.StatusCode,
		Path:      req.Path,
		Header:    resp.Header,
		Body:      data,
		RequestID: httpReq.Header.Get(headerRequestID),
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, c.timeout, errClientTimeout)
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	body, isJSON, err := encodeBody(req.Body)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Message: err.Error(), Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), c.resolve(req), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for key, values := range c.headers {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if isJSON {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, values := range req.Headers {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	for _, hook := range c.hooks {
		if err := hook(ctx, httpReq); err != nil {
			return nil, fmt.Errorf("request hook: %w", err)
		}
	}
	return httpReq, nil
}

// transportError sorts a failed round trip into cancellation, client timeout
// or a classified network failure.
func (c *Client) transportError(parent, callCtx context.Context, err error) error {
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return &Error{Kind: KindTimeout, Message: "request deadline exceeded", Err: err}
		}
		return canceledError(parent)
	}
	if errors.Is(context.Cause(callCtx), errClientTimeout) {
		return &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("no response within %s", c.timeout),
			Err:     fmt.Errorf("execute request: %w", err),
		}
	}
	classified := Classify(err)
	if classified.Kind == KindUnknown {
		classified.Kind = KindNetworkError
	}
	classified.Err = fmt.Errorf("execute request: %w", err)
	return classified
}

func (c *Client) resolve(req Request) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

// Notify reports err to the observer. Callers that send with SkipObserver
// use it to report a final outcome once.
func (c *Client) Notify(err *Error) {
	c.notify(err)
}

func (c *Client) notify(err *Error) {
	if c.observer == nil || err == nil {
		return
	}
	c.observer(err)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse api url %q: missing host", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
