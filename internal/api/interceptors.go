package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	headerRequestID   = "X-Request-ID"
	headerRequestTime = "X-Request-Time"
)

// RequestHook mutates an outgoing request before it is sent. The built-in
// chain runs in order: bearer token, request id and timestamp, any hooks added
// with WithRequestHook, debug logging.
type RequestHook func(ctx context.Context, r *http.Request) error

func bearerToken(c *Client) RequestHook {
	return func(_ context.Context, r *http.Request) error {
		if c.tokens == nil {
			return nil
		}
		if token := strings.TrimSpace(c.tokens.CurrentToken()); token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return nil
	}
}

func stampRequest() RequestHook {
	return func(_ context.Context, r *http.Request) error {
		r.Header.Set(headerRequestID, uuid.NewString())
		r.Header.Set(headerRequestTime, time.Now().UTC().Format(time.RFC3339Nano))
		return nil
	}
}

func logRequest(c *Client) RequestHook {
	return func(ctx context.Context, r *http.Request) error {
		c.logger.DebugContext(ctx, "api request",
			"method", r.Method,
			"url", r.URL.String(),
			"request_id", r.Header.Get(headerRequestID),
			"auth", r.Header.Get("Authorization") != "",
		)
		return nil
	}
}

func (c *Client) logResponse(req Request, resp *Response) {
	c.logger.Debug("api response",
		"method", req.method(),
		"path", req.Path,
		"status", resp.Status,
		"bytes", len(resp.Body),
		"request_id", resp.RequestID,
		"retried", req.Retried,
	)
}
