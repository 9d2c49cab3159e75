package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Kind is the fixed vocabulary of failure classes surfaced to callers.
type Kind int

const (
	KindUnknown Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindRateLimited
	KindServerError
	KindServiceUnavailable
	KindTimeout
	KindNetworkError
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindBadRequest:         "bad request",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindNotFound:           "not found",
	KindConflict:           "conflict",
	KindValidation:         "validation",
	KindRateLimited:        "rate limited",
	KindServerError:        "server error",
	KindServiceUnavailable: "service unavailable",
	KindTimeout:            "timeout",
	KindNetworkError:       "network error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrCanceled marks a call abandoned by its caller. A canceled call is
// neither a success nor an *Error.
var ErrCanceled = errors.New("request canceled")

// errClientTimeout is the cause attached to the per-call timeout context so
// that expiry of the configured timeout can be told apart from cancellation.
var errClientTimeout = errors.New("client timeout")

// Error is a classified request failure.
type Error struct {
	Kind      Kind
	Status    int // zero when no response was received
	Message   string
	RequestID string
	Err       error // original transport or status error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err is the cancelled terminal state.
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// KindOf returns the classification of err, or KindUnknown when err carries
// no *Error.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// Classify returns err as an *Error. Errors that are already classified are
// returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	kind := KindUnknown
	var netErr net.Error
	switch {
	case errors.Is(err, errClientTimeout), errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &netErr):
		kind = KindNetworkError
	}
	return &Error{Kind: kind, Message: err.Error(), Err: err}
}

// KindForStatus maps an HTTP status code onto a Kind.
func KindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnprocessableEntity:
		return KindValidation
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusInternalServerError:
		return KindServerError
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return KindServiceUnavailable
	default:
		return KindUnknown
	}
}

func statusError(resp *Response) *Error {
	return &Error{
		Kind:      KindForStatus(resp.Status),
		Status:    resp.Status,
		Message:   responseMessage(resp),
		RequestID: resp.RequestID,
		Err:       fmt.Errorf("api %s returned status %d", resp.Path, resp.Status),
	}
}

// responseMessage prefers the envelope's message field and falls back to the
// status text.
func responseMessage(resp *Response) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if len(resp.Body) > 0 && json.Unmarshal(resp.Body, &payload) == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(payload.Error); msg != "" {
			return msg
		}
	}
	if text := http.StatusText(resp.Status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", resp.Status)
}

func canceledError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCanceled, context.Cause(ctx))
}
