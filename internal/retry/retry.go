// Package retry runs an operation under bounded exponential backoff.
//
// The delay before attempt i (0-indexed, i >= 1) is BaseDelay * 2^(i-1), with
// no jitter. With the default policy a call that keeps failing is attempted
// four times, sleeping 1s, 2s and 4s in between, and the last error is
// returned.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/five82/shelf/internal/api"
)

// ErrInvalidPolicy indicates that a Policy field falls outside its accepted
// range.
var ErrInvalidPolicy = errors.New("invalid retry policy")

const (
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the delay before the first retry.
	DefaultBaseDelay = time.Second
)

// Policy configures Do. The zero value means DefaultMaxRetries and
// DefaultBaseDelay.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	// ShouldRetry reports whether err is worth another attempt. Nil retries
	// every error except cancellation.
	ShouldRetry func(err error) bool

	sleep func(ctx context.Context, d time.Duration) error // overridden in tests
}

// Default returns the standard policy: three retries from a one second base.
func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries, BaseDelay: DefaultBaseDelay}
}

func (p Policy) validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries is negative: %w", ErrInvalidPolicy)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay is negative: %w", ErrInvalidPolicy)
	}
	return nil
}

func (p Policy) normalized() Policy {
	if p.MaxRetries == 0 && p.BaseDelay == 0 {
		p.MaxRetries = DefaultMaxRetries
		p.BaseDelay = DefaultBaseDelay
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Delay returns the wait before attempt (attempt >= 1).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return p.BaseDelay << (attempt - 1)
}

// Do invokes fn until it succeeds, the attempt budget is spent, ShouldRetry
// declines, or ctx is done. Cancellation is returned immediately and is never
// retried.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.validate(); err != nil {
		return zero, err
	}
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.Delay(attempt)); err != nil {
				return zero, err
			}
		}
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if canceled(ctx, err) {
			return zero, err
		}
		if p.ShouldRetry != nil && !p.ShouldRetry(err) {
			return zero, err
		}
	}
	return zero, lastErr
}

// Transient reports whether err is a classified failure that may clear up on
// its own: timeouts, lost connections, rate limiting and 5xx responses.
func Transient(err error) bool {
	switch api.KindOf(err) {
	case api.KindTimeout, api.KindNetworkError, api.KindRateLimited,
		api.KindServerError, api.KindServiceUnavailable:
		return true
	}
	return false
}

func canceled(ctx context.Context, err error) bool {
	return api.IsCanceled(err) || errors.Is(err, context.Canceled) || ctx.Err() != nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", api.ErrCanceled, context.Cause(ctx))
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", api.ErrCanceled, context.Cause(ctx))
	case <-t.C:
		return nil
	}
}
