package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/cache"
	"github.com/five82/shelf/internal/retry"
)

// Sender performs one classified call and reports failures to the
// observer.
type Sender interface {
	Send(ctx context.Context, req api.Request) (*api.Response, error)
	Notify(err *api.Error)
}

type envelope[T any] struct {
	Success    bool        `json:"success"`
	Data       T           `json:"data"`
	Message    string      `json:"message"`
	Pagination *Pagination `json:"pagination"`
}

// caller is the call path shared by every resource client.
type caller struct {
	api    Sender
	cache  cache.Cache
	policy retry.Policy
	logger *slog.Logger
}

func (c *caller) send(ctx context.Context, req api.Request) (*api.Response, error) {
	if req.MaxRetries <= 0 {
		return c.api.Send(ctx, req)
	}
	p := c.policy
	p.MaxRetries = req.MaxRetries
	if p.ShouldRetry == nil {
		p.ShouldRetry = retry.Transient
	}
	// Only the final outcome reaches the observer; failures that a later
	// attempt recovers from stay silent.
	attempt := req
	attempt.SkipObserver = true
	resp, err := retry.Do(ctx, p, func(ctx context.Context) (*api.Response, error) {
		return c.api.Send(ctx, attempt)
	})
	var ae *api.Error
	if err != nil && !req.SkipObserver && errors.As(err, &ae) {
		c.api.Notify(ae)
	}
	return resp, err
}

func (c *caller) invalidate(ctx context.Context, prefixes ...string) {
	for _, p := range prefixes {
		c.cache.InvalidatePrefix(ctx, p)
	}
}

// call runs req and decodes the envelope's data into T. Reads go through the
// cache; writes invalidate the request's resource prefix plus extra.
func call[T any](ctx context.Context, c *caller, req api.Request, extra ...string) (Result[T], error) {
	read := req.Idempotent()
	var key string
	if read && !req.SkipCache {
		key = cache.Key(req.Method, req.Path, req.Query)
		if body, ok := c.cache.Get(ctx, key); ok {
			res, err := decodeEnvelope[T](body)
			if err == nil {
				c.logger.Debug("cache hit", "key", key)
				return res, nil
			}
			c.logger.Warn("discarding unreadable cache entry", "key", key, "error", err)
			c.cache.InvalidatePrefix(ctx, key)
		}
	}

	resp, err := c.send(ctx, req)
	if err != nil {
		return Result[T]{}, err
	}
	res, err := decodeEnvelope[T](resp.Body)
	if err != nil {
		return Result[T]{}, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}

	if read {
		if key == "" {
			key = cache.Key(req.Method, req.Path, req.Query)
		}
		c.cache.Put(ctx, key, resp.Body)
	} else {
		c.invalidate(ctx, append([]string{cache.ResourcePrefix(req.Path)}, extra...)...)
	}
	return res, nil
}

func decodeEnvelope[T any](body []byte) (Result[T], error) {
	var env envelope[T]
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			return Result[T]{}, fmt.Errorf("decode response: %w", err)
		}
	}
	return Result[T]{Data: env.Data, Pagination: env.Pagination}, nil
}

// field maps the data of r through pick, keeping pagination.
func field[W, T any](r Result[W], err error, pick func(W) T) (Result[T], error) {
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{Data: pick(r.Data), Pagination: r.Pagination}, nil
}
