// Package cache holds idempotent API responses for a fixed time-to-live.
//
// Entries are keyed by Key(method, path, query), which always begins with the
// request path, so InvalidatePrefix("/books") drops every cached read under
// /books. Expiry is checked lazily on Get; there is no size bound.
package cache

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// TTL is the lifetime shared by every entry.
const TTL = 5 * time.Minute

// Cache stores raw response payloads.
type Cache interface {
	// Get returns the value stored under key if it has not expired.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Put stores value under key, stamped with the current time.
	Put(ctx context.Context, key string, value []byte)
	// InvalidatePrefix removes every entry whose key starts with prefix.
	InvalidatePrefix(ctx context.Context, prefix string)
}

// Key builds the cache key for a request: path, then the encoded query (keys
// sorted), then the method. Example: "/books?search=dune#GET".
func Key(method, path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(path)
	if len(query) > 0 {
		b.WriteByte('?')
		b.WriteString(query.Encode())
	}
	b.WriteByte('#')
	if method == "" {
		method = "GET"
	}
	b.WriteString(strings.ToUpper(method))
	return b.String()
}

// ResourcePrefix returns the first path segment of path ("/books/42" ->
// "/books"), the scope invalidated by writes.
func ResourcePrefix(path string) string {
	trimmed := strings.TrimLeft(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// Nop is a Cache that stores nothing.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Put(context.Context, string, []byte)         {}
func (Nop) InvalidatePrefix(context.Context, string)    {}
