package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ProgressFunc receives the number of body bytes transferred so far and the
// expected total (-1 when unknown).
type ProgressFunc func(transferred, total int64)

// Request describes a single call. It is treated as immutable once handed to
// Send; the client copies it when it needs to mark a retry.
type Request struct {
	Method  string
	Path    string // relative to the base URL, e.g. "/books/42"
	Query   url.Values
	Body    any // JSON-encoded unless already []byte or json.RawMessage; must be replayable
	Headers http.Header

	// SkipCache bypasses the response cache for reads.
	SkipCache bool
	// MaxRetries opts the call into the retry policy when greater than zero.
	MaxRetries int
	// Retried is set on the single re-issue after a token refresh.
	Retried bool
	// SkipAuthRefresh disables the 401 refresh path (used by the refresh call itself).
	SkipAuthRefresh bool
	// SkipObserver keeps the failure away from the observer. The refresh call
	// sets it because its failure is reported through the request that
	// triggered it.
	SkipObserver bool
	// Progress, when set, is called as the response body is read.
	Progress ProgressFunc
}

// Idempotent reports whether the method is a read.
func (r Request) Idempotent() bool {
	switch r.Method {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// Response is the buffered result of a call.
type Response struct {
	Status    int
	Path      string
	Header    http.Header
	Body      []byte
	RequestID string
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the JSON body into dest.
func (r *Response) Decode(dest any) error {
	if r == nil || len(r.Body) == 0 || dest == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func encodeBody(body any) (io.Reader, bool, error) {
	switch v := body.(type) {
	case nil:
		return nil, false, nil
	case []byte:
		return bytes.NewReader(v), true, nil
	case json.RawMessage:
		return bytes.NewReader(v), true, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("encode request body: %w", err)
	}
	return bytes.NewReader(data), true, nil
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		p.fn(p.read, p.total)
	}
	return n, err
}
