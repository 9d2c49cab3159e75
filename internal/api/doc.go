// Package api provides the HTTP client for the library REST service.
//
// # Overview
//
// Client is the transport: it resolves request paths against the configured
// base URL (which includes the /api prefix), applies default headers, enforces
// the per-call timeout and is the only code in shelf that performs network I/O.
// Resource operations (books, issues, admin, auth) live in package library and
// are built on Client.Send.
//
// # Interceptor Chain
//
// Outbound, every request passes through:
//
//  1. Bearer token from the TokenSource, when one is held
//  2. X-Request-ID (uuid) and X-Request-Time headers
//  3. Hooks added with WithRequestHook
//  4. Debug logging (discarded unless a logger is configured)
//
// Inbound, every response passes through:
//
//  1. Debug logging of status and size
//  2. On 401, for a request not already retried: one shared token refresh via
//     the Authenticator, then exactly one re-issue of the original request
//  3. Classification of failures into an *Error with a fixed Kind
//  4. Notification of the Observer, once per failed call
//
// A second 401 after the re-issue is returned as KindUnauthorized without a
// further refresh. Concurrent 401s wait on the same in-flight refresh.
//
// # Status Mapping
//
//	400 BadRequest      401 Unauthorized    403 Forbidden
//	404 NotFound        409 Conflict        422 Validation
//	429 RateLimited     500 ServerError     502/503/504 ServiceUnavailable
//	client timeout      Timeout
//	no connection       NetworkError
//	anything else       Unknown
//
// # Cancellation
//
// Cancelling the context passed to Send abandons the call. The result is an
// error matching ErrCanceled (check with IsCanceled), never an *Error, and the
// Observer is not told. The configured timeout is separate: its expiry
// produces KindTimeout.
//
// # Event Stream
//
// Subscribe reads a text/event-stream response and hands each event to a
// callback. It is the only streaming call; everything else is buffered.
package api
