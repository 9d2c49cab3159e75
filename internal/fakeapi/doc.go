// Package fakeapi is an in-memory implementation of the library REST service.
//
// # Overview
//
// The shelf client talks to a service it does not own. This package serves
// the same contract from memory so the client can be tested end to end and
// run locally without the real backend:
//
//	/api/auth/*      login, register, me, refresh, logout
//	/api/books/*     catalog CRUD, search, categories
//	/api/issues/*    borrowing, returns, renewals, overdue list
//	/api/admin/*     stats and user management
//	/api/events      server-sent events for catalog and loan changes
//
// Every JSON response uses the envelope
//
//	{"success": true, "data": {...}, "pagination": {...}}
//	{"success": false, "message": "..."}
//
// # Auth
//
// Passwords are stored as bcrypt hashes. Login returns an access token and a
// refresh token; both are random UUIDs unless TokenFunc is replaced. Access
// tokens can be revoked wholesale with ExpireTokens to drive the client's
// refresh path.
//
// # Scripting
//
// Tests shape behaviour with:
//
//   - FailNext: answer the next n requests under a path prefix with a status
//   - Hits: count requests by method and path
//   - TokenFunc: deterministic token generation
//
// The availability check on issue lives here, not in the client. Issuing a
// book with no available copies answers 409.
package fakeapi
