// Package session holds the signed-in user's token and profile.
//
// # Overview
//
// A Store is the single owner of the current session. It keeps the access
// token, the refresh token and the user profile in memory and mirrors them to
// a Storage backend under two fixed slots:
//
//	token  -> {"access": "...", "refresh": "..."}
//	user   -> {"_id": "...", "username": "...", ...}
//
// Login, Logout and SetToken are the only writers. Every other component reads
// through CurrentToken, CurrentUser and Authenticated.
//
// # Restore
//
// Restore runs once at process start. It reads both slots, marks the session
// authenticated straight away when a token is present, then runs the supplied
// verification call in a background goroutine. If verification fails the
// session is logged out. The returned channel yields the verification result
// so callers can wait on it or ignore it.
//
// # Storage Backends
//
//   - File: one TOML document with both slots, written with mode 0600
//   - Redis: one key per slot under a configurable prefix
//   - Memory: for tests and for runs that should forget the session on exit
//
// # Concurrency
//
// Store is safe for concurrent use. Reads take a read lock; writes update
// memory and storage under the write lock, so the last writer wins.
package session
