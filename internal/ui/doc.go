// Package ui implements the shelf console with Bubble Tea.
//
// # Overview
//
// The console is a thin client of library.Service. It reads the catalog and
// the user's loans from a state.Store kept fresh by the background poller,
// and calls the service directly for searches and writes. Four views share
// one header and one command bar:
//
//   - Catalog: the polled catalog page, or live search results
//   - My loans: open loans with return and renew
//   - Admin: library statistics, users with role toggling, overdue loans
//   - Logs: the tail of the client's own debug log
//
// # Search
//
// Every keystroke in the search field takes a number from a state.Sequencer
// and schedules a debounced request. A request fires only if no newer
// keystroke arrived, and a response is applied only if it still answers the
// newest query, so slow responses for stale queries never overwrite fresh
// results.
//
// # Borrowing
//
// Borrowing drops the book's available count in the store before the issue
// call returns. Whatever the outcome, the book is then refetched bypassing
// the cache so the confirmed count replaces the optimistic one; a failed
// call also restores the count at once.
//
// # Notifications
//
// Request failures reach the console through the client's observer and show
// as toasts in the footer for a few seconds. When a token refresh fails the
// session is already cleared; the console drops user data and opens the
// sign-in form.
//
// # Themes
//
// T cycles Nord, Kanagawa and Slate. The choice, the page size and the last
// username are saved to the prefs file.
package ui
