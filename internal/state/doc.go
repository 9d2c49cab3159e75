// Package state provides thread-safe state management for the shelf console.
//
// # Overview
//
// This package holds the catalog page and the signed-in user's loans, shared
// between the background poller and the UI. It is the point where polling
// updates, optimistic edits and rendering meet.
//
// # Architecture
//
//	Producer (Poller):             Consumer (UI):
//	┌────────────────┐            ┌─────────────────┐
//	│ Books.List()   │            │                 │
//	│ Issues.Mine()  │            │                 │
//	│      ↓         │            │                 │
//	│ store.Update() │───────────→│ store.Snapshot()│
//	│      ↓         │  (mutex)   │      ↓          │
//	│  repeat...     │            │  render UI      │
//	└────────────────┘            └─────────────────┘
//
// # Update Semantics
//
//	// Success case: replace the catalog page and loans
//	store.Update(books, loans, nil)
//
//	// Error case: keep old data, record the error
//	store.Update(library.Result[[]library.Book]{}, nil, err)
//	→ snapshot.Books = <unchanged>
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
// Two failures in a row mark the snapshot offline.
//
// # Optimistic Edits
//
// Issuing a copy decrements the book's available count locally through
// AdjustAvailable before the service answers. The UI then refetches the book
// and calls ReplaceBook with the authoritative value, or rolls back with the
// returned previous count when the call fails.
//
// # Latest Request Wins
//
// Requests carry no ordering guarantee. Sequencer numbers them so that a slow
// response for a superseded search is dropped:
//
//	seq := seqr.Next()
//	res, err := books.Search(ctx, query)
//	if !seqr.Latest(seq) {
//		return // a newer search has started
//	}
//
// # Defensive Copying
//
// Update and Snapshot clone the book and loan slices and the pagination
// record, and wrap the stored error, so the UI can never mutate what the
// poller holds.
//
// # Testing Considerations
//
// The zero Store and the zero Sequencer are ready to use. Snapshot returns a
// zero Snapshot until the first Update.
package state
