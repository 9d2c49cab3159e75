package state

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/five82/shelf/internal/library"
)

// Snapshot represents the latest catalog data available to the UI.
type Snapshot struct {
	Books               []library.Book
	Pagination          *library.Pagination
	HasCatalog          bool
	Loans               []library.Issue
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive poll failures
}

// IsOffline returns true when the API has been unreachable for multiple polls.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Book returns the book with id from the snapshot.
func (s Snapshot) Book(id string) (library.Book, bool) {
	for _, b := range s.Books {
		if b.ID == id {
			return b, true
		}
	}
	return library.Book{}, false
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Update replaces the stored catalog and loans. When err is non-nil the
// previous data is kept but the error is recorded for visibility. A nil loans
// slice leaves the stored loans untouched (signed-out polls).
func (s *Store) Update(books library.Result[[]library.Book], loans []library.Issue, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.snapshot.LastError = err
		s.snapshot.LastUpdated = time.Now()
		s.snapshot.ConsecutiveFailures++
		return
	}

	s.snapshot.Books = slices.Clone(books.Data)
	s.snapshot.Pagination = clonePage(books.Pagination)
	s.snapshot.HasCatalog = true
	if loans != nil {
		s.snapshot.Loans = slices.Clone(loans)
	}
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// SetLoans replaces the stored loans only.
func (s *Store) SetLoans(loans []library.Issue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Loans = slices.Clone(loans)
}

// ReplaceBook swaps in a fresher copy of one book, if present.
func (s *Store) ReplaceBook(b library.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Books {
		if s.snapshot.Books[i].ID == b.ID {
			s.snapshot.Books[i] = b
			return
		}
	}
}

// AdjustAvailable changes a book's available count by delta ahead of the
// service confirming it. The count never goes below zero. It returns the
// previous value so the change can be rolled back.
func (s *Store) AdjustAvailable(bookID string, delta int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.snapshot.Books {
		b := &s.snapshot.Books[i]
		if b.ID == bookID {
			prev := b.AvailableQuantity
			b.AvailableQuantity = max(0, prev+delta)
			return prev, true
		}
	}
	return 0, false
}

// Clear drops everything, e.g. after logout.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{}
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Books = slices.Clone(s.snapshot.Books)
	snap.Loans = slices.Clone(s.snapshot.Loans)
	snap.Pagination = clonePage(s.snapshot.Pagination)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func clonePage(p *library.Pagination) *library.Pagination {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// Sequencer hands out increasing call numbers so that only the most recent
// of several overlapping requests is applied ("latest request wins").
type Sequencer struct {
	n atomic.Uint64
}

// Next starts a new request and returns its number.
func (s *Sequencer) Next() uint64 {
	return s.n.Add(1)
}

// Latest reports whether seq is still the most recent request.
func (s *Sequencer) Latest(seq uint64) bool {
	return s.n.Load() == seq
}
