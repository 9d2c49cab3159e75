package state

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/five82/shelf/internal/library"
)

func page(books ...library.Book) library.Result[[]library.Book] {
	return library.Result[[]library.Book]{Data: books, Pagination: &library.Pagination{Page: 1, Limit: 20, Total: len(books), Pages: 1}}
}

func TestStore_UpdateAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Update(page(library.Book{ID: "1", Title: "Dune"}, library.Book{ID: "2"}), []library.Issue{{ID: "i1"}}, nil)

	snap := s.Snapshot()
	if !snap.HasCatalog || len(snap.Books) != 2 || snap.Books[0].Title != "Dune" {
		t.Fatalf("snapshot books = %#v, want 2 books", snap.Books)
	}
	if len(snap.Loans) != 1 || snap.Loans[0].ID != "i1" {
		t.Fatalf("snapshot loans = %#v, want i1", snap.Loans)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil {
		t.Fatalf("LastError = %v, want nil", snap.LastError)
	}

	snap.Books[0].Title = "changed"
	snap.Pagination.Total = 99
	snap2 := s.Snapshot()
	if snap2.Books[0].Title != "Dune" || snap2.Pagination.Total != 2 {
		t.Fatalf("Snapshot should clone; got %q/%d", snap2.Books[0].Title, snap2.Pagination.Total)
	}
}

func TestStore_NilLoansKeepPrevious(t *testing.T) {
	var s Store
	s.Update(page(), []library.Issue{{ID: "i1"}}, nil)
	s.Update(page(library.Book{ID: "1"}), nil, nil)
	if snap := s.Snapshot(); len(snap.Loans) != 1 {
		t.Fatalf("loans = %#v, want previous loans kept", snap.Loans)
	}
}

func TestStore_UpdateErrorKeepsPreviousData(t *testing.T) {
	var s Store

	s.Update(page(library.Book{ID: "1"}), nil, nil)

	before := time.Now()
	origErr := errors.New("boom")
	s.Update(library.Result[[]library.Book]{}, nil, origErr)

	snap := s.Snapshot()
	if len(snap.Books) != 1 || snap.Books[0].ID != "1" {
		t.Fatalf("books changed on error: got %#v", snap.Books)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ConsecutiveFailures(t *testing.T) {
	var s Store

	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("initial snapshot = %+v, want online with 0 failures", snap)
	}

	for i, wantOffline := range []bool{false, true, true} {
		s.Update(library.Result[[]library.Book]{}, nil, errors.New("fail"))
		snap := s.Snapshot()
		if snap.ConsecutiveFailures != i+1 {
			t.Fatalf("ConsecutiveFailures = %d, want %d", snap.ConsecutiveFailures, i+1)
		}
		if snap.IsOffline() != wantOffline {
			t.Fatalf("IsOffline() = %v after %d failures, want %v", snap.IsOffline(), i+1, wantOffline)
		}
	}

	s.Update(page(), nil, nil)
	if snap := s.Snapshot(); snap.ConsecutiveFailures != 0 || snap.IsOffline() {
		t.Fatalf("after success = %+v, want reset", snap)
	}
}

func TestStore_AdjustAvailableAndReplace(t *testing.T) {
	var s Store
	s.Update(page(library.Book{ID: "1", AvailableQuantity: 1}), nil, nil)

	prev, ok := s.AdjustAvailable("1", -1)
	if !ok || prev != 1 {
		t.Fatalf("AdjustAvailable = %d,%v, want 1,true", prev, ok)
	}
	if b, _ := s.Snapshot().Book("1"); b.AvailableQuantity != 0 {
		t.Fatalf("AvailableQuantity = %d, want 0", b.AvailableQuantity)
	}
	if _, ok := s.AdjustAvailable("1", -1); !ok {
		t.Fatalf("AdjustAvailable on known book returned false")
	}
	if b, _ := s.Snapshot().Book("1"); b.AvailableQuantity != 0 {
		t.Fatalf("AvailableQuantity went negative: %d", b.AvailableQuantity)
	}
	if _, ok := s.AdjustAvailable("missing", -1); ok {
		t.Fatalf("AdjustAvailable on unknown book returned true")
	}

	s.ReplaceBook(library.Book{ID: "1", AvailableQuantity: 3})
	if b, _ := s.Snapshot().Book("1"); b.AvailableQuantity != 3 {
		t.Fatalf("ReplaceBook AvailableQuantity = %d, want 3", b.AvailableQuantity)
	}

	s.Clear()
	if snap := s.Snapshot(); snap.HasCatalog || len(snap.Books) != 0 {
		t.Fatalf("Clear left %+v", snap)
	}
}

func TestSequencer_LatestWins(t *testing.T) {
	var seq Sequencer
	first := seq.Next()
	second := seq.Next()
	if seq.Latest(first) {
		t.Fatalf("superseded request %d reported latest", first)
	}
	if !seq.Latest(second) {
		t.Fatalf("newest request %d not reported latest", second)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seq.Next()
		}()
	}
	wg.Wait()
	if !seq.Latest(second + 50) {
		t.Fatalf("Latest(%d) = false after 50 concurrent Next calls", second+50)
	}
}
