package library

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/five82/shelf/internal/api"
	"github.com/five82/shelf/internal/retry"
)

// Books is the catalog client.
type Books struct {
	c *caller
}

type bookList struct {
	Books []Book `json:"books"`
}

type bookOne struct {
	Book Book `json:"book"`
}

// List returns one page of the catalog.
func (b *Books) List(ctx context.Context, q BookQuery) (Result[[]Book], error) {
	r, err := call[bookList](ctx, b.c, api.Request{Method: http.MethodGet, Path: "/books", Query: q.values(), SkipCache: q.Fresh})
	return field(r, err, func(l bookList) []Book { return l.Books })
}

// Search lists books whose title, author, ISBN or category contains text.
func (b *Books) Search(ctx context.Context, text string) (Result[[]Book], error) {
	return b.List(ctx, BookQuery{Search: text})
}

// Get returns one book.
func (b *Books) Get(ctx context.Context, id string) (Result[Book], error) {
	r, err := call[bookOne](ctx, b.c, api.Request{Method: http.MethodGet, Path: "/books/" + url.PathEscape(id)})
	return field(r, err, func(o bookOne) Book { return o.Book })
}

// Refetch returns one book straight from the service, refreshing the cache.
func (b *Books) Refetch(ctx context.Context, id string) (Result[Book], error) {
	r, err := call[bookOne](ctx, b.c, api.Request{Method: http.MethodGet, Path: "/books/" + url.PathEscape(id), SkipCache: true})
	return field(r, err, func(o bookOne) Book { return o.Book })
}

// Categories returns the distinct category names.
func (b *Books) Categories(ctx context.Context) (Result[[]string], error) {
	type wrap struct {
		Categories []string `json:"categories"`
	}
	r, err := call[wrap](ctx, b.c, api.Request{Method: http.MethodGet, Path: "/books/categories"})
	return field(r, err, func(w wrap) []string { return w.Categories })
}

// Create adds a book. Admin only.
func (b *Books) Create(ctx context.Context, in BookInput) (Result[Book], error) {
	return b.create(ctx, in, 0)
}

func (b *Books) create(ctx context.Context, in BookInput, retries int) (Result[Book], error) {
	r, err := call[bookOne](ctx, b.c, api.Request{Method: http.MethodPost, Path: "/books", Body: in, MaxRetries: retries})
	return field(r, err, func(o bookOne) Book { return o.Book })
}

// Update changes the non-empty fields of in. Admin only.
func (b *Books) Update(ctx context.Context, id string, in BookInput) (Result[Book], error) {
	r, err := call[bookOne](ctx, b.c, api.Request{Method: http.MethodPut, Path: "/books/" + url.PathEscape(id), Body: in})
	return field(r, err, func(o bookOne) Book { return o.Book })
}

// Delete removes a book with no copies on loan. Admin only.
func (b *Books) Delete(ctx context.Context, id string) error {
	_, err := call[nothing](ctx, b.c, api.Request{Method: http.MethodDelete, Path: "/books/" + url.PathEscape(id)})
	return err
}

// ImportError collects the per-book failures of an Import.
type ImportError struct {
	Failed map[int]error // index into the input slice
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import: %d book(s) failed", len(e.Failed))
}

func (e *ImportError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, err := range e.Failed {
		errs = append(errs, err)
	}
	return errs
}

// Import creates each book in turn under the retry policy, so transient
// failures are retried with backoff. It returns the books created and an
// *ImportError naming the ones that were not. Cancellation stops the import.
func (b *Books) Import(ctx context.Context, books []BookInput, progress func(done, total int)) (Result[[]Book], error) {
	created := make([]Book, 0, len(books))
	failed := map[int]error{}
	retries := b.c.policy.MaxRetries
	if retries <= 0 {
		retries = retry.DefaultMaxRetries
	}
	for i, in := range books {
		r, err := b.create(ctx, in, retries)
		switch {
		case err == nil:
			created = append(created, r.Data)
		case api.IsCanceled(err) || errors.Is(err, context.Canceled):
			return Result[[]Book]{Data: created}, err
		default:
			b.c.logger.Warn("import failed", "title", in.Title, "error", err)
			failed[i] = err
		}
		if progress != nil {
			progress(i+1, len(books))
		}
	}
	if len(failed) > 0 {
		return Result[[]Book]{Data: created}, &ImportError{Failed: failed}
	}
	return Result[[]Book]{Data: created}, nil
}

// nothing discards the data field.
type nothing = struct{}
