package fakeapi

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
)

type bookInput struct {
	Title         *string `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	Category      *string `json:"category"`
	Description   *string `json:"description"`
	PublishedYear *int    `json:"publishedYear"`
	Quantity      *int    `json:"quantity"`
}

func (in bookInput) apply(b *Book) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&b.Title, in.Title)
	set(&b.Author, in.Author)
	set(&b.ISBN, in.ISBN)
	set(&b.Category, in.Category)
	set(&b.Description, in.Description)
	if in.PublishedYear != nil {
		b.PublishedYear = *in.PublishedYear
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))
	category := strings.TrimSpace(q.Get("category"))
	available := q.Get("available") == "true"

	s.mu.Lock()
	books := make([]Book, 0, len(s.books))
	for _, b := range s.books {
		if search != "" && !matchesBook(b, search) {
			continue
		}
		if category != "" && !strings.EqualFold(b.Category, category) {
			continue
		}
		if available && b.AvailableQuantity == 0 {
			continue
		}
		books = append(books, *b)
	}
	s.mu.Unlock()

	sortBooks(books, q.Get("sort"))
	page, p := paginate(r, books)
	writeData(w, http.StatusOK, map[string]any{"books": page}, p)
}

func matchesBook(b *Book, needle string) bool {
	for _, field := range []string{b.Title, b.Author, b.ISBN, b.Category} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortBooks(books []Book, by string) {
	switch by {
	case "author":
		slices.SortFunc(books, func(a, b Book) int { return strings.Compare(a.Author, b.Author) })
	case "newest":
		slices.SortFunc(books, func(a, b Book) int { return b.CreatedAt.Compare(a.CreatedAt) })
	default:
		slices.SortFunc(books, func(a, b Book) int { return strings.Compare(a.Title, b.Title) })
	}
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	seen := map[string]bool{}
	var cats []string
	for _, b := range s.books {
		if b.Category != "" && !seen[b.Category] {
			seen[b.Category] = true
			cats = append(cats, b.Category)
		}
	}
	s.mu.Unlock()
	slices.Sort(cats)
	writeData(w, http.StatusOK, map[string]any{"categories": cats}, nil)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	b, ok := s.Book(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	writeData(w, http.StatusOK, map[string]any{"book": b}, nil)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, _ *User) {
	var in bookInput
	if !decode(w, r, &in) {
		return
	}
	var b Book
	in.apply(&b)
	if b.Title == "" || b.Author == "" {
		writeError(w, http.StatusUnprocessableEntity, "title and author are required")
		return
	}
	b.Quantity = 1
	if in.Quantity != nil {
		b.Quantity = *in.Quantity
	}
	if b.Quantity < 0 {
		writeError(w, http.StatusUnprocessableEntity, "quantity must not be negative")
		return
	}
	b.AvailableQuantity = b.Quantity

	s.mu.Lock()
	for _, existing := range s.books {
		if b.ISBN != "" && existing.ISBN == b.ISBN {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "a book with this ISBN already exists")
			return
		}
	}
	stored := *s.addBook(b)
	s.mu.Unlock()

	s.events.publish("book.created", stored)
	writeData(w, http.StatusCreated, map[string]any{"book": stored}, nil)
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, _ *User) {
	var in bookInput
	if !decode(w, r, &in) {
		return
	}
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	b, ok := s.books[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	updated := *b
	in.apply(&updated)
	if in.Quantity != nil {
		onLoan := b.Quantity - b.AvailableQuantity
		if *in.Quantity < onLoan {
			s.mu.Unlock()
			writeError(w, http.StatusUnprocessableEntity, "quantity is below the number of copies on loan")
			return
		}
		updated.Quantity = *in.Quantity
		updated.AvailableQuantity = *in.Quantity - onLoan
	}
	if updated.Title == "" || updated.Author == "" {
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, "title and author are required")
		return
	}
	*b = updated
	s.mu.Unlock()

	s.events.publish("book.updated", updated)
	writeData(w, http.StatusOK, map[string]any{"book": updated}, nil)
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ *User) {
	id := mux.Vars(r)["id"]
	s.mu.Lock()
	b, ok := s.books[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	if b.AvailableQuantity < b.Quantity {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "book has copies on loan")
		return
	}
	delete(s.books, id)
	s.mu.Unlock()

	s.events.publish("book.deleted", map[string]string{"_id": id})
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "book deleted"})
}
