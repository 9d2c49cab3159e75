package fakeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errUserExists         = errors.New("username already taken")
)

// Book mirrors the catalog record served to clients.
type Book struct {
	ID                string    `json:"_id"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	ISBN              string    `json:"isbn,omitempty"`
	Category          string    `json:"category,omitempty"`
	Description       string    `json:"description,omitempty"`
	PublishedYear     int       `json:"publishedYear,omitempty"`
	Quantity          int       `json:"quantity"`
	AvailableQuantity int       `json:"availableQuantity"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Issue is one loan of one copy.
type Issue struct {
	ID         string     `json:"_id"`
	BookID     string     `json:"bookId"`
	BookTitle  string     `json:"bookTitle"`
	UserID     string     `json:"userId"`
	Username   string     `json:"username"`
	IssueDate  time.Time  `json:"issueDate"`
	DueDate    time.Time  `json:"dueDate"`
	ReturnDate *time.Time `json:"returnDate,omitempty"`
	Status     string     `json:"status"`
	Renewals   int        `json:"renewals"`
	Fine       float64    `json:"fine,omitempty"`
}

// User is an account. The hash never leaves the server.
type User struct {
	ID        string    `json:"_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Name      string    `json:"name,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	hash      []byte
}

type pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type envelope struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data,omitempty"`
	Message    string      `json:"message,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type failure struct {
	prefix string
	status int
	left   int
}

const (
	loanPeriod  = 14 * 24 * time.Hour
	maxRenewals = 2
	finePerDay  = 0.5
)

// Server holds the service state. The zero value is not usable; call New.
type Server struct {
	// TokenFunc mints access and refresh tokens.
	TokenFunc func() string
	// Clock can be overridden in tests to move loans past their due date.
	Clock func() time.Time

	logger *slog.Logger
	router *mux.Router

	mu       sync.Mutex
	nextID   map[string]int
	books    map[string]*Book
	issues   map[string]*Issue
	users    map[string]*User
	access   map[string]string // token -> user id
	refresh  map[string]string // refresh token -> user id
	failures []*failure
	hits     map[string]int

	events *broker
}

// New returns an empty Server.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		TokenFunc: uuid.NewString,
		Clock:     time.Now,
		logger:    logger,
		books:     make(map[string]*Book),
		issues:    make(map[string]*Issue),
		users:     make(map[string]*User),
		access:    make(map[string]string),
		refresh:   make(map[string]string),
		hits:      make(map[string]int),
		nextID:    make(map[string]int),
		events:    newBroker(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, s.scriptedFailures)
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.authed(s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/auth/logout", s.authed(s.handleLogout)).Methods(http.MethodPost)

	api.HandleFunc("/books", s.handleListBooks).Methods(http.MethodGet)
	api.HandleFunc("/books/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/books/{id}", s.handleGetBook).Methods(http.MethodGet)
	api.HandleFunc("/books", s.admin(s.handleCreateBook)).Methods(http.MethodPost)
	api.HandleFunc("/books/{id}", s.admin(s.handleUpdateBook)).Methods(http.MethodPut, http.MethodPatch)
	api.HandleFunc("/books/{id}", s.admin(s.handleDeleteBook)).Methods(http.MethodDelete)

	api.HandleFunc("/issues", s.authed(s.handleListIssues)).Methods(http.MethodGet)
	api.HandleFunc("/issues/my", s.authed(s.handleMyIssues)).Methods(http.MethodGet)
	api.HandleFunc("/issues/overdue", s.admin(s.handleOverdue)).Methods(http.MethodGet)
	api.HandleFunc("/issues", s.authed(s.handleIssue)).Methods(http.MethodPost)
	api.HandleFunc("/issues/{id}/return", s.authed(s.handleReturn)).Methods(http.MethodPut)
	api.HandleFunc("/issues/{id}/renew", s.authed(s.handleRenew)).Methods(http.MethodPut)

	api.HandleFunc("/admin/stats", s.admin(s.handleStats)).Methods(http.MethodGet)
	api.HandleFunc("/admin/users", s.admin(s.handleUsers)).Methods(http.MethodGet)
	api.HandleFunc("/admin/users/{id}/role", s.admin(s.handleUserRole)).Methods(http.MethodPut)
	api.HandleFunc("/admin/users/{id}", s.admin(s.handleDeleteUser)).Methods(http.MethodDelete)

	api.HandleFunc("/events", s.authed(s.handleEvents)).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// AddUser creates an account and returns it.
func (s *Server) AddUser(username, password, role string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByName(username) != nil {
		return User{}, errUserExists
	}
	u := &User{
		ID:        s.newID("user", "u"),
		Username:  username,
		Email:     username + "@example.com",
		Role:      role,
		CreatedAt: s.Clock(),
		hash:      hash,
	}
	s.users[u.ID] = u
	return *u, nil
}

// AddBook stores b, assigning an id when empty, and returns it.
func (s *Server) AddBook(b Book) Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.addBook(b)
}

func (s *Server) addBook(b Book) *Book {
	if b.ID == "" {
		b.ID = s.newID("book", "")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.Clock()
	}
	stored := b
	s.books[b.ID] = &stored
	return &stored
}

// Book returns the stored book with id.
func (s *Server) Book(id string) (Book, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return Book{}, false
	}
	return *b, true
}

// Seed loads a small demo catalog with an admin and a member account.
func (s *Server) Seed() error {
	if _, err := s.AddUser("admin", "admin123", "admin"); err != nil {
		return err
	}
	if _, err := s.AddUser("reader", "reader123", "member"); err != nil {
		return err
	}
	for _, b := range []Book{
		{Title: "Dune", Author: "Frank Herbert", ISBN: "9780441013593", Category: "Science Fiction", PublishedYear: 1965, Quantity: 3, AvailableQuantity: 2},
		{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", ISBN: "9780441478125", Category: "Science Fiction", PublishedYear: 1969, Quantity: 2, AvailableQuantity: 2},
		{Title: "The Name of the Rose", Author: "Umberto Eco", ISBN: "9780156001311", Category: "Mystery", PublishedYear: 1980, Quantity: 1, AvailableQuantity: 0},
		{Title: "A Brief History of Time", Author: "Stephen Hawking", ISBN: "9780553380163", Category: "Science", PublishedYear: 1988, Quantity: 4, AvailableQuantity: 4},
		{Title: "Middlemarch", Author: "George Eliot", ISBN: "9780141439549", Category: "Classics", PublishedYear: 1871, Quantity: 2, AvailableQuantity: 1},
	} {
		s.AddBook(b)
	}
	return nil
}

// ExpireTokens revokes every access token. Refresh tokens stay valid.
func (s *Server) ExpireTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefreshTokens revokes every refresh token.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// FailNext answers the next n requests whose path starts with prefix (after
// /api) with status.
func (s *Server) FailNext(prefix string, status, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, &failure{prefix: prefix, status: status, left: n})
}

// Hits returns how many requests reached method and path (after /api),
// including the query string when present.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[method+" "+path]
}

// newID returns the next id for kind: "1", "2", ... prefixed by prefix.
func (s *Server) newID(kind, prefix string) string {
	s.nextID[kind]++
	return prefix + strconv.Itoa(s.nextID[kind])
}

func (s *Server) userByName(name string) *User {
	for _, u := range s.users {
		if strings.EqualFold(u.Username, name) {
			return u
		}
	}
	return nil
}

func (s *Server) mintTokens(userID string) (string, string) {
	access, refresh := s.TokenFunc(), s.TokenFunc()
	s.access[access] = userID
	s.refresh[refresh] = userID
	return access, refresh
}

func apiPath(r *http.Request) string {
	p := strings.TrimPrefix(r.URL.Path, "/api")
	if r.URL.RawQuery != "" {
		p += "?" + r.URL.RawQuery
	}
	return p
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.mu.Lock()
		s.hits[r.Method+" "+apiPath(r)]++
		s.mu.Unlock()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", r.Header.Get("X-Request-ID"),
			"duration", time.Since(start))
	})
}

func (s *Server) scriptedFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api")
		s.mu.Lock()
		var status int
		for i, f := range s.failures {
			if strings.HasPrefix(path, f.prefix) {
				status = f.status
				f.left--
				if f.left <= 0 {
					s.failures = append(s.failures[:i], s.failures[i+1:]...)
				}
				break
			}
		}
		s.mu.Unlock()
		if status != 0 {
			writeError(w, status, http.StatusText(status))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// authed resolves the bearer token to a user and rejects the call with 401
// when it is missing or revoked.
func (s *Server) authed(h func(http.ResponseWriter, *http.Request, *User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		s.mu.Lock()
		var user *User
		if id, ok := s.access[token]; ok {
			if u, ok := s.users[id]; ok {
				cp := *u
				user = &cp
			}
		}
		s.mu.Unlock()
		if user == nil {
			writeError(w, http.StatusUnauthorized, "token expired or invalid")
			return
		}
		h(w, r, user)
	}
}

func (s *Server) admin(h func(http.ResponseWriter, *http.Request, *User)) http.HandlerFunc {
	return s.authed(func(w http.ResponseWriter, r *http.Request, u *User) {
		if u.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		h(w, r, u)
	})
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeData(w http.ResponseWriter, status int, data any, page *pagination) {
	writeJSON(w, status, envelope{Success: true, Data: data, Pagination: page})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// paginate slices items per the page and limit query parameters.
func paginate[T any](r *http.Request, items []T) ([]T, *pagination) {
	page := atoiDefault(r.URL.Query().Get("page"), 1)
	limit := atoiDefault(r.URL.Query().Get("limit"), 20)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	total := len(items)
	pages := (total + limit - 1) / limit
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	return items[start:end], &pagination{Page: page, Limit: limit, Total: total, Pages: pages}
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
