package library

import (
	"net/url"
	"strconv"
	"time"

	"github.com/five82/shelf/internal/session"
)

// User is an account as seen by the client.
type User = session.User

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Result is the normalized return shape of every operation.
type Result[T any] struct {
	Data       T
	Pagination *Pagination
}

// Book is a catalog entry.
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

// Available reports whether at least one copy can be issued.
func (b Book) Available() bool {
	return b.AvailableQuantity > 0
}

// BookInput is the body of create and update calls. Empty fields are left
// unchanged on update.
type BookInput struct {
	Title         string `json:"title,omitempty"`
	Author        string `json:"author,omitempty"`
	ISBN          string `json:"isbn,omitempty"`
	Category      string `json:"category,omitempty"`
	Description   string `json:"description,omitempty"`
	PublishedYear int    `json:"publishedYear,omitempty"`
	Quantity      *int   `json:"quantity,omitempty"`
}

// BookQuery filters a catalog listing.
type BookQuery struct {
	Search    string
	Category  string
	Available bool
	Sort      string // title (default), author or newest
	Page      int
	Limit     int
	// Fresh reads from the service even when a cached page exists. The
	// response still refreshes the cache.
	Fresh bool
}

func (q BookQuery) values() url.Values {
	v := url.Values{}
	setString(v, "search", q.Search)
	setString(v, "category", q.Category)
	setString(v, "sort", q.Sort)
	if q.Available {
		v.Set("available", "true")
	}
	setPage(v, q.Page, q.Limit)
	return v
}

// Issue statuses.
const (
	StatusIssued   = "issued"
	StatusReturned = "returned"
	StatusOverdue  = "overdue"
)

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

// Open reports whether the copy is still on loan.
func (i Issue) Open() bool {
	return i.ReturnDate == nil
}

// IssueRequest asks for a copy of BookID. UserID is for admins issuing on
// behalf of someone else; Days overrides the default loan period.
type IssueRequest struct {
	BookID string `json:"bookId"`
	UserID string `json:"userId,omitempty"`
	Days   int    `json:"days,omitempty"`
}

// IssueQuery filters a loan listing.
type IssueQuery struct {
	Status string
	UserID string
	Page   int
	Limit  int
}

func (q IssueQuery) values() url.Values {
	v := url.Values{}
	setString(v, "status", q.Status)
	setString(v, "userId", q.UserID)
	setPage(v, q.Page, q.Limit)
	return v
}

// Stats summarizes the library for the admin console.
type Stats struct {
	TotalBooks       int     `json:"totalBooks"`
	TotalCopies      int     `json:"totalCopies"`
	AvailableCopies  int     `json:"availableCopies"`
	TotalUsers       int     `json:"totalUsers"`
	ActiveIssues     int     `json:"activeIssues"`
	OverdueIssues    int     `json:"overdueIssues"`
	OutstandingFines float64 `json:"outstandingFines"`
}

// UserQuery filters the admin user listing.
type UserQuery struct {
	Role   string
	Search string
	Page   int
	Limit  int
}

func (q UserQuery) values() url.Values {
	v := url.Values{}
	setString(v, "role", q.Role)
	setString(v, "search", q.Search)
	setPage(v, q.Page, q.Limit)
	return v
}

// RegisterInput creates a member account.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// AuthResult is returned by login, register and refresh.
type AuthResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func setString(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

func setPage(v url.Values, page, limit int) {
	if page > 0 {
		v.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
}
