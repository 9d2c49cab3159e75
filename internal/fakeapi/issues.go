package fakeapi

import (
	"math"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
)

const (
	statusIssued   = "issued"
	statusReturned = "returned"
	statusOverdue  = "overdue"
)

// refreshStatus marks open loans past due. Callers hold s.mu.
func (s *Server) refreshStatus(is *Issue) {
	if is.ReturnDate == nil && s.Clock().After(is.DueDate) {
		is.Status = statusOverdue
		days := math.Ceil(s.Clock().Sub(is.DueDate).Hours() / 24)
		is.Fine = days * finePerDay
	}
}

func (s *Server) collectIssues(keep func(*Issue) bool) []Issue {
	s.mu.Lock()
	out := make([]Issue, 0)
	for _, is := range s.issues {
		s.refreshStatus(is)
		if keep(is) {
			out = append(out, *is)
		}
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Issue) int { return b.IssueDate.Compare(a.IssueDate) })
	return out
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request, u *User) {
	q := r.URL.Query()
	status := q.Get("status")
	userID := q.Get("userId")
	if u.Role != "admin" {
		userID = u.ID
	}
	issues := s.collectIssues(func(is *Issue) bool {
		if userID != "" && is.UserID != userID {
			return false
		}
		return status == "" || is.Status == status
	})
	page, p := paginate(r, issues)
	writeData(w, http.StatusOK, map[string]any{"issues": page}, p)
}

func (s *Server) handleMyIssues(w http.ResponseWriter, r *http.Request, u *User) {
	issues := s.collectIssues(func(is *Issue) bool { return is.UserID == u.ID })
	writeData(w, http.StatusOK, map[string]any{"issues": issues}, nil)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request, _ *User) {
	issues := s.collectIssues(func(is *Issue) bool { return is.Status == statusOverdue })
	writeData(w, http.StatusOK, map[string]any{"issues": issues}, nil)
}

func (s *Server) handleIssue(w http.ResponseWriter, r *http.Request, u *User) {
	var req struct {
		BookID string `json:"bookId"`
		UserID string `json:"userId"`
		Days   int    `json:"days"`
	}
	if !decode(w, r, &req) {
		return
	}
	borrower := u.ID
	if req.UserID != "" && req.UserID != u.ID {
		if u.Role != "admin" {
			writeError(w, http.StatusForbidden, "only admins can issue books to other users")
			return
		}
		borrower = req.UserID
	}
	period := loanPeriod
	if req.Days > 0 {
		period = time.Duration(req.Days) * 24 * time.Hour
	}

	s.mu.Lock()
	book, ok := s.books[req.BookID]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "book not found")
		return
	}
	user, ok := s.users[borrower]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if book.AvailableQuantity <= 0 {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "no copies available")
		return
	}
	for _, is := range s.issues {
		if is.BookID == book.ID && is.UserID == borrower && is.ReturnDate == nil {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "book already issued to this user")
			return
		}
	}
	book.AvailableQuantity--
	now := s.Clock()
	is := &Issue{
		ID:        s.newID("issue", "i"),
		BookID:    book.ID,
		BookTitle: book.Title,
		UserID:    user.ID,
		Username:  user.Username,
		IssueDate: now,
		DueDate:   now.Add(period),
		Status:    statusIssued,
	}
	s.issues[is.ID] = is
	issued, updated := *is, *book
	s.mu.Unlock()

	s.events.publish("issue.created", issued)
	s.events.publish("book.updated", updated)
	writeData(w, http.StatusCreated, map[string]any{"issue": issued}, nil)
}

// openIssue finds the caller's open loan with id. Callers hold s.mu.
func (s *Server) openIssue(w http.ResponseWriter, id string, u *User) *Issue {
	is, ok := s.issues[id]
	if !ok || (u.Role != "admin" && is.UserID != u.ID) {
		writeError(w, http.StatusNotFound, "issue not found")
		return nil
	}
	if is.ReturnDate != nil {
		writeError(w, http.StatusConflict, "book already returned")
		return nil
	}
	return is
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request, u *User) {
	s.mu.Lock()
	is := s.openIssue(w, mux.Vars(r)["id"], u)
	if is == nil {
		s.mu.Unlock()
		return
	}
	s.refreshStatus(is)
	now := s.Clock()
	is.ReturnDate = &now
	is.Status = statusReturned
	var updated *Book
	if b, ok := s.books[is.BookID]; ok {
		b.AvailableQuantity++
		cp := *b
		updated = &cp
	}
	returned := *is
	s.mu.Unlock()

	s.events.publish("issue.returned", returned)
	if updated != nil {
		s.events.publish("book.updated", *updated)
	}
	writeData(w, http.StatusOK, map[string]any{"issue": returned}, nil)
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request, u *User) {
	s.mu.Lock()
	is := s.openIssue(w, mux.Vars(r)["id"], u)
	if is == nil {
		s.mu.Unlock()
		return
	}
	s.refreshStatus(is)
	switch {
	case is.Status == statusOverdue:
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, "overdue loans cannot be renewed")
		return
	case is.Renewals >= maxRenewals:
		s.mu.Unlock()
		writeError(w, http.StatusUnprocessableEntity, "renewal limit reached")
		return
	}
	is.Renewals++
	is.DueDate = is.DueDate.Add(loanPeriod)
	renewed := *is
	s.mu.Unlock()
	writeData(w, http.StatusOK, map[string]any{"issue": renewed}, nil)
}
