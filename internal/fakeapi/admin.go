package fakeapi

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gorilla/mux"
)

type stats struct {
	TotalBooks      int     `json:"totalBooks"`
	TotalCopies     int     `json:"totalCopies"`
	AvailableCopies int     `json:"availableCopies"`
	TotalUsers      int     `json:"totalUsers"`
	ActiveIssues    int     `json:"activeIssues"`
	OverdueIssues   int     `json:"overdueIssues"`
	OutstandingFine float64 `json:"outstandingFines"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, _ *User) {
	s.mu.Lock()
	st := stats{TotalBooks: len(s.books), TotalUsers: len(s.users)}
	for _, b := range s.books {
		st.TotalCopies += b.Quantity
		st.AvailableCopies += b.AvailableQuantity
	}
	for _, is := range s.issues {
		s.refreshStatus(is)
		if is.ReturnDate != nil {
			continue
		}
		st.ActiveIssues++
		if is.Status == statusOverdue {
			st.OverdueIssues++
			st.OutstandingFine += is.Fine
		}
	}
	s.mu.Unlock()
	writeData(w, http.StatusOK, map[string]any{"stats": st}, nil)
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request, _ *User) {
	q := r.URL.Query()
	role := q.Get("role")
	search := strings.ToLower(strings.TrimSpace(q.Get("search")))

	s.mu.Lock()
	users := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(u.Username+" "+u.Email+" "+u.Name), search) {
			continue
		}
		users = append(users, *u)
	}
	s.mu.Unlock()

	slices.SortFunc(users, func(a, b User) int { return strings.Compare(a.Username, b.Username) })
	page, p := paginate(r, users)
	writeData(w, http.StatusOK, map[string]any{"users": page}, p)
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request, caller *User) {
	var body struct {
		Role string `json:"role"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Role != "admin" && body.Role != "member" {
		writeError(w, http.StatusUnprocessableEntity, "role must be admin or member")
		return
	}
	id := mux.Vars(r)["id"]
	if id == caller.ID {
		writeError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}
	s.mu.Lock()
	u, ok := s.users[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	u.Role = body.Role
	cp := *u
	s.mu.Unlock()
	writeData(w, http.StatusOK, map[string]any{"user": cp}, nil)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, caller *User) {
	id := mux.Vars(r)["id"]
	if id == caller.ID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}
	s.mu.Lock()
	if _, ok := s.users[id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	for _, is := range s.issues {
		if is.UserID == id && is.ReturnDate == nil {
			s.mu.Unlock()
			writeError(w, http.StatusConflict, "user has books on loan")
			return
		}
	}
	delete(s.users, id)
	for tok, uid := range s.access {
		if uid == id {
			delete(s.access, tok)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "user deleted"})
}
