package fakeapi

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Name     string `json:"name"`
}

type authPayload struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken,omitempty"`
	User         *User  `json:"user,omitempty"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decode(w, r, &c) {
		return
	}
	s.mu.Lock()
	u := s.userByName(c.Username)
	var hash []byte
	if u != nil {
		hash = u.hash
	}
	s.mu.Unlock()
	if u == nil || bcrypt.CompareHashAndPassword(hash, []byte(c.Password)) != nil {
		writeError(w, http.StatusUnauthorized, errInvalidCredentials.Error())
		return
	}

	s.mu.Lock()
	access, refresh := s.mintTokens(u.ID)
	cp := *u
	s.mu.Unlock()
	writeData(w, http.StatusOK, authPayload{Token: access, RefreshToken: refresh, User: &cp}, nil)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if !decode(w, r, &c) {
		return
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" || len(c.Password) < 6 {
		writeError(w, http.StatusUnprocessableEntity, "username required and password must be at least 6 characters")
		return
	}
	u, err := s.AddUser(c.Username, c.Password, "member")
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	s.mu.Lock()
	stored := s.users[u.ID]
	if c.Email != "" {
		stored.Email = c.Email
	}
	stored.Name = c.Name
	access, refresh := s.mintTokens(u.ID)
	cp := *stored
	s.mu.Unlock()
	writeData(w, http.StatusCreated, authPayload{Token: access, RefreshToken: refresh, User: &cp}, nil)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.refresh[body.RefreshToken]
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh token invalid")
		return
	}
	delete(s.refresh, body.RefreshToken)
	access, refresh := s.mintTokens(userID)
	writeData(w, http.StatusOK, authPayload{Token: access, RefreshToken: refresh}, nil)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, u *User) {
	writeData(w, http.StatusOK, map[string]any{"user": u}, nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, u *User) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	delete(s.access, token)
	for rt, id := range s.refresh {
		if id == u.ID {
			delete(s.refresh, rt)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "logged out"})
}
