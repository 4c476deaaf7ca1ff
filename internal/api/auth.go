package api

import (
	"net/http"

	"github.com/nerrad567/facility-core/internal/auth"
)

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup creates an account and returns its first access token.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req auth.Signup
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	session, err := s.auth.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	s.logger.Info("user signed up", "user_id", session.User.ID)
	writeJSON(w, http.StatusCreated, session)
}

// handleLogin exchanges credentials for an access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}
	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleMe returns the caller's account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.User(r.Context(), principal(r).SubjectID)
	if err != nil {
		writeServiceError(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
