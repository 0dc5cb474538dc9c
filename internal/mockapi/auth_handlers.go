package mockapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/domain"
)

type authResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
	Role  string `json:"role"`
}

// startSession creates a session and signs its token
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, u *User, status int) {
	sess := s.sessions.CreateSession(u.ID)
	token, err := s.signer.Issue(u, sess)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to sign token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, status, authResponse{Token: token, User: u, Role: u.Role})
}

// Login handles POST /auth/login
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, ok := s.users.Authenticate(req.Email, req.Password)
	if !ok {
		s.metrics.logins.WithLabelValues("rejected").Inc()
		logger.Info().Str("email", req.Email).Msg("login rejected")
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.metrics.logins.WithLabelValues("ok").Inc()
	logger.Info().Str("userId", u.ID).Str("role", u.Role).Msg("login")
	s.startSession(w, r, u, http.StatusOK)
}

// Register handles POST /auth/register
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		User
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if req.Role != "" && !domain.ParseRole(req.Role).Valid() {
		writeError(w, http.StatusBadRequest, "Unknown role")
		return
	}

	u, err := s.users.Create(req.User, req.Password)
	if errors.Is(err, ErrUserExists) {
		writeError(w, http.StatusConflict, "An account with this email already exists")
		return
	}
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "could not create account")
		return
	}

	verifyToken := s.users.IssueVerification(u.ID)
	log.Ctx(r.Context()).Info().
		Str("userId", u.ID).
		Str("verifyToken", verifyToken).
		Msg("user registered")

	s.startSession(w, r, u, http.StatusCreated)
}

// ForgotPassword handles POST /auth/forgot-password. It answers the same
// way whether or not the email is known.
func (s *Server) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if token, ok := s.users.IssueResetToken(req.Email); ok {
		// No mail in the mock; the token is only logged
		log.Ctx(r.Context()).Info().Str("resetToken", token).Msg("password reset requested")
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If that email is registered, reset instructions have been sent.",
	})
}

// ResetPassword handles POST /auth/reset-password
func (s *Server) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "Password is required")
		return
	}
	userID, ok := s.users.ConsumeResetToken(req.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, "Reset link is invalid or has expired")
		return
	}
	if err := s.users.SetPassword(userID, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "could not reset password")
		return
	}
	// A reset ends every existing session
	n := s.sessions.DeleteUserSessions(userID)
	log.Ctx(r.Context()).Info().Str("userId", userID).Int("revoked", n).Msg("password reset")
	writeJSON(w, http.StatusOK, map[string]string{"message": "Your password has been reset."})
}

// VerifyEmail handles POST /auth/verify-email
func (s *Server) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, ok := s.users.Verify(req.Token)
	if !ok {
		writeError(w, http.StatusBadRequest, "Verification link is invalid")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Email verified.", "user": u})
}

// GetProfile handles GET /auth/profile and /auth/me
func (s *Server) GetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"user": CurrentUser(r.Context())})
}

// UpdateProfile handles PUT /auth/profile
func (s *Server) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FirstName         string `json:"firstName"`
		LastName          string `json:"lastName"`
		Phone             string `json:"phone"`
		PreferredLanguage string `json:"preferredLanguage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, err := s.users.Update(CurrentUser(r.Context()).ID, func(u *User) {
		if req.FirstName != "" {
			u.FirstName = req.FirstName
		}
		if req.LastName != "" {
			u.LastName = req.LastName
		}
		if req.Phone != "" {
			u.Phone = req.Phone
		}
		if req.PreferredLanguage != "" {
			u.PreferredLanguage = req.PreferredLanguage
		}
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

// ChangePassword handles PUT /auth/change-password. A wrong current
// password is a 401, which clients must treat as bad input.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u := CurrentUser(r.Context())
	if !s.users.CheckPassword(u.ID, req.CurrentPassword) {
		writeError(w, http.StatusUnauthorized, "Current password is incorrect")
		return
	}
	if req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "New password is required")
		return
	}
	if err := s.users.SetPassword(u.ID, req.NewPassword); err != nil {
		writeError(w, http.StatusInternalServerError, "could not change password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Your password has been changed."})
}

// Logout handles POST /auth/logout by revoking the caller's session
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if sess, ok := currentSession(r.Context()); ok {
		s.sessions.DeleteSession(sess.ID)
		log.Ctx(r.Context()).Info().Str("sessionId", sess.ID).Msg("logged out")
	}
	w.WriteHeader(http.StatusNoContent)
}
