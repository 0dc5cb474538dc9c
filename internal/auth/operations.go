package auth

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/apiclient"
	"github.com/erauner12/farmhand/internal/domain"
)

// Credentials for Login
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration for Register
type Registration struct {
	FirstName         string      `json:"firstName"`
	LastName          string      `json:"lastName"`
	Email             string      `json:"email"`
	Phone             string      `json:"phone,omitempty"`
	Password          string      `json:"password"`
	Role              domain.Role `json:"role"`
	PreferredLanguage string      `json:"preferredLanguage,omitempty"`
}

// ProfileUpdate carries the editable profile fields
type ProfileUpdate struct {
	FirstName         string `json:"firstName,omitempty"`
	LastName          string `json:"lastName,omitempty"`
	Phone             string `json:"phone,omitempty"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Login exchanges credentials for a token and stores the session
func (s *Service) Login(ctx context.Context, creds Credentials) Result {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return Result{Message: "Email and password are required."}
	}

	var resp domain.AuthResponse
	if err := s.api.Post(ctx, "/auth/login", creds, &resp); err != nil {
		log.Warn().Err(err).Str("email", creds.Email).Msg("login failed")
		return failure(err, "Login failed. Please check your credentials.")
	}
	return s.establish(ctx, resp)
}

// Register creates an account and logs it in
func (s *Service) Register(ctx context.Context, reg Registration) Result {
	if reg.Role != "" && !reg.Role.Valid() {
		return Result{Message: "Unknown role: " + string(reg.Role)}
	}

	var resp domain.AuthResponse
	if err := s.api.Post(ctx, "/auth/register", reg, &resp); err != nil {
		log.Warn().Err(err).Str("email", reg.Email).Msg("registration failed")
		return failure(err, "Registration failed. Please try again.")
	}
	return s.establish(ctx, resp)
}

// RequestPasswordReset asks the server to send a reset link
func (s *Service) RequestPasswordReset(ctx context.Context, email string) Result {
	var resp messageResponse
	if err := s.api.Post(ctx, "/auth/forgot-password", map[string]string{"email": strings.TrimSpace(email)}, &resp); err != nil {
		return failure(err, "Could not send the password reset email.")
	}
	return Result{Success: true, Message: orDefault(resp.Message, "Password reset instructions have been sent to your email.")}
}

// ResetPassword completes a reset using the emailed token
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) Result {
	body := map[string]string{"token": resetToken, "password": newPassword}
	var resp messageResponse
	if err := s.api.Post(ctx, "/auth/reset-password", body, &resp); err != nil {
		return failure(err, "Password reset failed. The link may have expired.")
	}
	return Result{Success: true, Message: orDefault(resp.Message, "Your password has been reset.")}
}

// ChangePassword changes the logged-in user's password
func (s *Service) ChangePassword(ctx context.Context, currentPassword, newPassword string) Result {
	body := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	var resp messageResponse
	if err := s.api.Put(ctx, "/auth/change-password", body, &resp); err != nil {
		return failure(err, "Could not change your password.")
	}
	return Result{Success: true, Message: orDefault(resp.Message, "Your password has been changed.")}
}

// UpdateProfile saves profile edits and refreshes the held user
func (s *Service) UpdateProfile(ctx context.Context, upd ProfileUpdate) Result {
	var resp struct {
		domain.UserProfile
		User *domain.UserProfile `json:"user"`
	}
	if err := s.api.Put(ctx, profilePath, upd, &resp); err != nil {
		return failure(err, "Could not update your profile.")
	}

	user := resp.User
	if user == nil {
		user = &resp.UserProfile
	}
	user.Role = domain.ParseRole(string(user.Role))

	s.update(func(st *State) bool {
		if st.User == nil {
			st.User = user
			return true
		}
		merged := *st.User
		if user.FirstName != "" {
			merged.FirstName = user.FirstName
		}
		if user.LastName != "" {
			merged.LastName = user.LastName
		}
		if user.Phone != "" {
			merged.Phone = user.Phone
		}
		if user.PreferredLanguage != "" {
			merged.PreferredLanguage = user.PreferredLanguage
		}
		st.User = &merged
		return true
	})
	return Result{Success: true, Message: "Profile updated."}
}

// establish stores the token and user from a login/register response
func (s *Service) establish(ctx context.Context, resp domain.AuthResponse) Result {
	if err := resp.Validate(); err != nil {
		log.Error().Err(err).Msg("unusable auth response")
		return Result{Message: "Unexpected response from the server."}
	}
	if err := s.tokens.Set(resp.Token); err != nil {
		log.Error().Err(err).Msg("failed to persist token")
		return Result{Message: "Could not save your session on this device."}
	}

	if resp.User == nil {
		// Token only: fetch the profile the usual way
		s.update(func(st *State) bool {
			st.Token = resp.Token
			st.User = nil
			return true
		})
		if err := s.LoadProfile(ctx); err != nil {
			return failure(err, "Logged in, but the profile could not be loaded.")
		}
		return Result{Success: true}
	}

	user := resp.SessionUser()
	s.update(func(st *State) bool {
		st.Token = resp.Token
		st.User = user
		st.Loading = false
		st.ServerError = false
		return true
	})
	log.Info().Str("userId", user.ID.String()).Str("role", string(user.Role)).Msg("logged in")
	return Result{Success: true}
}

// failure converts any error into a Result. Offline and network failures
// use the client's connectivity messages; everything else prefers the
// server's own message.
func failure(err error, fallback string) Result {
	apiErr, ok := apiclient.AsError(err)
	if !ok {
		return Result{Message: fallback}
	}
	switch apiErr.Kind {
	case apiclient.KindOffline, apiclient.KindNetwork, apiclient.KindCanceled:
		return Result{Message: apiErr.Message}
	}
	return Result{Message: orDefault(apiErr.ServerMessage, fallback)}
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
