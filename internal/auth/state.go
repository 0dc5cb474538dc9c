package auth

import "github.com/erauner12/farmhand/internal/domain"

// State is a snapshot of the session
type State struct {
	User           *domain.UserProfile
	Token          string
	Loading        bool
	IsOnline       bool
	ServerError    bool
	SessionExpired bool
}

// Authenticated reports whether a token is held and the profile is loaded
func (s State) Authenticated() bool {
	return s.Token != "" && s.User != nil
}

// Role returns the loaded user's role, or "" when logged out
func (s State) Role() domain.Role {
	if s.User == nil {
		return ""
	}
	return s.User.Role
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Result is what screen-facing operations return instead of an error, so
// callers can render inline messages without error plumbing
type Result struct {
	Success bool
	Message string
}
