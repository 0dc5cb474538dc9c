// Package domain holds the typed payload records exchanged with the API.
// Payloads are decoded into these types at the boundary and validated
// before the rest of the client relies on them.
package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role drives which dashboard and forms the client offers.
// Authorization is always enforced by the server.
type Role string

const (
	RoleFarmer       Role = "farmer"
	RoleVeterinarian Role = "veterinarian"
	RoleWorker       Role = "worker"
	RoleLoanOfficer  Role = "loan_officer"
	RoleAdmin        Role = "admin"
)

// Roles lists every known role
var Roles = []Role{RoleFarmer, RoleVeterinarian, RoleWorker, RoleLoanOfficer, RoleAdmin}

// ParseRole normalises role spellings the backend has been seen to send
// ("Loan Officer", "loan-officer", "VET").
func ParseRole(s string) Role {
	r := strings.ToLower(strings.TrimSpace(s))
	r = strings.NewReplacer(" ", "_", "-", "_").Replace(r)
	switch r {
	case "vet":
		return RoleVeterinarian
	case "loanofficer":
		return RoleLoanOfficer
	}
	return Role(r)
}

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Dashboard returns the dashboard route for r
func (r Role) Dashboard() string {
	switch r {
	case RoleFarmer:
		return "/farmer/dashboard"
	case RoleVeterinarian:
		return "/vet/dashboard"
	case RoleWorker:
		return "/worker/dashboard"
	case RoleLoanOfficer:
		return "/loan-officer/dashboard"
	case RoleAdmin:
		return "/admin/dashboard"
	}
	return "/dashboard"
}

// ID is an entity identifier. The backend sends numeric or string ids
// depending on the resource; both decode into the string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// UserProfile is the authenticated user as returned by the profile endpoint
type UserProfile struct {
	ID                ID     `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Role              Role   `json:"role"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
}

// FullName joins first and last name
func (u UserProfile) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Validate checks the fields the client relies on
func (u UserProfile) Validate() error {
	if u.Email == "" && u.ID == "" {
		return fmt.Errorf("user profile has neither id nor email")
	}
	return nil
}

// AuthResponse is returned by login and register
type AuthResponse struct {
	Token string       `json:"token"`
	User  *UserProfile `json:"user"`
	Role  string       `json:"role"`
}

// Validate checks the response carries a usable token
func (r AuthResponse) Validate() error {
	if strings.TrimSpace(r.Token) == "" {
		return fmt.Errorf("auth response carries no token")
	}
	return nil
}

// SessionUser returns the user with the response's top-level role merged in
func (r AuthResponse) SessionUser() *UserProfile {
	u := UserProfile{}
	if r.User != nil {
		u = *r.User
	}
	if r.Role != "" {
		u.Role = ParseRole(r.Role)
	} else if u.Role != "" {
		u.Role = ParseRole(string(u.Role))
	}
	return &u
}

// profileEnvelope matches servers that wrap the profile in {"user": {...}}
type profileEnvelope struct {
	User *UserProfile `json:"user"`
}

// DecodeProfile accepts both a bare profile and a {"user": {...}} envelope
func DecodeProfile(b []byte) (*UserProfile, error) {
	var env profileEnvelope
	if err := json.Unmarshal(b, &env); err == nil && env.User != nil {
		env.User.Role = ParseRole(string(env.User.Role))
		return env.User, env.User.Validate()
	}

	var u UserProfile
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	u.Role = ParseRole(string(u.Role))
	return &u, u.Validate()
}
