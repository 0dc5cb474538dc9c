package mockapi

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erauner12/farmhand/internal/domain"
)

var (
	ErrUserExists   = errors.New("user already exists")
	ErrUserNotFound = errors.New("user not found")
)

// User is a stored account. PasswordHash never leaves the server.
type User struct {
	ID                string `json:"id"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Email             string `json:"email"`
	Phone             string `json:"phone,omitempty"`
	Role              string `json:"role"`
	PreferredLanguage string `json:"preferredLanguage,omitempty"`
	EmailVerified     bool   `json:"emailVerified"`
	PasswordHash      string `json:"-"`
}

// UserStore keeps accounts in memory, keyed by lowercased email
type UserStore struct {
	mu         sync.RWMutex
	byEmail    map[string]*User
	byID       map[string]*User
	resetCodes map[string]string // reset token -> user id
	verifyCode map[string]string // verification token -> user id
	cost       int
}

func NewUserStore(bcryptCost int) *UserStore {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &UserStore{
		byEmail:    make(map[string]*User),
		byID:       make(map[string]*User),
		resetCodes: make(map[string]string),
		verifyCode: make(map[string]string),
		cost:       bcryptCost,
	}
}

// Create hashes password and stores u. Unknown roles fall back to farmer.
func (s *UserStore) Create(u User, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(u.Email))
	role := domain.ParseRole(u.Role)
	if !role.Valid() {
		role = domain.RoleFarmer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[email]; ok {
		return nil, ErrUserExists
	}
	stored := u
	stored.ID = uuid.New().String()
	stored.Email = email
	stored.Role = string(role)
	stored.PasswordHash = string(hash)
	s.byEmail[email] = &stored
	s.byID[stored.ID] = &stored

	out := stored
	return &out, nil
}

// Authenticate returns the user when email and password match
func (s *UserStore) Authenticate(email, password string) (*User, bool) {
	s.mu.RLock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, false
	}
	return s.Get(u.ID)
}

// Get returns a copy of the user
func (s *UserStore) Get(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	out := *u
	return &out, true
}

// Update applies fn to the stored user
func (s *UserStore) Update(id string, fn func(u *User)) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	fn(u)
	out := *u
	return &out, nil
}

// SetPassword replaces the password hash
func (s *UserStore) SetPassword(id, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return err
	}
	_, err = s.Update(id, func(u *User) { u.PasswordHash = string(hash) })
	return err
}

// CheckPassword reports whether password matches the user's current one
func (s *UserStore) CheckPassword(id, password string) bool {
	s.mu.RLock()
	u, ok := s.byID[id]
	var hash string
	if ok {
		hash = u.PasswordHash
	}
	s.mu.RUnlock()
	return ok && bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueResetToken creates a one-time reset token for email. ok is false for
// unknown emails; callers must not reveal that to clients.
func (s *UserStore) IssueResetToken(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return "", false
	}
	token := uuid.New().String()
	s.resetCodes[token] = u.ID
	return token, true
}

// ConsumeResetToken returns the user id for token and invalidates it
func (s *UserStore) ConsumeResetToken(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.resetCodes[token]
	delete(s.resetCodes, token)
	return id, ok
}

// IssueVerification creates an email verification token for the user
func (s *UserStore) IssueVerification(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.New().String()
	s.verifyCode[token] = id
	return token
}

// Verify marks the token's user verified and invalidates the token
func (s *UserStore) Verify(token string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.verifyCode[token]
	if !ok {
		return nil, false
	}
	delete(s.verifyCode, token)
	u, ok := s.byID[id]
	if !ok {
		return nil, false
	}
	u.EmailVerified = true
	out := *u
	return &out, true
}
