// Package tokenstore holds the bearer token under a single persistent key.
package tokenstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/erauner12/farmhand/internal/storage"
)

// DefaultKey is the storage key used when none is configured
const DefaultKey = "token"

// ErrNoToken is returned by Claims when nothing is stored
var ErrNoToken = errors.New("no token stored")

// Store wraps a storage.Store and reads/writes exactly one key.
// It never validates the token; it is opaque to the client.
type Store struct {
	backend storage.Store
	key     string
}

// New creates a token store over backend. An empty key falls back to DefaultKey.
func New(backend storage.Store, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{backend: backend, key: key}
}

// Key returns the storage key holding the token
func (s *Store) Key() string {
	return s.key
}

// Get returns the stored token, or "" when logged out.
// Backend read errors are logged and treated as "no token".
func (s *Store) Get() string {
	v, ok, err := s.backend.Get(s.key)
	if err != nil {
		log.Warn().Err(err).Str("key", s.key).Msg("failed to read token")
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

// Set replaces the stored token
func (s *Store) Set(token string) error {
	if err := s.backend.Set(s.key, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

// Remove deletes the stored token
func (s *Store) Remove() error {
	if err := s.backend.Delete(s.key); err != nil {
		return fmt.Errorf("remove token: %w", err)
	}
	return nil
}

// IsAuthenticated reports whether a token is present
func (s *Store) IsAuthenticated() bool {
	return s.Get() != ""
}

// Claims describes what can be read from a JWT-shaped token without
// verifying it. Only for display; the server remains the authority.
type Claims struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims decodes the stored token as an unverified JWT
func (s *Store) Claims() (*Claims, error) {
	token := s.Get()
	if token == "" {
		return nil, ErrNoToken
	}
	return ParseClaims(token)
}

// ParseClaims decodes token without signature verification
func ParseClaims(token string) (*Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, fmt.Errorf("token is not a JWT: %w", err)
	}

	c := &Claims{}
	if sub, err := mc.GetSubject(); err == nil {
		c.Subject = sub
	}
	if role, ok := mc["role"].(string); ok {
		c.Role = role
	}
	if iat, err := mc.GetIssuedAt(); err == nil && iat != nil {
		c.IssuedAt = iat.Time
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}
