package mockapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session backs one issued token. Deleting it revokes the token even though
// the JWT itself is still within its lifetime.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore tracks live sessions in memory
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session // key: session id (JWT jti)
	ttl      time.Duration
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{sessions: make(map[string]Session), ttl: ttl}
}

// TTL is the lifetime given to new sessions
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// CreateSession starts a session for the user
func (s *SessionStore) CreateSession(userID string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	session := Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.sessions[session.ID] = session

	// Clean up expired sessions opportunistically
	s.cleanupExpiredLocked()

	return session
}

// GetSession returns a live session
func (s *SessionStore) GetSession(sessionID string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists || time.Now().UTC().After(session.ExpiresAt) {
		return Session{}, false
	}
	return session, true
}

// DeleteSession revokes one session
func (s *SessionStore) DeleteSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	return exists
}

// DeleteUserSessions revokes every session of a user and returns how many
// were removed
func (s *SessionStore) DeleteUserSessions(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			count++
		}
	}
	return count
}

// DeleteAll revokes everything
func (s *SessionStore) DeleteAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.sessions)
	s.sessions = make(map[string]Session)
	return n
}

// cleanupExpiredLocked removes expired sessions (caller must hold write lock)
func (s *SessionStore) cleanupExpiredLocked() {
	now := time.Now().UTC()
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
		}
	}
}
