// Package sessions owns the chat session table. Sessions are in-memory
// only and do not survive a process restart.
package sessions

import (
	"errors"
	"sync"

	"github.com/joescharf/repochat/internal/models"
)

// ErrTooManySessions is returned when creating a session would exceed the
// configured bound. History never grows unbounded across session ids.
var ErrTooManySessions = errors.New("session limit reached")

// DefaultMaxSessions bounds the session table when no limit is configured.
const DefaultMaxSessions = 256

type session struct {
	mu       sync.Mutex
	messages []models.ChatMessage
}

// Manager is the session table, keyed by opaque session id. Appends are
// serialized per id; sessions are independent across ids.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*session
	maxSessions int
}

// NewManager creates a session manager bounded to maxSessions ids.
// maxSessions <= 0 selects DefaultMaxSessions.
func NewManager(maxSessions int) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	return &Manager{
		sessions:    make(map[string]*session),
		maxSessions: maxSessions,
	}
}

// Append adds a message to the session, creating it lazily on first use.
func (m *Manager) Append(id string, msg models.ChatMessage) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		if len(m.sessions) >= m.maxSessions {
			m.mu.Unlock()
			return ErrTooManySessions
		}
		s = &session{}
		m.sessions[id] = s
	}
	m.mu.Unlock()

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
	return nil
}

// History returns a copy of the session's messages in insertion order.
// An unknown id yields an empty history and creates nothing.
func (m *Manager) History(id string) []models.ChatMessage {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return []models.ChatMessage{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset removes the session. Resetting an unknown id is not an error and
// creates nothing.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
