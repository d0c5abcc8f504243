package core

import (
	"sync"
	"time"
)

// Message is one entry in a session's ordered conversation log.
type Message struct {
	Role      string    `json:"role"` // user | assistant | system
	Content   string    `json:"content"`
	Turn      int       `json:"turn"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the per-conversation mutable record: ordered message log,
// turn counter and the optional link to an active handoff. It is safe for
// concurrent access, though callers are expected to serialize turns for
// the same session id.
//
// Contract:
//   - every mutation updates the Updated timestamp
//   - Messages returns a defensive copy
//   - Clone deep-copies for safe divergence
type Session struct {
	ID              string    `json:"id"`
	Log             []Message `json:"log"`
	Turn            int       `json:"turn"`
	ActiveHandoffID string    `json:"active_handoff_id,omitempty"`
	Created         time.Time `json:"created"`
	Updated         time.Time `json:"updated"`
	mu              sync.RWMutex
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now()
	return &Session{ID: id, Log: []Message{}, Created: now, Updated: now}
}

// Append adds a message to the log and bumps the turn counter to the
// message's turn when it is ahead of the current one.
func (s *Session) Append(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.Log = append(s.Log, m)
	if m.Turn > s.Turn {
		s.Turn = m.Turn
	}
	s.Updated = time.Now()
}

// Messages returns a defensive copy of the conversation log.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.Log))
	copy(out, s.Log)
	return out
}

// SetActiveHandoff links the session to an in-flight handoff record.
func (s *Session) SetActiveHandoff(handoffID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveHandoffID = handoffID
	s.Updated = time.Now()
}

// ClearActiveHandoff removes the handoff linkage.
func (s *Session) ClearActiveHandoff() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ActiveHandoffID = ""
	s.Updated = time.Now()
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{
		ID:              s.ID,
		Log:             make([]Message, len(s.Log)),
		Turn:            s.Turn,
		ActiveHandoffID: s.ActiveHandoffID,
		Created:         s.Created,
		Updated:         s.Updated,
	}
	copy(clone.Log, s.Log)
	return clone
}

// SessionStore persists sessions with an inactivity TTL. Implementations
// create sessions lazily on first contact and prune expired entries; the
// store's own map operations are the only cross-session coordination.
type SessionStore interface {
	// Get returns the session for the id, creating it when absent.
	Get(sessionID string) (*Session, error)
	// Create forces creation (or replacement) of a session.
	Create(sessionID string) (*Session, error)
	// Save writes the session back, refreshing its inactivity TTL.
	Save(s *Session) error
}
