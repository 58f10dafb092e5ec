package sessioncore

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSessionExists is returned by Insert when the id is already present.
	ErrSessionExists = errors.New("session already registered")
	// ErrRegistryClosed is returned by Insert after DrainAll.
	ErrRegistryClosed = errors.New("registry closed")
)

// Registry maps session ids to live sessions for a single transport kind.
// All operations are atomic with respect to each other.
type Registry struct {
	kind Kind

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewRegistry returns an empty registry for sessions of the given kind.
func NewRegistry(kind Kind) *Registry {
	return &Registry{kind: kind, sessions: make(map[string]*Session)}
}

// Kind reports the transport kind this registry holds.
func (r *Registry) Kind() Kind { return r.kind }

// Insert registers s. An existing entry is never overwritten.
func (r *Registry) Insert(s *Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("insert: session id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.sessions[s.ID]; exists {
		return fmt.Errorf("insert %s: %w", s.ID, ErrSessionExists)
	}
	r.sessions[s.ID] = s
	return nil
}

// Lookup returns the session registered under id.
func (r *Registry) Lookup(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes id and reports whether it was present. Removing an absent
// id is a no-op.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// DrainAll empties the registry and returns what it held. The registry is
// sealed afterwards: later inserts fail with ErrRegistryClosed, so each
// session is handed to exactly one drainer.
func (r *Registry) DrainAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.sessions = make(map[string]*Session)
	return out
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
