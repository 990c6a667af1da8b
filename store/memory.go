package store

import (
	"fmt"
	"sync"

	"github.com/hupe1980/chatpipe/core"
)

// InMemoryStore is a process-local PersistenceStore guarded by an RWMutex.
// Sessions are cloned on save and on load so callers never share state with
// the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.ChatSession
	settings *core.AppSettings
}

// NewInMemoryStore returns an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.ChatSession)}
}

// SaveSession stores (or overwrites) a snapshot of session.
func (s *InMemoryStore) SaveSession(session *core.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

// LoadSession returns a copy of the stored session or core.ErrNotFound.
func (s *InMemoryStore) LoadSession(id string) (*core.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	return session.Clone(), nil
}

// LoadAllSessions returns copies of every stored session in no particular order.
func (s *InMemoryStore) LoadAllSessions() ([]*core.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Clone())
	}
	return out, nil
}

// DeleteSession removes the session if present or returns core.ErrNotFound.
func (s *InMemoryStore) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	delete(s.sessions, id)
	return nil
}

// SaveSettings replaces the stored settings.
func (s *InMemoryStore) SaveSettings(settings core.AppSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &settings
	return nil
}

// LoadSettings returns the stored settings or core.ErrNotFound.
func (s *InMemoryStore) LoadSettings() (core.AppSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return core.AppSettings{}, fmt.Errorf("settings: %w", core.ErrNotFound)
	}
	return *s.settings, nil
}
