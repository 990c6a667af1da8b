package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hupe1980/chatpipe/core"
)

// Registry is an in-memory set of chat sessions plus the id of the active
// one. It is safe for concurrent access. Sessions handed out are clones, so
// callers mutate registry state only through Update.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*core.ChatSession
	activeID string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*core.ChatSession)}
}

// Create adds a new session and makes it active. It returns the session id.
func (r *Registry) Create(title string) string {
	s := core.NewChatSession(title)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	r.activeID = s.ID
	return s.ID
}

// Put stores a clone of s, replacing any session with the same id. It does
// not change the active session.
func (r *Registry) Put(s *core.ChatSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s.Clone()
}

// Get returns a clone of the session with the given id.
func (r *Registry) Get(id string) (*core.ChatSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Update runs fn on the stored session while holding the write lock and
// returns a clone of the result.
func (r *Registry) Update(id string, fn func(s *core.ChatSession)) (*core.ChatSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, core.ErrNotFound)
	}
	fn(s)
	return s.Clone(), nil
}

// SetActive marks id as the active session. Unknown ids are ignored.
func (r *Registry) SetActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		r.activeID = id
	}
}

// Active returns a clone of the active session, if any.
func (r *Registry) Active() (*core.ChatSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[r.activeID]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// ActiveID returns the id of the active session or "".
func (r *Registry) ActiveID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeID
}

// List returns clones of all sessions, most recently updated first.
func (r *Registry) List() []*core.ChatSession {
	r.mu.RLock()
	out := make([]*core.ChatSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Delete removes the session and reports whether it existed. Deleting the
// active session leaves no session active.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	if r.activeID == id {
		r.activeID = ""
	}
	return true
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
