package core

import "errors"

// ErrNotFound is returned when a session or the settings record does not
// exist in a store or registry.
var ErrNotFound = errors.New("not found")

// PersistenceStore snapshots sessions and settings. Implementations must be
// safe for concurrent use. The dispatch pipeline never touches a store; the
// caller saves state after a dispatch completes.
type PersistenceStore interface {
	SaveSession(session *ChatSession) error
	// LoadSession returns ErrNotFound when the id is unknown.
	LoadSession(id string) (*ChatSession, error)
	LoadAllSessions() ([]*ChatSession, error)
	// DeleteSession returns ErrNotFound when the id is unknown.
	DeleteSession(id string) error
	SaveSettings(settings AppSettings) error
	// LoadSettings returns ErrNotFound when nothing was saved yet.
	LoadSettings() (AppSettings, error)
}

// SessionRegistry holds the sessions of a running client and tracks which
// one is active. Implementations return copies and are safe for concurrent use.
type SessionRegistry interface {
	// Create adds an empty session, makes it active and returns its id.
	Create(title string) string
	Put(session *ChatSession)
	Get(id string) (*ChatSession, bool)
	// Update applies fn to the stored session under the registry lock.
	// It returns ErrNotFound when the id is unknown.
	Update(id string, fn func(s *ChatSession)) (*ChatSession, error)
	// SetActive ignores unknown ids.
	SetActive(id string)
	Active() (*ChatSession, bool)
	// List returns sessions ordered by UpdatedAt, most recent first.
	List() []*ChatSession
	Delete(id string) bool
}
