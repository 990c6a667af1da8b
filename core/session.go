package core

import (
	"time"
	"unicode/utf8"
)

// previewLength is the number of characters of the first user message kept
// as the sidebar preview.
const previewLength = 100

// ChatSession is a titled conversation with an ordered message history.
//
// Contract:
//   - every mutation updates UpdatedAt
//   - Preview is derived once from the first user message and then kept
//   - Clone performs a deep copy of the message slice
//
// A ChatSession is a plain value with no internal locking; the session
// registry serialises access to the sessions it owns.
type ChatSession struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Preview    string    `json:"preview,omitempty"`
	IsArchived bool      `json:"is_archived"`
}

// NewChatSession creates an empty session with a fresh id.
func NewChatSession(title string) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		ID:        NewSessionID(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddMessage appends a new complete message and returns it.
func (s *ChatSession) AddMessage(role Role, content string) Message {
	return s.Append(NewMessage(role, content))
}

// Append adds an existing message (e.g. a streaming placeholder).
func (s *ChatSession) Append(m Message) Message {
	s.Messages = append(s.Messages, m)
	s.touch()
	s.updatePreview()
	return m
}

// Message returns a pointer to the message with the given id, or nil.
func (s *ChatSession) Message(id string) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// AppendToMessage appends content to the message with the given id.
// It reports false when no such message exists.
func (s *ChatSession) AppendToMessage(id, content string) bool {
	m := s.Message(id)
	if m == nil {
		return false
	}
	m.AppendContent(content)
	s.touch()
	return true
}

// CompleteMessage ends streaming for the message with the given id.
func (s *ChatSession) CompleteMessage(id string) bool {
	m := s.Message(id)
	if m == nil {
		return false
	}
	m.CompleteStreaming()
	s.touch()
	return true
}

// History returns the completed messages, excluding any still streaming.
func (s *ChatSession) History() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.IsStreaming {
			continue
		}
		out = append(out, m)
	}
	return out
}

// SetTitle renames the session.
func (s *ChatSession) SetTitle(title string) {
	s.Title = title
	s.touch()
}

// Archive hides the session from the default listing.
func (s *ChatSession) Archive() {
	s.IsArchived = true
	s.touch()
}

// Unarchive restores an archived session.
func (s *ChatSession) Unarchive() {
	s.IsArchived = false
	s.touch()
}

// Clone returns a deep copy safe for independent mutation.
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

func (s *ChatSession) touch() { s.UpdatedAt = time.Now().UTC() }

func (s *ChatSession) updatePreview() {
	if s.Preview != "" {
		return
	}
	for _, m := range s.Messages {
		if m.Role != RoleUser {
			continue
		}
		s.Preview = truncate(m.Content, previewLength)
		return
	}
}

func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n]) + "..."
}
