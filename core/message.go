package core

import "time"

// Role is the author of a conversation turn.
type Role string

const (
	// RoleUser marks messages typed by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks messages produced by a backend.
	RoleAssistant Role = "assistant"
	// RoleSystem marks instructions that steer the assistant.
	RoleSystem Role = "system"
)

// Message is one turn of a conversation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// IsStreaming is true while chunks are still being appended.
	IsStreaming bool `json:"is_streaming"`
}

// NewMessage creates a complete message with a fresh id.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// NewStreamingMessage creates an empty message that will be filled by chunks.
func NewStreamingMessage(role Role) Message {
	m := NewMessage(role, "")
	m.IsStreaming = true
	return m
}

// AppendContent appends a streamed fragment.
func (m *Message) AppendContent(content string) { m.Content += content }

// CompleteStreaming marks the message as fully received.
func (m *Message) CompleteStreaming() { m.IsStreaming = false }
