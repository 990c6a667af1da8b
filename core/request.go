package core

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when a ChatRequest lacks the identifiers
// required to route its events.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatRequest describes one outgoing conversational turn. SessionID and
// MessageID are assigned by the caller and together identify the dispatch.
// A request is treated as immutable once submitted.
type ChatRequest struct {
	SessionID    string    `json:"session_id"`
	MessageID    string    `json:"message_id"`
	Messages     []Message `json:"messages"`
	Model        string    `json:"model"`
	Temperature  float64   `json:"temperature"`
	SystemPrompt string    `json:"system_prompt,omitempty"` // empty means none
}

// Key returns the dispatch key of the request.
func (r ChatRequest) Key() DispatchKey {
	return DispatchKey{SessionID: r.SessionID, MessageID: r.MessageID}
}

// Validate checks structural well-formedness only. Uniqueness of keys among
// in-flight requests is the caller's responsibility.
func (r ChatRequest) Validate() error {
	if r.SessionID == "" {
		return fmt.Errorf("%w: missing session id", ErrInvalidRequest)
	}
	if r.MessageID == "" {
		return fmt.Errorf("%w: missing message id", ErrInvalidRequest)
	}
	return nil
}

// Clone returns a copy whose message slice does not alias the original.
func (r ChatRequest) Clone() ChatRequest {
	c := r
	if r.Messages != nil {
		c.Messages = make([]Message, len(r.Messages))
		copy(c.Messages, r.Messages)
	}
	return c
}

// Chunk builds a response chunk addressed to this request.
func (r ChatRequest) Chunk(content string, final bool) ChatResponseChunk {
	return ChatResponseChunk{SessionID: r.SessionID, MessageID: r.MessageID, Content: content, IsFinal: final}
}

// Cancelled builds the cancellation event for this request.
func (r ChatRequest) Cancelled() Cancelled {
	return Cancelled{SessionID: r.SessionID, MessageID: r.MessageID}
}

// Failure builds an error event for this request from err.
func (r ChatRequest) Failure(err error) ChatError {
	desc := "unknown error"
	if err != nil && err.Error() != "" {
		desc = err.Error()
	}
	return ChatError{SessionID: r.SessionID, MessageID: r.MessageID, Description: desc}
}
