package core

// DispatchKey identifies one in-flight dispatch. Callers guarantee that a key
// is not reused while a dispatch carrying it is still running.
type DispatchKey struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// String returns "session/message".
func (k DispatchKey) String() string { return k.SessionID + "/" + k.MessageID }

// ChatEvent is a closed set of outcomes a dispatched request can produce.
// Concrete event types implement the unexported isChatEvent marker, so the
// only members are ChatResponseChunk, ChatError and Cancelled.
//
// Consumers switch on the concrete type:
//
//	switch ev := ev.(type) {
//	case core.ChatResponseChunk:
//	case core.ChatError:
//	case core.Cancelled:
//	}
type ChatEvent interface {
	// Key returns the session / message pair the event belongs to.
	Key() DispatchKey
	// IsTerminal reports whether the event ends its dispatch.
	IsTerminal() bool

	isChatEvent()
}

// ChatResponseChunk carries one content fragment. Fragments are appended, not
// replaced. IsFinal is set on exactly the last chunk of a dispatch.
type ChatResponseChunk struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	IsFinal   bool   `json:"is_final"`
}

// Key implements ChatEvent.
func (c ChatResponseChunk) Key() DispatchKey {
	return DispatchKey{SessionID: c.SessionID, MessageID: c.MessageID}
}

// IsTerminal implements ChatEvent; only the final chunk is terminal.
func (c ChatResponseChunk) IsTerminal() bool { return c.IsFinal }

func (ChatResponseChunk) isChatEvent() {}

// ChatError reports a failed dispatch. It is terminal and emitted at most
// once per dispatch. ChatError also satisfies the error interface so callers
// can hand it to code expecting one.
type ChatError struct {
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Description string `json:"error"`
}

// Key implements ChatEvent.
func (e ChatError) Key() DispatchKey {
	return DispatchKey{SessionID: e.SessionID, MessageID: e.MessageID}
}

// IsTerminal implements ChatEvent.
func (ChatError) IsTerminal() bool { return true }

func (ChatError) isChatEvent() {}

// Error implements error.
func (e ChatError) Error() string { return e.Description }

// Cancelled reports that a dispatch stopped because cancellation was requested.
// It is a normal terminal outcome, not a failure.
type Cancelled struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// Key implements ChatEvent.
func (c Cancelled) Key() DispatchKey {
	return DispatchKey{SessionID: c.SessionID, MessageID: c.MessageID}
}

// IsTerminal implements ChatEvent.
func (Cancelled) IsTerminal() bool { return true }

func (Cancelled) isChatEvent() {}

// EventSink receives the events of a single dispatch. Emit may block while the
// shared output is full; that suspension is the pipeline's backpressure.
// An error means the event was not delivered and the backend should stop.
type EventSink interface {
	Emit(ev ChatEvent) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ev ChatEvent) error

// Emit implements EventSink.
func (f EventSinkFunc) Emit(ev ChatEvent) error { return f(ev) }
