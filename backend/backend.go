package backend

import (
	"context"
	"errors"

	"github.com/hupe1980/chatpipe/core"
)

// Info contains metadata about a backend implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", "mock", ...
}

// Backend is the capability any conversational engine must provide.
//
// Stream runs req to completion, emitting events on sink in production order:
//   - zero or more non-final ChatResponseChunk values,
//   - then exactly one terminal event: a final chunk (IsFinal=true), a
//     ChatError for failures detected mid-stream, or Cancelled.
//
// Cancellation is signalled by ctx. Implementations must check ctx at least
// between emitted chunks and, once it is done, stop producing chunks and
// finish with Interrupted. The pipeline never preempts a backend, so a
// backend that ignores ctx cannot be cancelled.
//
// A returned error means the request could not run at all (configuration,
// connectivity, protocol violation) and no terminal event was emitted; the
// pipeline converts it into a single ChatError. An error from sink.Emit must
// be returned as is.
type Backend interface {
	Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error

	// Info returns information about the backend implementation.
	Info() Info
}

// Interrupted finishes a dispatch whose context is done. Caller cancellation
// emits Cancelled; an expired deadline is returned as an error so the
// pipeline reports it as a failure.
func Interrupted(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	return sink.Emit(req.Cancelled())
}

// LastUserText returns the content of the most recent user message in req.
func LastUserText(req core.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
