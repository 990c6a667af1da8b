package pipeline

import (
	"context"

	"github.com/hupe1980/chatpipe/core"
)

// CancellationHandle lets the submitter stop one dispatch early.
// It is safe for concurrent use.
type CancellationHandle struct {
	key    core.DispatchKey
	cancel context.CancelFunc
	done   chan struct{}
}

func newHandle(key core.DispatchKey, cancel context.CancelFunc) *CancellationHandle {
	return &CancellationHandle{key: key, cancel: cancel, done: make(chan struct{})}
}

// Cancel requests termination of the dispatch. Calling it more than once, or
// after the dispatch finished, has no effect.
func (h *CancellationHandle) Cancel() { h.cancel() }

// Key returns the session / message pair of the dispatch.
func (h *CancellationHandle) Key() core.DispatchKey { return h.key }

// Done is closed once the dispatch task has finished and its terminal
// event has been forwarded (or dropped).
func (h *CancellationHandle) Done() <-chan struct{} { return h.done }

// Finished reports whether Done is closed.
func (h *CancellationHandle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
