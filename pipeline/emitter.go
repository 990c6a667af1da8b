package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/chatpipe/core"
)

var errNoTerminal = errors.New("backend finished without a terminal event")

// emitter is the EventSink handed to the backend for one dispatch. It
// addresses every event to the dispatch key, forwards it to the shared
// output and guarantees that exactly one terminal event is forwarded.
type emitter struct {
	p   *Pipeline
	ctx context.Context
	req core.ChatRequest

	mu       sync.Mutex
	terminal core.ChatEvent
	chunks   int
}

func newEmitter(ctx context.Context, p *Pipeline, req core.ChatRequest) *emitter {
	return &emitter{p: p, ctx: ctx, req: req}
}

// Emit implements core.EventSink.
func (e *emitter) Emit(ev core.ChatEvent) error {
	if ev == nil {
		return fmt.Errorf("dispatch %s: nil event", e.req.Key())
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminal != nil {
		e.p.logger.Warn("dispatch %s: rejected %T after terminal event", e.req.Key(), ev)
		return ErrDispatchDone
	}

	ev = e.address(ev)

	// A final chunk racing a caller cancellation is delivered as a plain
	// chunk and the dispatch ends with Cancelled.
	if c, ok := ev.(core.ChatResponseChunk); ok && c.IsFinal && errors.Is(e.ctx.Err(), context.Canceled) {
		c.IsFinal = false
		e.forward(c)
		e.forward(e.req.Cancelled())
		return nil
	}

	e.forward(ev)
	return nil
}

func (e *emitter) forward(ev core.ChatEvent) {
	if _, ok := ev.(core.ChatResponseChunk); ok {
		e.chunks++
	}
	if ev.IsTerminal() {
		e.terminal = ev
	}
	e.p.forward(ev)
}

// address rewrites events whose identifiers do not match the dispatch.
func (e *emitter) address(ev core.ChatEvent) core.ChatEvent {
	key := e.req.Key()
	if ev.Key() == key {
		return ev
	}
	e.p.logger.Warn("dispatch %s: backend emitted event for %s, rewriting", key, ev.Key())
	switch ev := ev.(type) {
	case core.ChatResponseChunk:
		return e.req.Chunk(ev.Content, ev.IsFinal)
	case core.ChatError:
		return core.ChatError{SessionID: key.SessionID, MessageID: key.MessageID, Description: ev.Description}
	default:
		return e.req.Cancelled()
	}
}

// settle makes sure the dispatch produced its terminal event once the
// backend returned err.
func (e *emitter) settle(err error) {
	e.mu.Lock()
	done := e.terminal != nil
	e.mu.Unlock()

	if done {
		if err != nil && !errors.Is(err, ErrDispatchDone) {
			e.p.logger.Warn("dispatch %s: backend error after terminal event: %v", e.req.Key(), err)
		}
		return
	}

	var ev core.ChatEvent
	switch ctxErr := e.ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		ev = e.req.Failure(fmt.Errorf("dispatch timed out after %s", e.p.config.DispatchTimeout))
	case ctxErr != nil && (err == nil || errors.Is(err, context.Canceled)):
		ev = e.req.Cancelled()
	case err != nil:
		ev = e.req.Failure(err)
	default:
		ev = e.req.Failure(errNoTerminal)
	}

	e.mu.Lock()
	e.forward(ev)
	e.mu.Unlock()
}

// result returns the terminal event and the number of chunks forwarded.
func (e *emitter) result() (core.ChatEvent, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal, e.chunks
}
