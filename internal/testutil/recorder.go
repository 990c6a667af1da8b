package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/chatpipe/core"
)

// Recorder is a concurrency-safe core.EventSink collecting every event.
type Recorder struct {
	mu     sync.Mutex
	events []core.ChatEvent
	err    error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// FailWith makes subsequent Emit calls return err without recording.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// Emit implements core.EventSink.
func (r *Recorder) Emit(ev core.ChatEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of the recorded events.
func (r *Recorder) Events() []core.ChatEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ChatEvent(nil), r.events...)
}

// Chunks returns the recorded response chunks in order.
func (r *Recorder) Chunks() []core.ChatResponseChunk {
	var out []core.ChatResponseChunk
	for _, ev := range r.Events() {
		if c, ok := ev.(core.ChatResponseChunk); ok {
			out = append(out, c)
		}
	}
	return out
}

// Last returns the most recent event or nil.
func (r *Recorder) Last() core.ChatEvent {
	evs := r.Events()
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

// Collect drains ch until every key in want reached its terminal event or
// timeout expires, returning events grouped by key in arrival order.
func Collect(ch <-chan core.ChatEvent, timeout time.Duration, want ...core.DispatchKey) map[core.DispatchKey][]core.ChatEvent {
	out := make(map[core.DispatchKey][]core.ChatEvent, len(want))
	pending := make(map[core.DispatchKey]bool, len(want))
	for _, k := range want {
		pending[k] = true
	}
	deadline := time.After(timeout)
	for len(pending) > 0 {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			k := ev.Key()
			out[k] = append(out[k], ev)
			if ev.IsTerminal() {
				delete(pending, k)
			}
		case <-deadline:
			return out
		}
	}
	return out
}
