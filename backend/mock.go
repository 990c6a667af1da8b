package backend

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/chatpipe/core"
)

// MockOptions configure a MockBackend.
type MockOptions struct {
	// Chunks switches the mock to scripted mode: it emits Chunks fragments
	// "chunk 0 " ... "chunk N-1 ", the last one final. Zero selects text mode,
	// which streams the registered (or echoed) response word by word.
	Chunks int
	// Delay is the spacing between emitted chunks.
	Delay time.Duration
	// Err, when set, is returned before anything is emitted.
	Err error
	// FailAfter emits a ChatError instead of chunk FailAfter when >= 0.
	FailAfter int
	// IgnoreCancel makes the mock never look at its context.
	IgnoreCancel bool
}

// MockBackend is a deterministic in-memory Backend useful for tests & examples.
type MockBackend struct {
	info      Info
	opts      MockOptions
	mu        sync.RWMutex
	responses map[string]string
	calls     atomic.Int64
}

// NewMockBackend constructs a MockBackend in text mode unless configured otherwise.
func NewMockBackend(optFns ...func(o *MockOptions)) *MockBackend {
	opts := MockOptions{FailAfter: -1}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &MockBackend{
		info:      Info{Name: "mock", Provider: "mock"},
		opts:      opts,
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion for an input prompt (text mode).
func (m *MockBackend) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Calls returns how many times Stream was invoked.
func (m *MockBackend) Calls() int { return int(m.calls.Load()) }

// Stream implements Backend.
func (m *MockBackend) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	m.calls.Add(1)
	if m.opts.Err != nil {
		return m.opts.Err
	}

	fragments := m.script(req)
	for i, frag := range fragments {
		if !m.opts.IgnoreCancel && ctx.Err() != nil {
			return Interrupted(ctx, req, sink)
		}
		if i == m.opts.FailAfter {
			return sink.Emit(req.Failure(fmt.Errorf("mock failure after %d chunks", i)))
		}
		last := i == len(fragments)-1
		if err := sink.Emit(req.Chunk(frag, last)); err != nil {
			return err
		}
		if last {
			return nil
		}
		if err := m.wait(ctx); err != nil {
			return Interrupted(ctx, req, sink)
		}
	}
	return nil
}

func (m *MockBackend) wait(ctx context.Context) error {
	if m.opts.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(m.opts.Delay)
	defer t.Stop()
	if m.opts.IgnoreCancel {
		<-t.C
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// script returns at least one fragment so that a final chunk is always emitted.
func (m *MockBackend) script(req core.ChatRequest) []string {
	if m.opts.Chunks > 0 {
		out := make([]string, m.opts.Chunks)
		for i := range out {
			out[i] = fmt.Sprintf("chunk %d ", i)
		}
		return out
	}

	input := LastUserText(req)
	m.mu.RLock()
	full, ok := m.responses[input]
	m.mu.RUnlock()
	if !ok {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	words := strings.SplitAfter(full, " ")
	if len(words) == 0 {
		return []string{""}
	}
	return words
}

// Info implements Backend.
func (m *MockBackend) Info() Info { return m.info }
