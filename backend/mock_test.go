package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/internal/testutil"
)

var _ Backend = (*MockBackend)(nil)

func TestMockBackend_ScriptedChunks(t *testing.T) {
	b := NewMockBackend(func(o *MockOptions) { o.Chunks = 5 })
	rec := testutil.NewRecorder()
	req := testutil.NewRequestBuilder("s1", "m1").User("hi").Build()

	require.NoError(t, b.Stream(context.Background(), req, rec))

	chunks := rec.Chunks()
	require.Len(t, chunks, 5)
	for i, c := range chunks {
		assert.Equal(t, "chunk "+string(rune('0'+i))+" ", c.Content)
		assert.Equal(t, i == 4, c.IsFinal)
		assert.Equal(t, req.Key(), c.Key())
	}
	assert.Equal(t, 1, b.Calls())
}

func TestMockBackend_TextMode(t *testing.T) {
	b := NewMockBackend()
	b.AddResponse("ping", "pong is here")
	rec := testutil.NewRecorder()

	req := testutil.NewRequestBuilder("s", "m").User("ping").Build()
	require.NoError(t, b.Stream(context.Background(), req, rec))

	var text string
	for _, c := range rec.Chunks() {
		text += c.Content
	}
	assert.Equal(t, "pong is here", text)
	assert.True(t, rec.Chunks()[len(rec.Chunks())-1].IsFinal)

	rec2 := testutil.NewRecorder()
	req2 := testutil.NewRequestBuilder("s", "m2").User("other").Build()
	require.NoError(t, b.Stream(context.Background(), req2, rec2))
	assert.Equal(t, "Mock response to: other", joinChunks(rec2.Chunks()))
}

func TestMockBackend_CancelledBetweenChunks(t *testing.T) {
	b := NewMockBackend(func(o *MockOptions) {
		o.Chunks = 5
		o.Delay = 50 * time.Millisecond
	})
	rec := testutil.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	req := testutil.NewRequestBuilder("s", "m").Build()

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, b.Stream(ctx, req, rec))

	assert.Equal(t, core.Cancelled{SessionID: "s", MessageID: "m"}, rec.Last())
	for _, c := range rec.Chunks() {
		assert.False(t, c.IsFinal)
	}
}

func TestMockBackend_DeadlineIsFailure(t *testing.T) {
	b := NewMockBackend(func(o *MockOptions) {
		o.Chunks = 3
		o.Delay = 50 * time.Millisecond
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := b.Stream(ctx, testutil.NewRequestBuilder("s", "m").Build(), testutil.NewRecorder())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockBackend_FailuresAndSinkErrors(t *testing.T) {
	boom := errors.New("no route to engine")
	b := NewMockBackend(func(o *MockOptions) { o.Err = boom })
	assert.ErrorIs(t, b.Stream(context.Background(), core.ChatRequest{}, testutil.NewRecorder()), boom)

	mid := NewMockBackend(func(o *MockOptions) {
		o.Chunks = 4
		o.FailAfter = 2
	})
	rec := testutil.NewRecorder()
	require.NoError(t, mid.Stream(context.Background(), testutil.NewRequestBuilder("s", "m").Build(), rec))
	assert.Len(t, rec.Chunks(), 2)
	assert.IsType(t, core.ChatError{}, rec.Last())

	closed := errors.New("closed")
	rec3 := testutil.NewRecorder()
	rec3.FailWith(closed)
	err := NewMockBackend(func(o *MockOptions) { o.Chunks = 2 }).Stream(context.Background(), core.ChatRequest{}, rec3)
	assert.ErrorIs(t, err, closed)
}

func TestLastUserText(t *testing.T) {
	req := testutil.NewRequestBuilder("s", "m").User("first").Assistant("reply").User("second").Assistant("x").Build()
	assert.Equal(t, "second", LastUserText(req))
	assert.Empty(t, LastUserText(core.ChatRequest{}))
}

func joinChunks(chunks []core.ChatResponseChunk) string {
	var s string
	for _, c := range chunks {
		s += c.Content
	}
	return s
}
