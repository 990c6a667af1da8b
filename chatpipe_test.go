package chatpipe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/pipeline"
	"github.com/hupe1980/chatpipe/store"
)

const waitFor = 2 * time.Second

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	args := m.Called(ctx, req, sink)
	return args.Error(0)
}

func (m *mockBackend) Info() backend.Info {
	return backend.Info{Name: "mock", Provider: "testify"}
}

// startRun runs the client's event loop and returns a channel mirroring
// every applied event.
func startRun(t *testing.T, c *Client) <-chan core.ChatEvent {
	t.Helper()
	out := make(chan core.ChatEvent, 256)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), func(ev core.ChatEvent) { out <- ev }) }()
	t.Cleanup(func() {
		_ = c.Close()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("Run did not return after Close")
		}
	})
	return out
}

func waitTerminal(t *testing.T, events <-chan core.ChatEvent, messageID string) core.ChatEvent {
	t.Helper()
	timeout := time.After(waitFor)
	for {
		select {
		case ev := <-events:
			if ev.Key().MessageID == messageID && ev.IsTerminal() {
				return ev
			}
		case <-timeout:
			t.Fatalf("no terminal event for %s", messageID)
			return nil
		}
	}
}

func TestClient_SendStreamsReplyIntoSession(t *testing.T) {
	mb := backend.NewMockBackend()
	mb.AddResponse("hello", "Hi there friend")
	st := store.NewInMemoryStore()
	c := New(mb, func(o *Options) { o.Store = st })
	events := startRun(t, c)

	sid, err := c.NewSession("greeting")
	require.NoError(t, err)

	mid, h, err := c.Send(sid, "hello")
	require.NoError(t, err)
	assert.Equal(t, mid, h.Key().MessageID)

	ev := waitTerminal(t, events, mid)
	assert.Equal(t, core.ChatResponseChunk{SessionID: sid, MessageID: mid, Content: "friend", IsFinal: true}, ev)

	s, ok := c.Registry().Get(sid)
	require.True(t, ok)
	require.Len(t, s.Messages, 2)
	assert.Equal(t, core.RoleUser, s.Messages[0].Role)
	assert.Equal(t, "Hi there friend", s.Messages[1].Content)
	assert.False(t, s.Messages[1].IsStreaming)
	assert.Equal(t, "hello", s.Preview)

	require.Eventually(t, func() bool {
		saved, err := st.LoadSession(sid)
		return err == nil && len(saved.Messages) == 2 && !saved.Messages[1].IsStreaming
	}, waitFor, 5*time.Millisecond)
}

func TestClient_RequestCarriesSettingsAndHistory(t *testing.T) {
	mb := &mockBackend{}
	mb.On("Stream", mock.Anything, mock.MatchedBy(func(req core.ChatRequest) bool {
		return req.Model == "gpt-x" &&
			req.SystemPrompt == "be terse" &&
			req.Temperature == 0.2 &&
			len(req.Messages) == 1 &&
			req.Messages[0].Content == "ping"
	}), mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(1).(core.ChatRequest)
		_ = args.Get(2).(core.EventSink).Emit(req.Chunk("pong", true))
	}).Return(nil).Once()

	c := New(mb)
	events := startRun(t, c)
	require.NoError(t, c.UpdateSettings(func(s *core.AppSettings) {
		s.Model = "gpt-x"
		s.SystemPrompt = "be terse"
		s.Temperature = 0.2
	}))

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	mid, _, err := c.Send(sid, "ping")
	require.NoError(t, err)

	waitTerminal(t, events, mid)
	mb.AssertExpectations(t)
}

func TestClient_BackendErrorRecordedOnMessage(t *testing.T) {
	c := New(backend.NewMockBackend(func(o *backend.MockOptions) { o.Err = errors.New("quota exceeded") }))
	events := startRun(t, c)

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	mid, _, err := c.Send(sid, "hi")
	require.NoError(t, err)

	ev := waitTerminal(t, events, mid)
	assert.IsType(t, core.ChatError{}, ev)

	s, _ := c.Registry().Get(sid)
	reply := s.Message(mid)
	require.NotNil(t, reply)
	assert.Equal(t, "[error: quota exceeded]", reply.Content)
	assert.False(t, reply.IsStreaming)
	assert.Equal(t, uint64(1), c.Stats().Failed)
}

func TestClient_CancelKeepsPartialReply(t *testing.T) {
	c := New(backend.NewMockBackend(func(o *backend.MockOptions) {
		o.Chunks = 100
		o.Delay = 10 * time.Millisecond
	}))
	events := startRun(t, c)

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	mid, _, err := c.Send(sid, "count")
	require.NoError(t, err)

	select {
	case <-events:
	case <-time.After(waitFor):
		t.Fatal("no chunk")
	}
	require.NoError(t, c.Cancel(sid, mid))

	ev := waitTerminal(t, events, mid)
	assert.Equal(t, core.Cancelled{SessionID: sid, MessageID: mid}, ev)

	s, _ := c.Registry().Get(sid)
	reply := s.Message(mid)
	require.NotNil(t, reply)
	assert.Contains(t, reply.Content, "chunk 0 ")
	assert.False(t, reply.IsStreaming)
}

func TestClient_SendValidation(t *testing.T) {
	c := New(backend.NewMockBackend())
	t.Cleanup(func() { _ = c.Close() })

	_, _, err := c.Send("missing", "hi")
	assert.ErrorIs(t, err, core.ErrNotFound)

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	_, _, err = c.Send(sid, "   ")
	assert.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestClient_LoadSessions(t *testing.T) {
	st := store.NewInMemoryStore()
	older := core.NewChatSession("older")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := core.NewChatSession("newer")
	require.NoError(t, st.SaveSession(older))
	require.NoError(t, st.SaveSession(newer))

	settings := core.DefaultSettings()
	settings.Model = "saved-model"
	require.NoError(t, st.SaveSettings(settings))

	c := New(backend.NewMockBackend(), func(o *Options) { o.Store = st })
	t.Cleanup(func() { _ = c.Close() })

	n, err := c.LoadSessions()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, newer.ID, c.Registry().ActiveID())
	assert.Equal(t, "saved-model", c.Settings().Model)
}

func TestClient_DeleteSession(t *testing.T) {
	st := store.NewInMemoryStore()
	c := New(backend.NewMockBackend(), func(o *Options) { o.Store = st })
	t.Cleanup(func() { _ = c.Close() })

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	require.NoError(t, c.DeleteSession(sid))

	_, err = st.LoadSession(sid)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, c.DeleteSession(sid), core.ErrNotFound)
}

func TestClient_CloseCompletesInFlightReplies(t *testing.T) {
	st := store.NewInMemoryStore()
	c := New(backend.NewMockBackend(func(o *backend.MockOptions) {
		o.Chunks = 1000
		o.Delay = 5 * time.Millisecond
	}), func(o *Options) { o.Store = st })

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), nil) }()

	sid, err := c.NewSession("t")
	require.NoError(t, err)
	mid, h, err := c.Send(sid, "go")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Run did not return")
	}
	assert.True(t, h.Finished())

	saved, err := st.LoadSession(sid)
	require.NoError(t, err)
	reply := saved.Message(mid)
	require.NotNil(t, reply)
	assert.False(t, reply.IsStreaming)

	_, _, err = c.Send(sid, "again")
	assert.ErrorIs(t, err, pipeline.ErrClosed)
}
