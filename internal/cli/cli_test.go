package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chatpipe"
	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/internal/config"
	"github.com/hupe1980/chatpipe/store"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "chatpipe.yaml")
	content := "backend:\n  type: mock\nstore:\n  path: " + filepath.Join(dir, "data", "chat.db") + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, in io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	if in != nil {
		root.SetIn(in)
	}
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestChatAndSessionsCmd(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	out, err := execute(t, strings.NewReader("hello\n/quit\n"), "--config", cfgPath, "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Mock response to: hello")

	out, err = execute(t, nil, "--config", cfgPath, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "TITLE")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "hello")
	assert.Contains(t, lines[1], " 2 ")

	id := strings.Fields(lines[1])[0]
	out, err = execute(t, strings.NewReader("/sessions\n/quit\n"), "--config", cfgPath, "chat", "--session", id)
	require.NoError(t, err)
	assert.Contains(t, out, "* "+id)

	_, err = execute(t, nil, "--config", cfgPath, "sessions", "delete", id)
	require.NoError(t, err)
	_, err = execute(t, nil, "--config", cfgPath, "chat", "--session", id)
	require.Error(t, err)
}

func TestChatCmd_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend:\n  type: gemini\n"), 0o600))

	_, err := execute(t, nil, "--config", path, "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.type")
}

func TestRepl_InterruptCancelsReplyThenExits(t *testing.T) {
	client := chatpipe.New(backend.NewMockBackend(func(o *backend.MockOptions) {
		o.Chunks = 1000
		o.Delay = 5 * time.Millisecond
	}))
	t.Cleanup(func() { _ = client.Close() })

	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	out := &syncBuffer{}
	interrupts := make(chan os.Signal, 1)
	r := &repl{client: client, in: pr, out: out, interrupts: interrupts}

	done := make(chan error, 1)
	go func() { done <- r.run(context.Background(), "") }()

	_, err := pw.Write([]byte("count\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "chunk 0 ") }, 2*time.Second, 5*time.Millisecond)

	interrupts <- os.Interrupt
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "[cancelled]") }, 2*time.Second, 5*time.Millisecond)

	interrupts <- os.Interrupt
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("repl did not exit on interrupt at the prompt")
	}
	assert.Equal(t, uint64(1), client.Stats().Cancelled)
}

func TestRepl_Commands(t *testing.T) {
	client := chatpipe.New(backend.NewMockBackend())
	t.Cleanup(func() { _ = client.Close() })

	out := &syncBuffer{}
	r := &repl{client: client, in: strings.NewReader("/new\n/help\n/open nope\n/quit\n"), out: out, interrupts: make(chan os.Signal)}
	require.NoError(t, r.run(context.Background(), ""))

	assert.Contains(t, out.String(), "started session")
	assert.Contains(t, out.String(), "commands:")
	assert.Contains(t, out.String(), "error: session nope")
	assert.Equal(t, 2, client.Registry().Len())
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		typ      string
		provider string
	}{
		{"openai", "openai"},
		{"anthropic", "anthropic"},
		{"ollama", "ollama"},
		{"mock", "mock"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			b, err := newBackend(config.BackendConfig{Type: tt.typ, APIKey: "k"}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.provider, b.Info().Provider)
		})
	}

	_, err := newBackend(config.BackendConfig{Type: "gemini"}, nil)
	require.Error(t, err)

	b, err := newBackend(config.BackendConfig{Type: "mock", RateLimit: 5}, nil)
	require.NoError(t, err)
	assert.IsType(t, &backend.RateLimited{}, b)

	cfg := config.BackendConfig{Type: "mock"}
	cfg.Breaker.Enabled = true
	b, err = newBackend(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &backend.CircuitBreaker{}, b)
}

func TestOpenStore(t *testing.T) {
	st, closeFn, err := openStore("")
	require.NoError(t, err)
	assert.IsType(t, &store.InMemoryStore{}, st)
	require.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "nested", "dir", "chat.db")
	st, closeFn, err = openStore(path)
	require.NoError(t, err)
	assert.IsType(t, &store.SQLiteStore{}, st)
	require.NoError(t, closeFn())
	assert.FileExists(t, path)
}
