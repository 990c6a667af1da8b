// Package chatpipe provides a high-level chat client on top of the dispatch
// pipeline. A Client ties together a backend, the session registry, a
// persistence store and the user's settings:
//  1. Create a Client via New() with a backend (optionally overriding the
//     default in-memory store)
//  2. Start the event loop with Run in its own goroutine
//  3. Create sessions and Send user messages; replies stream into the
//     session's assistant message as they arrive
//
// The Client delegates concurrency, cancellation and event ordering to
// pipeline.Pipeline and keeps conversation bookkeeping concise.
package chatpipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/logging"
	"github.com/hupe1980/chatpipe/pipeline"
	"github.com/hupe1980/chatpipe/session"
	"github.com/hupe1980/chatpipe/store"
)

// Options configures the Client instance.
type Options struct {
	// Pipeline configuration (buffering, admission, timeout)
	PipelineConfig pipeline.Config

	// Store persists sessions and settings. Defaults to an in-memory store.
	Store core.PersistenceStore

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// TracerProvider for per-dispatch spans (defaults to the global provider)
	TracerProvider trace.TracerProvider
}

// Client is the high-level facade aggregating pipeline, registry and store.
type Client struct {
	pipeline *pipeline.Pipeline
	registry *session.Registry
	store    core.PersistenceStore
	logger   logging.Logger

	mu       sync.RWMutex
	settings core.AppSettings
}

// New creates a Client for backend b. Settings are loaded from the store,
// falling back to core.DefaultSettings.
func New(b backend.Backend, optFns ...func(o *Options)) *Client {
	opts := Options{
		PipelineConfig: pipeline.DefaultConfig,
		Store:          store.NewInMemoryStore(),
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	p := pipeline.New(b, func(o *pipeline.Options) {
		o.Config = opts.PipelineConfig
		o.Logger = opts.Logger
		o.TracerProvider = opts.TracerProvider
	})

	settings, err := opts.Store.LoadSettings()
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			opts.Logger.Warn("loading settings failed, using defaults: %v", err)
		}
		settings = core.DefaultSettings()
	}

	return &Client{
		pipeline: p,
		registry: session.NewRegistry(),
		store:    opts.Store,
		logger:   opts.Logger,
		settings: settings,
	}
}

// Registry exposes the session registry.
func (c *Client) Registry() *session.Registry { return c.registry }

// Pipeline exposes the underlying dispatch pipeline.
func (c *Client) Pipeline() *pipeline.Pipeline { return c.pipeline }

// NewSession creates, activates and persists an empty session.
func (c *Client) NewSession(title string) (string, error) {
	id := c.registry.Create(title)
	s, _ := c.registry.Get(id)
	if err := c.store.SaveSession(s); err != nil {
		return id, fmt.Errorf("persist session %s: %w", id, err)
	}
	return id, nil
}

// LoadSessions restores every persisted session into the registry and
// activates the most recent one when none is active. It returns the number
// of sessions loaded.
func (c *Client) LoadSessions() (int, error) {
	sessions, err := c.store.LoadAllSessions()
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for _, s := range sessions {
		c.registry.Put(s)
	}
	if c.registry.ActiveID() == "" {
		if list := c.registry.List(); len(list) > 0 {
			c.registry.SetActive(list[0].ID)
		}
	}
	return len(sessions), nil
}

// DeleteSession removes a session from the registry and the store.
func (c *Client) DeleteSession(id string) error {
	found := c.registry.Delete(id)
	err := c.store.DeleteSession(id)
	if errors.Is(err, core.ErrNotFound) {
		if !found {
			return err
		}
		return nil
	}
	return err
}

// Send appends text as a user message to the session, adds a streaming
// assistant placeholder and submits the conversation. It returns the id of
// the placeholder, which is also the dispatch message id.
func (c *Client) Send(sessionID, text string) (string, *pipeline.CancellationHandle, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, fmt.Errorf("%w: empty message", core.ErrInvalidRequest)
	}
	if c.pipeline.Closed() {
		return "", nil, pipeline.ErrClosed
	}

	settings := c.Settings()
	var req core.ChatRequest
	snapshot, err := c.registry.Update(sessionID, func(s *core.ChatSession) {
		s.AddMessage(core.RoleUser, text)
		history := s.History()
		reply := s.Append(core.NewStreamingMessage(core.RoleAssistant))
		req = core.ChatRequest{
			SessionID:    sessionID,
			MessageID:    reply.ID,
			Messages:     history,
			Model:        settings.Model,
			Temperature:  settings.Temperature,
			SystemPrompt: settings.SystemPrompt,
		}
	})
	if err != nil {
		return "", nil, err
	}
	c.persist(snapshot)

	return req.MessageID, c.pipeline.Submit(req), nil
}

// Cancel requests cancellation of the reply identified by messageID.
func (c *Client) Cancel(sessionID, messageID string) error {
	return c.pipeline.Cancel(sessionID, messageID)
}

// Run drains the pipeline events until ctx is done or the client is
// closed. Each event is applied to its session first, then passed to fn
// (which may be nil). Sessions are persisted on every terminal event.
func (c *Client) Run(ctx context.Context, fn func(ev core.ChatEvent)) error {
	events := c.pipeline.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.apply(ev)
			if fn != nil {
				fn(ev)
			}
		}
	}
}

func (c *Client) apply(ev core.ChatEvent) {
	key := ev.Key()
	snapshot, err := c.registry.Update(key.SessionID, func(s *core.ChatSession) {
		switch ev := ev.(type) {
		case core.ChatResponseChunk:
			s.AppendToMessage(key.MessageID, ev.Content)
			if ev.IsFinal {
				s.CompleteMessage(key.MessageID)
			}
		case core.ChatError:
			if m := s.Message(key.MessageID); m != nil {
				if m.Content != "" {
					m.AppendContent("\n\n")
				}
				m.AppendContent("[error: " + ev.Description + "]")
			}
			s.CompleteMessage(key.MessageID)
		case core.Cancelled:
			s.CompleteMessage(key.MessageID)
		}
	})
	if err != nil {
		c.logger.Debug("event for %s ignored: %v", key, err)
		return
	}
	if ev.IsTerminal() {
		c.persist(snapshot)
	}
}

func (c *Client) persist(s *core.ChatSession) {
	if err := c.store.SaveSession(s); err != nil {
		c.logger.Error("persist session %s: %v", s.ID, err)
	}
}

// Settings returns the current settings.
func (c *Client) Settings() core.AppSettings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// UpdateSettings applies fn to the settings and persists the result.
// Dispatches already submitted keep the settings they were built with.
func (c *Client) UpdateSettings(fn func(s *core.AppSettings)) error {
	c.mu.Lock()
	next := c.settings
	fn(&next)
	c.settings = next
	c.mu.Unlock()

	if err := c.store.SaveSettings(next); err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}
	return nil
}

// Stats returns the pipeline counters.
func (c *Client) Stats() pipeline.Stats { return c.pipeline.Stats() }

// Close stops every in-flight reply, ends Run and persists sessions whose
// replies were cut short.
func (c *Client) Close() error {
	if err := c.pipeline.Close(); err != nil {
		return err
	}
	for _, s := range c.registry.List() {
		streaming := false
		for _, m := range s.Messages {
			if m.IsStreaming {
				streaming = true
				break
			}
		}
		if !streaming {
			continue
		}
		snapshot, err := c.registry.Update(s.ID, func(s *core.ChatSession) {
			for i := range s.Messages {
				s.Messages[i].CompleteStreaming()
			}
		})
		if err == nil {
			c.persist(snapshot)
		}
	}
	return nil
}
