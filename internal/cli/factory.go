package cli

import (
	"fmt"
	"os"
	"path/filepath"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/chatpipe"
	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/backend/anthropic"
	"github.com/hupe1980/chatpipe/backend/ollama"
	"github.com/hupe1980/chatpipe/backend/openai"
	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/internal/config"
	"github.com/hupe1980/chatpipe/logging"
	"github.com/hupe1980/chatpipe/store"
)

// newBackend builds the configured backend and wraps it with the rate
// limiter and circuit breaker when enabled.
func newBackend(cfg config.BackendConfig, logger logging.Logger) (backend.Backend, error) {
	var b backend.Backend
	switch cfg.Type {
	case "openai":
		b = openai.NewBackend(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.URL
		})
	case "anthropic":
		b = anthropic.NewBackend(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.URL
		})
	case "ollama":
		ob, err := ollama.NewBackend(func(o *ollama.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			if cfg.URL != "" {
				o.URL = cfg.URL
			}
		})
		if err != nil {
			return nil, err
		}
		b = ob
	case "mock", "":
		b = backend.NewMockBackend()
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}

	if cfg.RateLimit > 0 {
		b = backend.NewRateLimited(b, cfg.RateLimit, cfg.Burst)
	}
	if cfg.Breaker.Enabled {
		b = backend.NewCircuitBreaker(b, cfg.Breaker.BreakerConfig, logger)
	}
	return b, nil
}

// openStore opens the SQLite database at path, or an in-memory store when
// path is empty. The returned close function is never nil.
func openStore(path string) (core.PersistenceStore, func() error, error) {
	if path == "" {
		return store.NewInMemoryStore(), func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, nil, err
	}
	return st, st.Close, nil
}

// newClient assembles a chatpipe.Client from the loaded configuration and
// restores persisted sessions. Chat overrides from the configuration are
// applied to the settings.
func (a *app) newClient(b backend.Backend) (*chatpipe.Client, func() error, error) {
	st, closeStore, err := openStore(a.cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	client := chatpipe.New(b, func(o *chatpipe.Options) {
		o.PipelineConfig = a.cfg.Pipeline
		o.Store = st
		o.Logger = a.logger.WithComponent("chatpipe")
	})

	if _, err := client.LoadSessions(); err != nil {
		_ = client.Close()
		_ = closeStore()
		return nil, nil, err
	}

	chat := a.cfg.Chat
	model := chat.Model
	if model == "" {
		model = a.cfg.Backend.Model
	}
	// The stock settings name an OpenAI model; other backends use their own default.
	if model == "" && a.cfg.Backend.Type != "openai" && client.Settings().Model == core.DefaultSettings().Model {
		model = b.Info().Name
	}
	if model != "" || chat.Temperature != nil || chat.SystemPrompt != "" {
		err := client.UpdateSettings(func(s *core.AppSettings) {
			if model != "" {
				s.Model = model
			}
			if chat.Temperature != nil {
				s.Temperature = *chat.Temperature
			}
			if chat.SystemPrompt != "" {
				s.SystemPrompt = chat.SystemPrompt
			}
		})
		if err != nil {
			a.logger.Warn("saving settings: %v", err)
		}
	}

	cleanup := func() error {
		err := client.Close()
		if cerr := closeStore(); err == nil {
			err = cerr
		}
		return err
	}
	return client, cleanup, nil
}
