// Package ollama provides a backend.Backend for a local Ollama server using
// its streaming /api/chat endpoint.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
)

// DefaultURL is where a local Ollama server listens out of the box.
const DefaultURL = "http://localhost:11434"

// Options configure the Ollama backend.
type Options struct {
	Model      string
	URL        string
	HTTPClient *http.Client
}

// Backend streams chat completions from an Ollama server.
type Backend struct {
	client *api.Client
	opts   Options
}

// NewBackend creates a backend for the server at Options.URL.
func NewBackend(optFns ...func(o *Options)) (*Backend, error) {
	opts := Options{
		Model:      "llama3.2",
		URL:        DefaultURL,
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", opts.URL, err)
	}
	return &Backend{client: api.NewClient(u, opts.HTTPClient), opts: opts}, nil
}

// Stream implements backend.Backend.
func (b *Backend) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	chunker := backend.NewChunker(req, sink)
	done := false

	err := b.client.Chat(ctx, b.buildRequest(req), func(resp api.ChatResponse) error {
		if err := chunker.Push(resp.Message.Content); err != nil {
			return err
		}
		if resp.Done {
			done = true
		}
		return nil
	})
	if ctx.Err() != nil {
		return chunker.Interrupt(ctx)
	}
	if err != nil {
		return backend.Abort(req, sink, chunker.Emitted(), fmt.Errorf("ollama streaming error: %w", err))
	}
	if !done {
		return backend.Abort(req, sink, chunker.Emitted(), fmt.Errorf("ollama stream ended before done"))
	}
	return chunker.Finish()
}

func (b *Backend) buildRequest(req core.ChatRequest) *api.ChatRequest {
	model := req.Model
	if model == "" {
		model = b.opts.Model
	}
	stream := true
	return &api.ChatRequest{
		Model:    model,
		Messages: buildMessages(req),
		Stream:   &stream,
		Options:  map[string]any{"temperature": req.Temperature},
	}
}

func buildMessages(req core.ChatRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: string(core.RoleSystem), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: string(m.Role), Content: m.Content})
	}
	return messages
}

// Info returns metadata describing this Ollama backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{Name: b.opts.Model, Provider: "ollama"}
}
