// Package anthropic provides a backend.Backend for the Anthropic Claude
// Messages API using its server-sent event stream.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
)

// Options configures the Anthropic backend (model id, max tokens, API key).
// Model is used when a request leaves its model empty.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
	BaseURL   string
}

// Backend wraps the Anthropic Messages API behind backend.Backend.
type Backend struct {
	client *anthropic.Client
	opts   Options
}

// NewBackend creates a new Anthropic backend using the official client. The
// API key falls back to the ANTHROPIC_API_KEY environment variable.
func NewBackend(optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a new Anthropic backend from an existing client
func NewBackendFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:     anthropic.ModelClaude3_5Sonnet20241022,
		MaxTokens: 4096,
	}
}

// Stream implements backend.Backend. Only text deltas are forwarded; the
// message_stop event (or the end of the stream) finishes the dispatch.
func (b *Backend) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	stream := b.client.Messages.NewStreaming(ctx, b.buildParams(req))
	defer stream.Close()

	chunker := backend.NewChunker(req, sink)
	for stream.Next() {
		if ctx.Err() != nil {
			return chunker.Interrupt(ctx)
		}
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := chunker.Push(delta.Text); err != nil {
					return err
				}
			}
		case anthropic.MessageStopEvent:
			return chunker.Finish()
		}
	}
	if ctx.Err() != nil {
		return chunker.Interrupt(ctx)
	}
	if err := stream.Err(); err != nil {
		return backend.Abort(req, sink, chunker.Emitted(), fmt.Errorf("anthropic streaming error: %w", err))
	}
	return chunker.Finish()
}

func (b *Backend) buildParams(req core.ChatRequest) anthropic.MessageNewParams {
	model := b.opts.Model
	if req.Model != "" {
		model = anthropic.Model(req.Model)
	}
	params := anthropic.MessageNewParams{
		Model:       model,
		Messages:    buildMessages(req),
		MaxTokens:   b.opts.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if system := extractSystem(req); len(system) > 0 {
		params.System = system
	}
	return params
}

// buildMessages converts the conversation to Anthropic message format.
// System messages are carried separately, see extractSystem.
func buildMessages(req core.ChatRequest) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return messages
}

// extractSystem collects the system prompt and any system-role messages.
func extractSystem(req core.ChatRequest) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.SystemPrompt != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// Info returns metadata describing this Anthropic backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{Name: string(b.opts.Model), Provider: "anthropic"}
}
