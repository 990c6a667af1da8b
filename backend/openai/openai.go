// Package openai provides an implementation of backend.Backend using the
// OpenAI Chat Completions streaming API. It adapts chatpipe's ChatRequest into
// the SDK's message format and the streamed deltas back into chunks.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
)

// Options configure the OpenAI backend.
// Model is used when a request leaves its model empty.
type Options struct {
	Model               string
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
}

// Backend wraps the OpenAI Chat Completions API behind backend.Backend.
type Backend struct {
	client *openai.Client
	opts   Options
}

// NewBackend creates a new OpenAI backend using the official client. The API
// key falls back to the OPENAI_API_KEY environment variable.
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
	client := openai.NewClient(clientOpts...)
	return &Backend{client: &client, opts: opts}
}

// NewBackendFromClient creates a new OpenAI backend from an existing client.
func NewBackendFromClient(client *openai.Client, optFns ...func(o *Options)) *Backend {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Backend{client: client, opts: opts}
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		MaxCompletionTokens: 4096,
	}
}

// Stream implements backend.Backend.
func (b *Backend) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	stream := b.client.Chat.Completions.NewStreaming(ctx, b.buildParams(req))
	defer stream.Close()

	chunker := backend.NewChunker(req, sink)
	for stream.Next() {
		if ctx.Err() != nil {
			return chunker.Interrupt(ctx)
		}
		ck := stream.Current()
		for _, ch := range ck.Choices {
			if ch.Index != 0 {
				continue
			}
			if err := chunker.Push(ch.Delta.Content); err != nil {
				return err
			}
		}
	}
	if ctx.Err() != nil {
		return chunker.Interrupt(ctx)
	}
	if err := stream.Err(); err != nil {
		return backend.Abort(req, sink, chunker.Emitted(), fmt.Errorf("openai streaming error: %w", err))
	}
	return chunker.Finish()
}

// buildParams assembles the OpenAI request parameters.
func (b *Backend) buildParams(req core.ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = b.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:    buildMessages(req),
		Model:       model,
		Temperature: openai.Float(req.Temperature),
	}
	if b.opts.MaxCompletionTokens > 0 {
		params.MaxCompletionTokens = openai.Int(b.opts.MaxCompletionTokens)
	}
	return params
}

// buildMessages converts the request history into OpenAI chat messages,
// leading with the system prompt when present.
func buildMessages(req core.ChatRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case core.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}
	return messages
}

// Info returns metadata describing this OpenAI backend.
func (b *Backend) Info() backend.Info {
	return backend.Info{Name: b.opts.Model, Provider: "openai"}
}
