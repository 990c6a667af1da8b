package testutil

import "github.com/hupe1980/chatpipe/core"

// RequestBuilder provides a fluent helper for constructing requests in tests.
// Example:
//
//	req := NewRequestBuilder("s1", "m1").User("hello").Model("gpt-4").Build()
//
// Chain only the parts you need; sensible defaults are applied.
type RequestBuilder struct {
	req core.ChatRequest
}

// NewRequestBuilder creates a builder for the given dispatch key with model
// "test-model" and temperature 0.7.
func NewRequestBuilder(sessionID, messageID string) *RequestBuilder {
	return &RequestBuilder{req: core.ChatRequest{
		SessionID:   sessionID,
		MessageID:   messageID,
		Model:       "test-model",
		Temperature: 0.7,
	}}
}

// User appends a user message (chainable).
func (b *RequestBuilder) User(text string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, core.NewMessage(core.RoleUser, text))
	return b
}

// Assistant appends an assistant message (chainable).
func (b *RequestBuilder) Assistant(text string) *RequestBuilder {
	b.req.Messages = append(b.req.Messages, core.NewMessage(core.RoleAssistant, text))
	return b
}

// Model sets the model identifier (chainable).
func (b *RequestBuilder) Model(m string) *RequestBuilder { b.req.Model = m; return b }

// Temperature sets the sampling temperature (chainable).
func (b *RequestBuilder) Temperature(t float64) *RequestBuilder { b.req.Temperature = t; return b }

// System sets the system prompt (chainable).
func (b *RequestBuilder) System(p string) *RequestBuilder { b.req.SystemPrompt = p; return b }

// Build returns the request.
func (b *RequestBuilder) Build() core.ChatRequest { return b.req.Clone() }
