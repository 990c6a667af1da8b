// Package backend defines the provider-agnostic contract every conversational
// engine implements, plus helpers shared by the concrete engines.
//
// Core goals:
//   - One method turns a core.ChatRequest into a stream of core.ChatEvent values
//   - Cancellation is cooperative and observed through the context
//   - Deterministic test double (MockBackend) for pipeline verification
//   - Decorators (CircuitBreaker, RateLimited) compose around any Backend
//
// Live engines live in sub-packages (openai, anthropic, ollama) so the
// pipeline stays decoupled from vendor SDKs.
package backend
