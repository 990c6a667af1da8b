package backend

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/hupe1980/chatpipe/core"
)

// RateLimited delays dispatches so the wrapped backend sees at most the
// limiter's rate of requests. A dispatch cancelled while waiting for a token
// finishes with Cancelled without reaching the backend.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a token bucket of rps requests per second
// and the given burst.
func NewRateLimited(inner Backend, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Stream implements Backend.
func (r *RateLimited) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return Interrupted(ctx, req, sink)
		}
		return err
	}
	return r.inner.Stream(ctx, req, sink)
}

// Info implements Backend.
func (r *RateLimited) Info() Info { return r.inner.Info() }
