package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/logging"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// errStreamFailed marks a dispatch whose backend reported a ChatError event.
// It only travels through the breaker so that mid-stream failures count.
var errStreamFailed = errors.New("stream reported error")

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `mapstructure:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `mapstructure:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `mapstructure:"interval"`
}

// CircuitBreaker wraps a Backend with circuit breaker protection. When the
// wrapped backend fails repeatedly the circuit opens and subsequent
// dispatches fail fast without reaching it.
type CircuitBreaker struct {
	inner   Backend
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewCircuitBreaker wraps inner. Zero config fields fall back to defaults.
func NewCircuitBreaker(inner Backend, cfg BreakerConfig, logger logging.Logger) *CircuitBreaker {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "backend:" + inner.Info().Name,
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker %s changed state from %s to %s", name, from.String(), to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &CircuitBreaker{inner: inner, breaker: cb}
}

// Stream implements Backend. Both returned errors and ChatError events count
// as failures; cancellation counts as success.
func (b *CircuitBreaker) Stream(ctx context.Context, req core.ChatRequest, sink core.EventSink) error {
	_, err := b.breaker.Execute(func() (struct{}, error) {
		failed := false
		watch := core.EventSinkFunc(func(ev core.ChatEvent) error {
			if _, ok := ev.(core.ChatError); ok {
				failed = true
			}
			return sink.Emit(ev)
		})
		if err := b.inner.Stream(ctx, req, watch); err != nil {
			return struct{}{}, err
		}
		if failed {
			return struct{}{}, errStreamFailed
		}
		return struct{}{}, nil
	})
	switch {
	case err == nil, errors.Is(err, errStreamFailed):
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return fmt.Errorf("backend %q circuit open: %w", b.inner.Info().Name, err)
	default:
		return err
	}
}

// Info implements Backend.
func (b *CircuitBreaker) Info() Info { return b.inner.Info() }

// State returns the current circuit breaker state for monitoring.
func (b *CircuitBreaker) State() gobreaker.State { return b.breaker.State() }
