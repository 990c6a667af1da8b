package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/chatpipe/backend"
	"github.com/hupe1980/chatpipe/core"
	"github.com/hupe1980/chatpipe/internal/telemetry"
	"github.com/hupe1980/chatpipe/logging"
)

var (
	// ErrClosed is returned by operations on a closed pipeline.
	ErrClosed = errors.New("pipeline closed")
	// ErrDispatchDone is returned to a backend that emits after its
	// dispatch already reached a terminal event.
	ErrDispatchDone = errors.New("dispatch already terminated")
	// ErrUnknownDispatch is returned by Cancel for keys that are not in flight.
	ErrUnknownDispatch = errors.New("unknown dispatch")
)

// Config defines tuning parameters of a Pipeline.
//
// Example:
//
//	cfg := Config{
//	    EventBufferSize:         256,
//	    MaxConcurrentDispatches: 8,
//	    DispatchTimeout:         2 * time.Minute,
//	}
type Config struct {
	// EventBufferSize is the capacity of the shared events channel. A full
	// channel blocks dispatch tasks until the consumer catches up.
	EventBufferSize int `mapstructure:"buffer_size"`

	// MaxConcurrentDispatches limits how many backends run at once. Excess
	// dispatches wait inside their task; Submit never blocks. 0 = unlimited.
	MaxConcurrentDispatches int `mapstructure:"max_concurrent"`

	// DispatchTimeout bounds a single dispatch. An expired deadline is
	// reported as a ChatError. 0 disables the timeout.
	DispatchTimeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig provides the default pipeline configuration.
//
//   - EventBufferSize: 100
//   - MaxConcurrentDispatches: 0 (unlimited)
//   - DispatchTimeout: 0 (none)
var DefaultConfig = Config{
	EventBufferSize: 100,
}

// Options configures a Pipeline using the functional options pattern.
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Logger receives dispatch diagnostics. Defaults to logging.NoOpLogger.
	// A *logging.ChatLogger additionally records one structured entry per
	// finished dispatch.
	Logger logging.Logger

	// TracerProvider creates one span per dispatch. Defaults to the global
	// OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Cancelled uint64 `json:"cancelled"`
	Dropped   uint64 `json:"dropped"`
	Active    int    `json:"active"`
}

// Pipeline runs chat requests against a backend, one task per request, and
// multiplexes their events onto a single channel.
//
// All methods are safe for concurrent use.
type Pipeline struct {
	backend backend.Backend
	config  Config
	logger  logging.Logger
	tracer  trace.Tracer
	sem     *semaphore.Weighted

	events  chan core.ChatEvent
	root    context.Context
	stop    context.CancelFunc
	closing chan struct{}
	wg      sync.WaitGroup

	mu        sync.RWMutex
	closed    bool
	active    map[core.DispatchKey]*CancellationHandle
	closeOnce sync.Once

	running   atomic.Int64
	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	cancelled atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a Pipeline bound to b.
//
//	p := pipeline.New(backend.NewMockBackend(), func(o *pipeline.Options) {
//	    o.Config.DispatchTimeout = time.Minute
//	    o.Logger = logger
//	})
func New(b backend.Backend, optFns ...func(o *Options)) *Pipeline {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Config.EventBufferSize < 1 {
		opts.Config.EventBufferSize = DefaultConfig.EventBufferSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	root, stop := context.WithCancel(context.Background())
	p := &Pipeline{
		backend: b,
		config:  opts.Config,
		logger:  opts.Logger,
		tracer:  telemetry.Tracer(opts.TracerProvider),
		events:  make(chan core.ChatEvent, opts.Config.EventBufferSize),
		root:    root,
		stop:    stop,
		closing: make(chan struct{}),
		active:  make(map[core.DispatchKey]*CancellationHandle),
	}
	if opts.Config.MaxConcurrentDispatches > 0 {
		p.sem = semaphore.NewWeighted(int64(opts.Config.MaxConcurrentDispatches))
	}
	return p
}

// Submit starts a dispatch for req and returns its cancellation handle
// without waiting for any event. Submit never fails: malformed requests end
// with a ChatError and requests submitted after Close are dropped.
//
// The caller guarantees that no two in-flight requests share a session /
// message id pair.
func (p *Pipeline) Submit(req core.ChatRequest) *CancellationHandle {
	req = req.Clone()
	key := req.Key()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if p.config.DispatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(p.root, p.config.DispatchTimeout)
	} else {
		ctx, cancel = context.WithCancel(p.root)
	}
	h := newHandle(key, cancel)
	p.submitted.Add(1)

	invalid := req.Validate()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		cancel()
		close(h.done)
		p.dropped.Add(1)
		p.logger.Warn("pipeline closed, dropping dispatch %s", key)
		return h
	}
	if invalid == nil {
		if _, dup := p.active[key]; dup {
			p.logger.Warn("dispatch %s submitted while already in flight", key)
		}
		p.active[key] = h
	}
	p.wg.Add(1)
	p.running.Add(1)
	p.mu.Unlock()

	go p.run(ctx, req, h, invalid)
	return h
}

// Events returns the shared output of all dispatches. It is closed by Close.
func (p *Pipeline) Events() <-chan core.ChatEvent { return p.events }

// Cancel cancels the in-flight dispatch identified by the given ids.
func (p *Pipeline) Cancel(sessionID, messageID string) error {
	key := core.DispatchKey{SessionID: sessionID, MessageID: messageID}

	p.mu.RLock()
	closed := p.closed
	h, ok := p.active[key]
	p.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDispatch, key)
	}
	h.Cancel()
	return nil
}

// Closed reports whether Close has been called.
func (p *Pipeline) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Active returns the number of dispatches whose task is still running.
func (p *Pipeline) Active() int { return int(p.running.Load()) }

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Cancelled: p.cancelled.Load(),
		Dropped:   p.dropped.Load(),
		Active:    p.Active(),
	}
}

// Close cancels every in-flight dispatch, waits for their tasks to finish
// and closes Events. Events that cannot be delivered during shutdown are
// dropped. Close is idempotent.
func (p *Pipeline) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.stop()
		close(p.closing)
		p.wg.Wait()
		close(p.events)
		p.logger.Debug("pipeline closed")
	})
	return nil
}

func (p *Pipeline) run(ctx context.Context, req core.ChatRequest, h *CancellationHandle, invalid error) {
	defer p.wg.Done()
	defer close(h.done)
	defer p.untrack(h)
	defer h.cancel()

	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "chatpipe.dispatch",
		trace.WithAttributes(telemetry.DispatchAttrs(req.SessionID, req.MessageID, p.model(req))...),
	)
	defer span.End()

	em := newEmitter(ctx, p, req)
	err := invalid
	if err == nil {
		err = p.invoke(ctx, req, em)
	}
	em.settle(err)

	p.finish(span, req, em, time.Since(start))
}

// invoke runs the backend, waiting for an admission slot first when a
// concurrency ceiling is configured. Backend panics become errors.
func (p *Pipeline) invoke(ctx context.Context, req core.ChatRequest, sink core.EventSink) (err error) {
	if p.sem != nil {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer p.sem.Release(1)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return p.backend.Stream(ctx, req, sink)
}

// forward sends ev to the shared output, blocking while it is full. Once
// the pipeline is closing, undeliverable events are dropped.
func (p *Pipeline) forward(ev core.ChatEvent) {
	select {
	case p.events <- ev:
		return
	default:
	}
	select {
	case p.events <- ev:
	case <-p.closing:
		p.dropped.Add(1)
		p.logger.Warn("pipeline closing, dropped %T for %s", ev, ev.Key())
	}
}

func (p *Pipeline) untrack(h *CancellationHandle) {
	p.mu.Lock()
	if cur, ok := p.active[h.key]; ok && cur == h {
		delete(p.active, h.key)
	}
	p.mu.Unlock()
	p.running.Add(-1)
}

func (p *Pipeline) model(req core.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.backend.Info().Name
}

func (p *Pipeline) finish(span trace.Span, req core.ChatRequest, em *emitter, dur time.Duration) {
	terminal, chunks := em.result()

	var (
		outcome string
		failure error
	)
	switch ev := terminal.(type) {
	case core.ChatError:
		outcome, failure = "failed", ev
		p.failed.Add(1)
		telemetry.RecordError(span, ev)
	case core.Cancelled:
		outcome = "cancelled"
		p.cancelled.Add(1)
		telemetry.SetOK(span)
	default:
		outcome = "completed"
		p.completed.Add(1)
		telemetry.SetOK(span)
	}
	span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.Int("chat.chunks", chunks),
	)

	if cl, ok := p.logger.(*logging.ChatLogger); ok {
		cl.WithComponent("pipeline").
			WithDispatch(req.SessionID, req.MessageID).
			LogDispatch(p.model(req), chunks, dur, outcome, failure)
		return
	}
	p.logger.Debug("dispatch %s %s after %s (%d chunks)", req.Key(), outcome, dur, chunks)
}
