// Package pipeline dispatches chat requests to a backend and fans their
// events into one shared channel.
//
// Each Submit starts an independent task that runs the backend for the
// request. Every event the backend emits is forwarded to Events in the order
// it was produced; events of different dispatches may interleave freely.
// Every dispatch ends with exactly one terminal event: a final chunk, a
// ChatError or Cancelled. Failures returned by the backend are converted
// into a single ChatError, so callers branch on event types only.
//
// # Backpressure
//
// Events is a bounded channel (Config.EventBufferSize). When the consumer
// falls behind, dispatch tasks block on send, which in turn blocks the
// backend's Emit call and throttles its work.
//
// # Cancellation
//
// Cancellation is cooperative. Submit returns a CancellationHandle whose
// Cancel cancels the dispatch context; the backend observes it between
// chunks and finishes with Cancelled. Cancelling a finished dispatch is a
// no-op. A chunk already produced when cancellation arrives may still be
// delivered, but a dispatch cancelled before its final chunk never reports
// that chunk as final.
//
// # Lifecycle
//
//	p := pipeline.New(b, func(o *pipeline.Options) {
//	    o.Config.MaxConcurrentDispatches = 4
//	})
//	defer p.Close()
//
//	h := p.Submit(req)
//	for ev := range p.Events() {
//	    switch ev := ev.(type) {
//	    case core.ChatResponseChunk:
//	    case core.ChatError:
//	    case core.Cancelled:
//	    }
//	}
//
// Close cancels every in-flight dispatch, waits for the tasks and closes
// Events. Events that can no longer be delivered are logged and counted in
// Stats().Dropped.
package pipeline
