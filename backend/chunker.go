package backend

import (
	"context"

	"github.com/hupe1980/chatpipe/core"
)

// Chunker turns an open-ended stream of text deltas into chunks where only
// the last one is final. It holds back one fragment until it knows whether
// more follow.
type Chunker struct {
	req     core.ChatRequest
	sink    core.EventSink
	pending string
	held    bool
	emitted int
}

// NewChunker returns a Chunker emitting on sink for req.
func NewChunker(req core.ChatRequest, sink core.EventSink) *Chunker {
	return &Chunker{req: req, sink: sink}
}

// Push queues a fragment, emitting the previously held one as non-final.
// Empty fragments are ignored.
func (c *Chunker) Push(fragment string) error {
	if fragment == "" {
		return nil
	}
	if c.held {
		if err := c.sink.Emit(c.req.Chunk(c.pending, false)); err != nil {
			return err
		}
		c.emitted++
	}
	c.pending, c.held = fragment, true
	return nil
}

// Finish emits the held fragment (or an empty one) as the final chunk.
func (c *Chunker) Finish() error {
	if err := c.sink.Emit(c.req.Chunk(c.pending, true)); err != nil {
		return err
	}
	c.emitted++
	c.pending, c.held = "", false
	return nil
}

// Interrupt delivers any held fragment as non-final, then finishes the
// dispatch through Interrupted.
func (c *Chunker) Interrupt(ctx context.Context) error {
	if c.held {
		if err := c.sink.Emit(c.req.Chunk(c.pending, false)); err != nil {
			return err
		}
		c.emitted++
		c.pending, c.held = "", false
	}
	return Interrupted(ctx, c.req, c.sink)
}

// Emitted returns the number of chunks delivered so far.
func (c *Chunker) Emitted() int { return c.emitted }

// Abort reports err for a dispatch. Before any chunk was delivered the error
// is returned so the pipeline reports it; afterwards it becomes a ChatError
// event closing the partially streamed reply.
func Abort(req core.ChatRequest, sink core.EventSink, emitted int, err error) error {
	if emitted == 0 {
		return err
	}
	return sink.Emit(req.Failure(err))
}
