package eventfabric

import "context"

// ChunkBridge bridges a synchronous per-token callback (as invoked by
// an LLM streaming client) into the async Fabric.Publish path without
// reordering. Per SPEC_FULL.md §9 "Callback-to-stream bridge": a
// bounded channel is the handoff; the callback enqueues, a single
// consumer goroutine dequeues and is the only publisher for this
// Message's chunk stream, so enqueue order equals publish order.
type ChunkBridge struct {
	fabric    Fabric
	messageID string
	sessionID string
	typ       Type
	queue     chan string
	done      chan struct{}
	onEmit    func(chunk, accumulated string) map[string]any
}

// NewChunkBridge starts the consumer goroutine and returns a bridge
// whose Enqueue method is safe to call from the LLM's synchronous
// callback. onPayload builds the event payload for each chunk given the
// chunk itself and the text accumulated so far; pass nil to default to
// {"content": chunk}.
func NewChunkBridge(ctx context.Context, fabric Fabric, messageID, sessionID string, typ Type, onPayload func(chunk, accumulated string) map[string]any) *ChunkBridge {
	if onPayload == nil {
		onPayload = func(chunk, _ string) map[string]any {
			return map[string]any{"content": chunk}
		}
	}
	b := &ChunkBridge{
		fabric:    fabric,
		messageID: messageID,
		sessionID: sessionID,
		typ:       typ,
		queue:     make(chan string, 256),
		done:      make(chan struct{}),
		onEmit:    onPayload,
	}
	go b.run(ctx)
	return b
}

func (b *ChunkBridge) run(ctx context.Context) {
	defer close(b.done)
	var accumulated string
	for {
		select {
		case chunk, ok := <-b.queue:
			if !ok {
				return
			}
			accumulated += chunk
			_, _ = b.fabric.Publish(ctx, b.messageID, b.sessionID, b.typ, b.onEmit(chunk, accumulated))
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue is called from the LLM's synchronous streaming callback. It
// never blocks the caller past the queue's capacity; callers are an
// already rate-limited external network stream, so bounded backpressure
// here is acceptable per SPEC_FULL.md §9.
func (b *ChunkBridge) Enqueue(chunk string) {
	b.queue <- chunk
}

// Close signals the consumer to drain and stop, and blocks until it has.
func (b *ChunkBridge) Close() {
	close(b.queue)
	<-b.done
}
