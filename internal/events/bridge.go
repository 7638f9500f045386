package events

import (
	"context"
	"sync"
)

// Bridge is the multi-producer/single-consumer channel joining a worker
// goroutine's synchronous device loop to the asynchronous event loop,
// standing in for the original code's janus.Queue split between a
// thread-side sync queue and an asyncio-side async queue. Producers call
// Send (never blocks forever: it respects ctx); a single consumer
// goroutine ranges over Events().
type Bridge[T any] struct {
	ch     chan T
	closed chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge with the given buffer size. A buffer lets a
// worker emit a status change and a spectrum in quick succession without
// blocking on the consumer catching up.
func NewBridge[T any](buffer int) *Bridge[T] {
	return &Bridge[T]{
		ch:     make(chan T, buffer),
		closed: make(chan struct{}),
	}
}

// Send delivers value to the consumer, or returns false if ctx is done
// or the bridge was closed first.
func (b *Bridge[T]) Send(ctx context.Context, value T) bool {
	select {
	case b.ch <- value:
		return true
	case <-b.closed:
		return false
	case <-ctx.Done():
		return false
	}
}

// Events returns the receive-only channel consumers range over.
func (b *Bridge[T]) Events() <-chan T {
	return b.ch
}

// Close stops further delivery and lets any pending consumer range loop
// drain and exit once the channel empties. Safe to call more than once.
func (b *Bridge[T]) Close() {
	b.once.Do(func() {
		close(b.closed)
		close(b.ch)
	})
}
