package resource

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

const sseHeartbeatInterval = 30 * time.Second

// broadcaster fans a typed value out to every currently-subscribed SSE
// client, the generic form of the teacher's SSEHandler client map.
type broadcaster[T any] struct {
	mu      sync.Mutex
	clients map[chan T]struct{}
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{clients: make(map[chan T]struct{})}
}

func (b *broadcaster[T]) subscribe() chan T {
	ch := make(chan T, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broadcaster[T]) unsubscribe(ch chan T) {
	b.mu.Lock()
	delete(b.clients, ch)
	b.mu.Unlock()
}

// Publish fans value out to every subscriber, dropping it for any
// client whose buffer is currently full rather than blocking the
// publisher — an overwhelmed observer just misses an update.
func (b *broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- value:
		default:
		}
	}
}

// serveSSE drains b into an Server-Sent-Events response until the
// request context is cancelled, grounded on the teacher's
// internal/httpcontroller/handlers/sse.go heartbeat/flush loop.
func serveSSE[T any](c echo.Context, b *broadcaster[T]) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(200)

	ch := b.subscribe()
	defer b.unsubscribe(ch)

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case v := <-ch:
			if err := writeSSEValue(c, v); err != nil {
				return err
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(c.Response(), ":\n\n"); err != nil {
				return err
			}
			c.Response().Flush()
		}
	}
}

func writeSSEValue[T any](c echo.Context, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
		return err
	}
	c.Response().Flush()
	return nil
}
