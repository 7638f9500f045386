// Package events implements the lightweight publish/subscribe machinery
// spec.md's design notes call for: per-field change notifiers replacing
// the original's single-slot callbacks, and a sync/async bridge joining
// worker goroutines to the event loop. Grounded on the teacher's
// internal/events/eventbus.go worker-pool/buffered-channel idiom.
package events

import "sync"

// Notifier is a zero-or-more-observer publish point for a single piece
// of state, e.g. a spectrometer's status or a shutter's open/closed
// flag. Subscribers are invoked synchronously and in subscription order;
// callers that need to fan out to a slow consumer (the HTTP/SSE layer)
// should make their callback non-blocking themselves.
type Notifier[T any] struct {
	mu        sync.RWMutex
	observers []func(T)
}

// Subscribe registers cb to be called on every future Publish. It
// returns an unsubscribe function.
func (n *Notifier[T]) Subscribe(cb func(T)) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, cb)
	idx := len(n.observers) - 1
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if idx < len(n.observers) {
			n.observers[idx] = nil
		}
	}
}

// Publish invokes every live subscriber with value.
func (n *Notifier[T]) Publish(value T) {
	n.mu.RLock()
	observers := make([]func(T), len(n.observers))
	copy(observers, n.observers)
	n.mu.RUnlock()

	for _, cb := range observers {
		if cb != nil {
			cb(value)
		}
	}
}
