// Package shutter implements the named optical shutter registry: each
// channel's exclusive open/closed state plus a timed open_close
// operation, grounded on original_source/PiccoloShutter.py.
package shutter

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
)

// State is a shutter's current mechanical position.
type State string

const (
	Open   State = "open"
	Closed State = "closed"
)

// Shutter is one named optical path's shutter. Open/Close are
// idempotent: calling Open twice in a row logs a warning on the second
// call instead of pulsing the relay again, matching the original's lock
// semantics where a non-blocking acquire failure just returns a warning
// string.
type Shutter struct {
	name          string
	backend       device.Shutter
	reverse       bool
	fibreDiameter float64

	mu     sync.Mutex
	state  State
	status events.Notifier[State]

	log *slog.Logger
}

// New returns a Shutter starting in the Closed position; if backend is
// non-nil it is pulsed closed immediately to force a known state, as
// the original constructor does with a synchronous open-then-close.
func New(ctx context.Context, name string, backend device.Shutter, reverse bool, fibreDiameter float64, log *slog.Logger) (*Shutter, error) {
	s := &Shutter{
		name:          name,
		backend:       backend,
		reverse:       reverse,
		fibreDiameter: fibreDiameter,
		state:         Closed,
		log:           log,
	}
	if backend != nil {
		if err := backend.Close(ctx); err != nil {
			return nil, fmt.Errorf("initialising shutter %s: %w", name, err)
		}
	}
	return s, nil
}

// Name returns the channel name this shutter is associated with.
func (s *Shutter) Name() string { return s.name }

// Reverse reports whether the shutter's polarity is reversed.
func (s *Shutter) Reverse() bool { return s.reverse }

// FibreDiameter returns the fibre diameter in microns.
func (s *Shutter) FibreDiameter() float64 { return s.fibreDiameter }

// Status returns the current mechanical state.
func (s *Shutter) Status() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnStatusChange registers a callback invoked whenever the shutter's
// state changes, returning an unsubscribe function.
func (s *Shutter) OnStatusChange(cb func(State)) func() {
	return s.status.Subscribe(cb)
}

// Open opens the shutter. If it is already open this is a no-op that
// logs a warning, never an error, matching the original's 'shutter
// already open' return.
func (s *Shutter) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Open {
		s.log.Warn("shutter already open", "shutter", s.name)
		return nil
	}
	if s.backend != nil {
		if err := s.backend.Open(ctx); err != nil {
			return perrors.Device(s.name, "open shutter %s: %v", s.name, err)
		}
	}
	s.state = Open
	s.log.Info("open shutter", "shutter", s.name)
	s.status.Publish(Open)
	return nil
}

// Close closes the shutter, a no-op with a log line if already closed.
func (s *Shutter) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		s.log.Info("shutter already closed", "shutter", s.name)
		return nil
	}
	if s.backend != nil {
		if err := s.backend.Close(ctx); err != nil {
			return perrors.Device(s.name, "close shutter %s: %v", s.name, err)
		}
	}
	s.state = Closed
	s.log.Info("closed shutter", "shutter", s.name)
	s.status.Publish(Closed)
	return nil
}

// OpenFor opens the shutter, waits for the given duration (or ctx
// cancellation), then closes it again, running asynchronously — the
// equivalent of the original's open_close, which spawned a daemon
// thread so the caller never blocked for the exposure window.
func (s *Shutter) OpenFor(ctx context.Context, d time.Duration) {
	s.log.Info("opening shutter for period", "shutter", s.name, "duration", d)
	go func() {
		if err := s.Open(ctx); err != nil {
			s.log.Error("timed open failed", "shutter", s.name, "error", err)
			return
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
		if err := s.Close(ctx); err != nil {
			s.log.Error("timed close failed", "shutter", s.name, "error", err)
		}
	}()
}

// Registry is the set of all configured shutters, keyed by channel
// name, standing in for PiccoloShutters' dict-like component.
type Registry struct {
	mu       sync.RWMutex
	shutters map[string]*Shutter
}

// NewRegistry returns an empty shutter registry.
func NewRegistry() *Registry {
	return &Registry{shutters: make(map[string]*Shutter)}
}

// Add registers a shutter under its channel name. Re-adding the same
// name replaces the previous entry.
func (r *Registry) Add(s *Shutter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutters[s.Name()] = s
}

// Get returns the shutter for a channel, or false if not configured.
func (r *Registry) Get(channel string) (*Shutter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.shutters[channel]
	return s, ok
}

// Channels returns the configured channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.shutters))
	for name := range r.shutters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many shutters are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shutters)
}
