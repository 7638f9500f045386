// Package controller implements the acquisition controller: the single
// worker that drives shutters and spectrometers together through
// record/dark/autointegrate sequences, with abort/pause interruption
// points, grounded on original_source/Piccolo.py's
// PiccoloControlWorker/PiccoloControl pair.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
	"github.com/TeamPiccolo/piccolo3-server/internal/writer"
)

// stateGauges is the narrow metrics surface the controller reports
// busy/paused transitions to. Kept as an interface so tests never need
// a real Prometheus registry.
type stateGauges interface {
	SetControllerState(busy, paused bool)
}

// commandKind identifies a control-queue entry.
type commandKind string

const (
	cmdRecord commandKind = "record"
	cmdDark   commandKind = "dark"
	cmdAuto   commandKind = "auto"
	cmdAbort  commandKind = "abort"
	cmdPause  commandKind = "pause"
)

type command struct {
	kind commandKind
	args RecordArgs
	dark DarkArgs
	auto float64

	reply chan error
}

// RecordArgs is the payload for a record_sequence request.
type RecordArgs struct {
	Run       string
	NSequence int
	Auto      int
	Delay     time.Duration
	Target    float64
}

// DarkArgs is the payload for a standalone record_dark request.
type DarkArgs struct {
	Run string
}

// Controller owns the shutter registry, the spectrometer workers, and
// the single background goroutine that serializes every acquisition
// operation, exactly as PiccoloControlWorker serialized tasks pulled
// off one queue.
type Controller struct {
	shutters      *shutter.Registry
	spectrometers map[string]*spectrometer.Worker
	runs          *piccolospec.RunStore
	out           *writer.Writer
	log           *slog.Logger

	cmds chan command

	mu              sync.Mutex
	busy            bool
	paused          bool
	status          string
	currentSequence int
	lastArgs        RecordArgs

	metrics stateGauges

	StatusChanged   events.Notifier[string]
	SequenceChanged events.Notifier[int]
}

// SetMetrics attaches a metrics sink that is updated on every
// busy/paused transition. Optional; a Controller with no sink attached
// behaves identically, just without the side effect.
func (c *Controller) SetMetrics(m stateGauges) {
	c.mu.Lock()
	c.metrics = m
	c.mu.Unlock()
}

func (c *Controller) reportState() {
	c.mu.Lock()
	m, busy, paused := c.metrics, c.busy, c.paused
	c.mu.Unlock()
	if m != nil {
		m.SetControllerState(busy, paused)
	}
}

// New returns a Controller for the given shutters/spectrometers/run
// store, writing finished sequences to out.
func New(shutters *shutter.Registry, spectrometers map[string]*spectrometer.Worker, runs *piccolospec.RunStore, out *writer.Writer, log *slog.Logger) *Controller {
	return &Controller{
		shutters:      shutters,
		spectrometers: spectrometers,
		runs:          runs,
		out:           out,
		log:           log,
		cmds:          make(chan command, 4),
	}
}

// Busy reports whether an acquisition sequence is in progress.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// Paused reports whether a running sequence is currently paused.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Status reports the last status string published by the running
// sequence (e.g. "idle", "<channel> light", "waiting", "paused").
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == "" {
		return "idle"
	}
	return c.status
}

// CurrentSequence reports the index of the most recently started light
// sequence. It is 0 before any record_sequence call, -1 from the start of
// a record_sequence until its first light sequence, and keeps its last
// value after the run finishes.
func (c *Controller) CurrentSequence() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSequence
}

// NumSequences reports the sequence count requested by the most recent
// record_sequence call.
func (c *Controller) NumSequences() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArgs.NSequence
}

// AutointegrationInterval reports the autointegration interval (in
// sequences) requested by the most recent record_sequence call.
func (c *Controller) AutointegrationInterval() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArgs.Auto
}

// Delay reports the inter-sequence delay requested by the most recent
// record_sequence call.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArgs.Delay
}

// Target reports the autointegration target requested by the most
// recent record_sequence or Autointegrate call.
func (c *Controller) Target() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastArgs.Target
}

func (c *Controller) setBusy(v bool) {
	c.mu.Lock()
	c.busy = v
	c.mu.Unlock()
	c.reportState()
}

func (c *Controller) updateStatus(s string) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.StatusChanged.Publish(s)
}

func (c *Controller) updateSequence(n int) {
	c.mu.Lock()
	c.currentSequence = n
	c.mu.Unlock()
	c.SequenceChanged.Publish(n)
}

// RecordSequence enqueues a full record_sequence request. Returns a
// busy error immediately if an acquisition is already running, matching
// the original's pre-enqueue busy check at the async frontend layer.
func (c *Controller) RecordSequence(ctx context.Context, args RecordArgs) error {
	if c.Busy() {
		return perrors.Busy("controller", "controller is busy")
	}
	return c.submit(ctx, command{kind: cmdRecord, args: args})
}

// RecordDark enqueues a standalone dark-sequence request.
func (c *Controller) RecordDark(ctx context.Context, args DarkArgs) error {
	if c.Busy() {
		return perrors.Busy("controller", "controller is busy")
	}
	return c.submit(ctx, command{kind: cmdDark, dark: args})
}

// Autointegrate enqueues an autointegration sweep across every shutter.
func (c *Controller) Autointegrate(ctx context.Context, target float64) error {
	if target <= 0 || target >= 100 {
		return perrors.Domain("controller", "target out of range 0<%v<100", target)
	}
	if c.Busy() {
		return perrors.Busy("controller", "controller is busy")
	}
	c.mu.Lock()
	c.lastArgs.Target = target
	c.mu.Unlock()
	return c.submit(ctx, command{kind: cmdAuto, auto: target})
}

// Abort cancels the in-progress sequence at its next yield point. It is
// a no-op (with a log warning) if nothing is running.
func (c *Controller) Abort(ctx context.Context) error {
	if !c.Busy() {
		c.log.Warn("abort called but not busy")
		return nil
	}
	return c.submit(ctx, command{kind: cmdAbort})
}

// Pause toggles pause/unpause of the in-progress sequence.
func (c *Controller) Pause(ctx context.Context) error {
	return c.submit(ctx, command{kind: cmdPause})
}

func (c *Controller) submit(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// errAborted is returned by pollControl to tell a running sequence
// to stop at its next safe point.
var errAborted = fmt.Errorf("acquisition aborted")

// Run is the controller's single background goroutine. It must be
// started exactly once.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-c.cmds:
			c.dispatch(ctx, cmd)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdRecord:
		c.mu.Lock()
		c.lastArgs = cmd.args
		c.currentSequence = -1
		c.mu.Unlock()
		cmd.reply <- nil
		c.setBusy(true)
		if err := c.recordSequence(ctx, cmd.args); err != nil && err != errAborted {
			c.log.Error("record sequence failed", "error", err)
		}
		c.updateStatus("idle")
		c.setBusy(false)
	case cmdDark:
		cmd.reply <- nil
		c.setBusy(true)
		if err := c.recordDark(ctx, cmd.dark.Run, -1, 0); err != nil {
			c.log.Error("record dark failed", "error", err)
		}
		c.updateStatus("idle")
		c.setBusy(false)
	case cmdAuto:
		cmd.reply <- nil
		c.setBusy(true)
		c.autointegrateAll(ctx, cmd.auto)
		c.updateStatus("idle")
		c.setBusy(false)
	case cmdAbort:
		// abort is only meaningful while a sequence is running; the
		// running sequence observes it via pollControl. Nothing to do
		// here but acknowledge receipt.
		cmd.reply <- nil
	case cmdPause:
		c.mu.Lock()
		c.paused = !c.paused
		paused := c.paused
		c.mu.Unlock()
		c.reportState()
		if paused {
			c.updateStatus("paused")
		}
		cmd.reply <- nil
	default:
		cmd.reply <- fmt.Errorf("unknown control command: %s", cmd.kind)
	}
}

// pollControl is called at every yield point inside a running sequence.
// It drains any abort/pause requests that arrived in the meantime
// without blocking on new record/dark/auto requests (those are
// rejected before being enqueued while busy, see RecordSequence).
func (c *Controller) pollControl(ctx context.Context) error {
	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdAbort:
				cmd.reply <- nil
				return errAborted
			case cmdPause:
				c.mu.Lock()
				c.paused = !c.paused
				paused := c.paused
				c.mu.Unlock()
				c.reportState()
				cmd.reply <- nil
				if !paused {
					return nil
				}
				c.updateStatus("paused")
				if err := c.waitUnpause(ctx); err != nil {
					return err
				}
				return nil
			default:
				cmd.reply <- fmt.Errorf("controller is busy")
			}
		default:
			return nil
		}
	}
}

func (c *Controller) waitUnpause(ctx context.Context) error {
	for {
		select {
		case cmd := <-c.cmds:
			switch cmd.kind {
			case cmdAbort:
				cmd.reply <- nil
				return errAborted
			case cmdPause:
				c.mu.Lock()
				c.paused = false
				c.mu.Unlock()
				c.reportState()
				cmd.reply <- nil
				return nil
			default:
				cmd.reply <- fmt.Errorf("controller is busy")
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func newTaskID() uuid.UUID { return uuid.New() }
