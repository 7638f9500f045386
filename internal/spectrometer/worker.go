// Package spectrometer implements the per-device worker: a single
// goroutine owning one spectrometer handle, processing commands
// sequentially the way PiccoloSpectrometerWorker's worker thread did,
// and broadcasting status/result changes through internal/events
// notifiers instead of a raw info queue.
package spectrometer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

// CommandKind identifies the operation a Command requests.
type CommandKind string

const (
	CmdConnect          CommandKind = "connect"
	CmdDisconnect       CommandKind = "disconnect"
	CmdHaveTEC          CommandKind = "haveTEC"
	CmdCurrentTemp      CommandKind = "currentTemp"
	CmdEnableTEC        CommandKind = "enableTEC"
	CmdTargetTemp       CommandKind = "targetTemp"
	CmdSetCurrent       CommandKind = "current"
	CmdSetMin           CommandKind = "min"
	CmdSetMax           CommandKind = "max"
	CmdStartAcquisition CommandKind = "start_acquisition"
	CmdAutointegration  CommandKind = "autointegration"
)

// Command is one request submitted to a worker's queue.
type Command struct {
	Kind     CommandKind
	Channel  string
	IntArg   int64
	FloatArg float64
	BoolArg  bool
	Dark     bool
	TaskID   uuid.UUID

	reply chan Result
}

// Result is a command's synchronous acknowledgement. For
// start_acquisition and autointegration this ack arrives before the
// work finishes; the actual spectrum or autointegration outcome
// follows later through the worker's notifiers.
type Result struct {
	OK    bool
	Err   error
	Value any
}

// ChannelInt pairs a channel name with an integer value, used for the
// current/min/max integration-time change notifications.
type ChannelInt struct {
	Channel string
	Value   int64
}

// ChannelAuto pairs a channel with its autointegration outcome.
type ChannelAuto struct {
	Channel string
	Status  piccolospec.AutoStatus
}

// SpectrumResult is delivered once an acquisition finishes. Spectrum is
// nil if the acquisition could not be completed (device not ready).
type SpectrumResult struct {
	TaskID   uuid.UUID
	Spectrum *piccolospec.Spectrum
}

// Dial attempts to establish a connection to the physical device. Dummy
// workers are given a Dial that always succeeds instantly; real
// backends may fail and the worker retries once a second, logging a
// warning at most every 5 seconds.
type Dial func(ctx context.Context) (device.Spectrometer, error)

// autoMetrics is the narrow metrics surface a Worker reports autointegration
// attempts to, mirroring the interface-not-import-dependency shape used by
// internal/controller's stateGauges so this package never needs to import
// internal/metrics.
type autoMetrics interface {
	RecordAutointegrationRound(channel string)
}

// Worker drives one spectrometer through its full lifecycle. State
// changes happen on the single goroutine running Run; from outside,
// the notifiers, Submit and the mutex-guarded getters are safe to use.
type Worker struct {
	serial     string
	channels   []string
	calibration map[string][]float64
	dial       Dial
	log        *slog.Logger
	metrics    autoMetrics

	cmds chan Command

	StatusChanged   events.Notifier[piccolospec.SpectrometerStatus]
	MinChanged      events.Notifier[int64]
	MaxChanged      events.Notifier[int64]
	CurrentChanged  events.Notifier[ChannelInt]
	AutoChanged     events.Notifier[ChannelAuto]
	SpectrumResult  events.Notifier[SpectrumResult]

	mu          sync.RWMutex
	status      piccolospec.SpectrometerStatus
	spec        device.Spectrometer
	usingDummy  bool
	meta        map[string]any
	haveTEC     *bool
	tecEnabled  bool
	targetTemp  float64
	minIntTime  int64
	maxIntTime  int64
	currentTime map[string]int64
	auto        map[string]piccolospec.AutoStatus
}

// New constructs a worker for serial, covering the given channels (one
// per shutter-gated optical path sharing this spectrometer) with
// optional per-channel wavelength calibration coefficients. Matches the
// constructor defaults from PiccoloSpectrometerWorker.__init__: status
// starts DISCONNECTED, min/max integration time 0/10000ms, auto unset.
func New(serial string, channels []string, calibration map[string][]float64, dial Dial, log *slog.Logger) *Worker {
	w := &Worker{
		serial:      serial,
		channels:    append([]string(nil), channels...),
		calibration: calibration,
		dial:        dial,
		log:         log,
		cmds:        make(chan Command, 8),
		status:      piccolospec.StatusDisconnected,
		minIntTime:  0,
		maxIntTime:  10000,
		currentTime: make(map[string]int64, len(channels)),
		auto:        make(map[string]piccolospec.AutoStatus, len(channels)),
	}
	for _, c := range channels {
		w.currentTime[c] = 0
		w.auto[c] = piccolospec.AutoNotSet
	}
	return w
}

// SetMetrics wires m to receive a notification per autointegration
// attempt round. Must be called before Run starts processing commands.
func (w *Worker) SetMetrics(m autoMetrics) {
	w.metrics = m
}

// Serial returns the spectrometer's configured serial number.
func (w *Worker) Serial() string { return w.serial }

// Channels returns the optical channels this spectrometer serves.
func (w *Worker) Channels() []string { return append([]string(nil), w.channels...) }

// Status returns the worker's current lifecycle state.
func (w *Worker) Status() piccolospec.SpectrometerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// CurrentIntegrationTime returns the configured integration time for a
// channel, in milliseconds.
func (w *Worker) CurrentIntegrationTime(channel string) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.currentTime[channel]
}

// Auto returns a channel's autointegration status.
func (w *Worker) Auto(channel string) piccolospec.AutoStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.auto[channel]
}

// MinIntegrationTime returns the spectrometer-wide minimum, in
// milliseconds.
func (w *Worker) MinIntegrationTime() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.minIntTime
}

// MaxIntegrationTime returns the spectrometer-wide maximum, in
// milliseconds.
func (w *Worker) MaxIntegrationTime() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.maxIntTime
}

// Run processes commands until ctx is cancelled, at which point it
// disconnects the device and returns.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case cmd := <-w.cmds:
			w.process(ctx, cmd)
		case <-ctx.Done():
			w.disconnect(context.Background())
			return
		}
	}
}

// Submit enqueues cmd and waits for its acknowledgement. Callers must
// serialize submissions per logical operation the way the original's
// single tasks queue did; concurrent callers are fine, commands just
// interleave in submission order.
func (w *Worker) Submit(ctx context.Context, cmd Command) Result {
	cmd.reply = make(chan Result, 1)
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
	select {
	case r := <-cmd.reply:
		return r
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

func (w *Worker) setStatus(s piccolospec.SpectrometerStatus) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
	w.StatusChanged.Publish(s)
}

func (w *Worker) process(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CmdConnect:
		w.connect(ctx)
		cmd.reply <- Result{OK: true}
	case CmdDisconnect:
		w.disconnect(ctx)
		cmd.reply <- Result{OK: true}
	case CmdHaveTEC:
		cmd.reply <- Result{OK: true, Value: w.haveTECValue(ctx)}
	case CmdCurrentTemp:
		t, err := w.currentTemperature(ctx)
		cmd.reply <- Result{OK: err == nil, Err: err, Value: t}
	case CmdEnableTEC:
		err := w.enableTEC(ctx, cmd.BoolArg)
		cmd.reply <- ackResult(err)
	case CmdTargetTemp:
		err := w.setTargetTemperature(ctx, cmd.FloatArg)
		cmd.reply <- ackResult(err)
	case CmdSetCurrent:
		err := w.setCurrentIntegrationTime(cmd.Channel, cmd.IntArg, true)
		cmd.reply <- ackResult(err)
	case CmdSetMin:
		err := w.setMinIntegrationTime(cmd.IntArg)
		cmd.reply <- ackResult(err)
	case CmdSetMax:
		err := w.setMaxIntegrationTime(cmd.IntArg)
		cmd.reply <- ackResult(err)
	case CmdStartAcquisition:
		w.handleStartAcquisition(ctx, cmd)
	case CmdAutointegration:
		w.handleAutointegration(ctx, cmd)
	default:
		cmd.reply <- Result{Err: fmt.Errorf("unknown task: %s", cmd.Kind)}
	}
}

func ackResult(err error) Result {
	if err != nil {
		return Result{Err: err}
	}
	return Result{OK: true}
}

func (w *Worker) handleStartAcquisition(ctx context.Context, cmd Command) {
	if !w.hasChannel(cmd.Channel) {
		cmd.reply <- Result{Err: perrors.Domain("spectrometer", "channel %s is unknown", cmd.Channel)}
		return
	}
	if err := w.checkReady(); err != nil {
		cmd.reply <- Result{Err: err}
		return
	}
	cmd.reply <- Result{OK: true}
	w.setStatus(piccolospec.StatusRecording)
	if err := w.acquireSpectrum(ctx, cmd.Channel, cmd.Dark, cmd.TaskID); err != nil {
		w.log.Error("during acquisition", "serial", w.serial, "error", err)
		w.SpectrumResult.Publish(SpectrumResult{TaskID: cmd.TaskID, Spectrum: nil})
	}
	w.setStatus(piccolospec.StatusIdle)
}

func (w *Worker) handleAutointegration(ctx context.Context, cmd Command) {
	if !w.hasChannel(cmd.Channel) {
		cmd.reply <- Result{Err: perrors.Domain("spectrometer", "channel %s is unknown", cmd.Channel)}
		return
	}
	if err := w.checkReady(); err != nil {
		cmd.reply <- Result{Err: err}
		return
	}
	cmd.reply <- Result{OK: true}

	w.setStatus(piccolospec.StatusAutointegrating)
	if err := w.autointegrate(ctx, cmd.Channel, cmd.FloatArg, 10, 5); err != nil {
		w.setAuto(cmd.Channel, piccolospec.AutoFailed)
		w.log.Error("during autointegration", "serial", w.serial, "error", err)
	}
	w.setStatus(piccolospec.StatusIdle)
}

func (w *Worker) hasChannel(channel string) bool {
	for _, c := range w.channels {
		if c == channel {
			return true
		}
	}
	return false
}

func (w *Worker) connect(ctx context.Context) {
	if w.Status() != piccolospec.StatusDisconnected {
		w.log.Warn("already connected", "serial", w.serial)
		return
	}
	if strings.HasPrefix(w.serial, "dummy_") {
		w.log.Info("using dummy spectrometer", "serial", w.serial)
		w.mu.Lock()
		w.usingDummy = true
		w.mu.Unlock()
		spec, _ := w.dial(ctx)
		w.mu.Lock()
		w.spec = spec
		w.meta = nil
		w.mu.Unlock()
	} else {
		w.log.Info("trying to connect to spectrometer", "serial", w.serial)
		w.setStatus(piccolospec.StatusConnecting)

		var next time.Time
		for {
			spec, err := w.dial(ctx)
			if err == nil {
				w.mu.Lock()
				w.spec = spec
				w.meta = nil
				w.mu.Unlock()
				break
			}
			now := time.Now()
			if now.After(next) {
				w.log.Warn("failed to open spectrometer", "serial", w.serial, "error", err)
				next = now.Add(5 * time.Second)
			}
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
	w.log.Info("connected to spectrometer", "serial", w.serial)
	w.setStatus(piccolospec.StatusIdle)
	if err := w.setMinIntegrationTime(0); err != nil {
		w.log.Error("resetting minimum integration time", "serial", w.serial, "error", err)
	}
}

func (w *Worker) disconnect(ctx context.Context) {
	if w.Status() < piccolospec.StatusIdle {
		w.log.Warn("spectrometer is not connected", "serial", w.serial)
		return
	}
	w.log.Info("disconnecting spectrometer", "serial", w.serial)
	w.mu.Lock()
	spec := w.spec
	dummy := w.usingDummy
	w.mu.Unlock()
	if !dummy && spec != nil {
		if err := spec.Close(ctx); err != nil {
			w.log.Error("closing spectrometer", "serial", w.serial, "error", err)
		}
	}
	w.mu.Lock()
	w.spec = nil
	w.mu.Unlock()
	w.setStatus(piccolospec.StatusDisconnected)
}

// isDummy mirrors the original's is_dummy property: not-ready workers
// report themselves as dummy (with a warning) so callers short-circuit
// instead of touching a nonexistent device handle.
func (w *Worker) isDummy() bool {
	if w.Status() < piccolospec.StatusIdle {
		w.log.Warn("spectrometer not ready", "serial", w.serial)
		return true
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.usingDummy
}

func (w *Worker) checkOK() bool {
	w.mu.RLock()
	status := w.status
	spec := w.spec
	dummy := w.usingDummy
	w.mu.RUnlock()
	if status > piccolospec.StatusConnecting && !dummy && spec != nil && !spec.IsOpen() {
		w.mu.Lock()
		w.spec = nil
		w.mu.Unlock()
		w.setStatus(piccolospec.StatusDisconnected)
		w.log.Warn("spectrometer disappeared", "serial", w.serial)
		return false
	}
	return true
}

func (w *Worker) checkReady() error {
	if !w.checkOK() {
		return perrors.Device("spectrometer", "spectrometer %s disappeared", w.serial)
	}
	if w.Status() < piccolospec.StatusIdle {
		return perrors.Device("spectrometer", "spectrometer %s not ready", w.serial)
	}
	return nil
}

func (w *Worker) setMinIntegrationTime(t int64) error {
	if !w.isDummy() {
		w.mu.RLock()
		spec := w.spec
		w.mu.RUnlock()
		if spec != nil {
			if hwMin := spec.MinIntegrationTimeMicros() / 1000; hwMin > t {
				t = hwMin
			}
		}
	}
	w.mu.Lock()
	if t == w.minIntTime {
		w.mu.Unlock()
		return nil
	}
	w.minIntTime = t
	w.mu.Unlock()
	w.MinChanged.Publish(t)

	for _, c := range w.channels {
		if w.CurrentIntegrationTime(c) < t {
			if err := w.setCurrentIntegrationTime(c, t, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) setMaxIntegrationTime(t int64) error {
	w.mu.Lock()
	if t == w.maxIntTime {
		w.mu.Unlock()
		return nil
	}
	w.maxIntTime = t
	w.mu.Unlock()
	w.MaxChanged.Publish(t)

	for _, c := range w.channels {
		if w.CurrentIntegrationTime(c) > t {
			if err := w.setCurrentIntegrationTime(c, t, true); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Worker) setCurrentIntegrationTime(channel string, t int64, resetAuto bool) error {
	w.mu.Lock()
	if t == w.currentTime[channel] {
		w.mu.Unlock()
		return nil
	}
	min, max := w.minIntTime, w.maxIntTime
	if t < min {
		w.mu.Unlock()
		return perrors.Domain("spectrometer", "integration time %d is smaller than minimum %d", t, min)
	}
	if t > max {
		w.mu.Unlock()
		return perrors.Domain("spectrometer", "integration time %d is larger than maximum %d", t, max)
	}
	w.currentTime[channel] = t
	w.mu.Unlock()
	w.CurrentChanged.Publish(ChannelInt{Channel: channel, Value: t})
	if resetAuto {
		w.setAuto(channel, piccolospec.AutoNotSet)
	}
	return nil
}

func (w *Worker) setAuto(channel string, status piccolospec.AutoStatus) {
	w.mu.Lock()
	if status == w.auto[channel] {
		w.mu.Unlock()
		return
	}
	w.auto[channel] = status
	w.mu.Unlock()
	w.AutoChanged.Publish(ChannelAuto{Channel: channel, Status: status})
}

func (w *Worker) haveTECValue(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.haveTEC != nil {
		return *w.haveTEC
	}
	var have bool
	if w.usingDummy || w.spec == nil {
		w.log.Debug("dummy spectrometers have no TEC", "serial", w.serial)
	} else {
		have = w.spec.HasTEC()
	}
	w.haveTEC = &have
	return have
}

func (w *Worker) currentTemperature(ctx context.Context) (float64, error) {
	if !w.haveTECValue(ctx) {
		return 0, perrors.Domain("spectrometer", "spectrometer %s has no TEC", w.serial)
	}
	w.mu.RLock()
	spec := w.spec
	w.mu.RUnlock()
	return spec.CurrentTemperature(ctx)
}

func (w *Worker) enableTEC(ctx context.Context, enable bool) error {
	w.mu.RLock()
	spec := w.spec
	w.mu.RUnlock()
	if spec == nil {
		return perrors.Device("spectrometer", "no spectrometer connected")
	}
	if err := spec.EnableTEC(ctx, enable); err != nil {
		return err
	}
	w.mu.Lock()
	w.tecEnabled = enable
	w.mu.Unlock()
	if enable {
		w.log.Info("TEC enabled", "serial", w.serial)
	} else {
		w.log.Info("TEC disabled", "serial", w.serial)
	}
	return nil
}

// TECEnabled reports the last-requested TEC enable state.
func (w *Worker) TECEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tecEnabled
}

// TargetTemperature returns the last-requested TEC setpoint, in
// Celsius.
func (w *Worker) TargetTemperature() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.targetTemp
}

func (w *Worker) setTargetTemperature(ctx context.Context, celsius float64) error {
	w.mu.RLock()
	spec := w.spec
	w.mu.RUnlock()
	if spec == nil {
		return perrors.Device("spectrometer", "no spectrometer connected")
	}
	if err := spec.SetTECSetpoint(ctx, celsius); err != nil {
		return err
	}
	w.mu.Lock()
	w.targetTemp = celsius
	w.mu.Unlock()
	w.log.Info("setting target temperature", "serial", w.serial, "celsius", celsius)
	return nil
}

// Meta returns the spectrometer's calibration/capability metadata,
// computed and cached on first access.
func (w *Worker) Meta() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.meta != nil {
		return w.meta
	}
	var meta map[string]any
	if w.usingDummy || w.spec == nil {
		meta = map[string]any{
			piccolospec.MetaSerialNumber:                       w.serial,
			piccolospec.MetaWavelengthCalibrationCoefficients:  []float64{0, 1, 0, 0},
			piccolospec.MetaDarkPixels:                         []int{},
			piccolospec.MetaNonlinearityCorrectionCoefficients: []float64{0, 1, 0},
			piccolospec.MetaSaturationLevel:                    200000.0,
		}
	} else {
		meta = map[string]any{
			piccolospec.MetaSerialNumber:                       w.spec.SerialNumber(),
			piccolospec.MetaWavelengthCalibrationCoefficients:  polyfitWavelengths(w.spec.Wavelengths()),
			piccolospec.MetaDarkPixels:                         w.spec.DarkPixelIndices(),
			piccolospec.MetaNonlinearityCorrectionCoefficients: w.spec.NonlinearityCoefficients(),
			piccolospec.MetaSaturationLevel:                    w.spec.MaxIntensity(),
		}
	}
	meta[piccolospec.MetaIntegrationTimeUnits] = piccolospec.IntegrationTimeUnitsMilliseconds
	meta["TemperatureEnabled"] = false
	meta[piccolospec.MetaTemperature] = nil
	meta[piccolospec.MetaTemperatureUnits] = piccolospec.TemperatureUnitsCelsius
	w.meta = meta
	return meta
}

func (w *Worker) saturationLevel() float64 {
	meta := w.Meta()
	v, _ := meta[piccolospec.MetaSaturationLevel].(float64)
	return v
}

// polyfitWavelengths fits a cubic through the pixel-index/wavelength
// pairs the way numpy.polyfit(arange(n), wavelengths, 3) did, returned
// lowest-order-first to match PiccoloSpectrum's calibration convention
// (coeff[::-1] in the original).
func polyfitWavelengths(wavelengths []float64) []float64 {
	n := len(wavelengths)
	if n == 0 {
		return []float64{0, 1, 0, 0}
	}
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return polyfit(xs, wavelengths, 3)
}

func clampInt64(t, lo, hi int64) int64 {
	if t < lo {
		return lo
	}
	if t > hi {
		return hi
	}
	return t
}
