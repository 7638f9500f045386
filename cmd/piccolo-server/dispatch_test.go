package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/power"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
	"github.com/TeamPiccolo/piccolo3-server/internal/writer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobString(t *testing.T) {
	require.Equal(t, "run1", jobString([]any{"run1", 3.0}, 0, ""))
	require.Equal(t, "fallback", jobString([]any{"run1"}, 1, "fallback"))
	require.Equal(t, "fallback", jobString([]any{3.0}, 0, "fallback"))
}

func TestJobFloat(t *testing.T) {
	require.Equal(t, 5.0, jobFloat([]any{"run1", 5.0}, 1, 0))
	require.Equal(t, 7.0, jobFloat([]any{7}, 0, 0))
	require.Equal(t, 80.0, jobFloat([]any{"run1"}, 3, 80))
	require.Equal(t, 80.0, jobFloat([]any{"not-a-number"}, 0, 80))
}

// fakePublisher is an in-package Publisher recording what it was asked
// to publish, standing in for the real MQTT client the way
// internal/power's own tests do.
type fakePublisher struct {
	mu    sync.Mutex
	topic string
	msg   string
}

func (f *fakePublisher) Connect(ctx context.Context) error { return nil }

func (f *fakePublisher) Publish(ctx context.Context, topic, payload string, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic, f.msg = topic, payload
	return nil
}

func (f *fakePublisher) IsConnected() bool { return true }

func (f *fakePublisher) Disconnect() {}

func newTestController(t *testing.T) *controller.Controller {
	t.Helper()
	log := discardLogger()

	reg := shutter.NewRegistry()
	sh, err := shutter.New(context.Background(), "upwelling", device.DummyShutter{}, false, 400, log)
	require.NoError(t, err)
	reg.Add(sh)

	dial := func(ctx context.Context) (device.Spectrometer, error) {
		d := device.NewDummySpectrometer("SPEC1", 512, 1)
		if err := d.Open(ctx); err != nil {
			return nil, err
		}
		return d, nil
	}
	spec := spectrometer.New("SPEC1", []string{"upwelling"}, nil, dial, log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go spec.Run(ctx)
	require.True(t, spec.Submit(context.Background(), spectrometer.Command{Kind: spectrometer.CmdConnect}).OK)

	runs := piccolospec.NewRunStore(t.TempDir())
	out := writer.New(t.TempDir(), 16, log)
	go out.Run()
	t.Cleanup(out.Stop)

	ctrl := controller.New(reg, map[string]*spectrometer.Worker{"SPEC1": spec}, runs, out, log)
	go ctrl.Run(ctx)
	return ctrl
}

func TestDispatchJobRecordSequence(t *testing.T) {
	ctrl := newTestController(t)
	log := discardLogger()

	job := piccolospec.Job{Command: "record_sequence", Args: []any{"run1", 1.0, -1.0, 0.0, 80.0}}
	dispatchJob(context.Background(), ctrl, nil, log, job)

	require.Eventually(t, func() bool { return !ctrl.Busy() }, 6*time.Second, 10*time.Millisecond)
}

func TestDispatchJobPowerOff(t *testing.T) {
	pub := &fakePublisher{}
	signaller := power.NewSignaller(pub, "site", discardLogger())

	dispatchJob(context.Background(), nil, signaller, discardLogger(), piccolospec.Job{Command: "power_off"})

	require.Equal(t, "site/power", pub.topic)
	require.Equal(t, "off", pub.msg)
}

func TestDispatchJobUnknownCommand(t *testing.T) {
	// An unrecognised command must not panic with nil controller/signaller.
	dispatchJob(context.Background(), nil, nil, discardLogger(), piccolospec.Job{Command: "bogus"})
}
