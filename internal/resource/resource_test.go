package resource

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
	"github.com/TeamPiccolo/piccolo3-server/internal/writer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dummySpectrometerDial(serial string) spectrometer.Dial {
	return func(ctx context.Context) (device.Spectrometer, error) {
		d := device.NewDummySpectrometer(serial, 512, 1)
		if err := d.Open(ctx); err != nil {
			return nil, err
		}
		return d, nil
	}
}

// testHarness wires up every real (non-test-double) component the
// resource tree needs, the way cmd/piccolo-server will, so the resource
// handlers are exercised against their actual collaborators rather than
// mocks.
type testHarness struct {
	Server     *Server
	Controller *controller.Controller
	Scheduler  *scheduler.Scheduler
	Spec1      *spectrometer.Worker
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	log := discardLogger()

	shutters := shutter.NewRegistry()
	up, err := shutter.New(context.Background(), "upwelling", device.DummyShutter{}, false, 400, log)
	require.NoError(t, err)
	shutters.Add(up)

	spec1 := spectrometer.New("SPEC1", []string{"upwelling"}, nil, dummySpectrometerDial("SPEC1"), log)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go spec1.Run(ctx)
	require.True(t, spec1.Submit(context.Background(), spectrometer.Command{Kind: spectrometer.CmdConnect}).OK)

	specs := map[string]*spectrometer.Worker{"SPEC1": spec1}

	runs := piccolospec.NewRunStore(t.TempDir())

	out := writer.New(t.TempDir(), 16, log)
	go out.Run()
	t.Cleanup(out.Stop)

	ctrl := controller.New(shutters, specs, runs, out, log)
	go ctrl.Run(ctx)

	store, err := scheduler.OpenMemoryStore()
	require.NoError(t, err)
	sched, err := scheduler.New(store, log)
	require.NoError(t, err)

	srv := New(Deps{
		Shutters:      shutters,
		Spectrometers: specs,
		Controller:    ctrl,
		Scheduler:     sched,
		Runs:          runs,
		DataDir:       "/data",
		Mount:         "/mnt/data",
		Log:           log,
	})

	return &testHarness{Server: srv, Controller: ctrl, Scheduler: sched, Spec1: spec1}
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.Server.Echo.ServeHTTP(rec, req)
	return rec
}
