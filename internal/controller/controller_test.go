package controller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
	"github.com/TeamPiccolo/piccolo3-server/internal/writer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestController(t *testing.T, channels []string) (*Controller, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := shutter.NewRegistry()
	for _, ch := range channels {
		sh, err := shutter.New(ctx, ch, nil, false, 600, discardLogger())
		require.NoError(t, err)
		reg.Add(sh)
	}

	specs := make(map[string]*spectrometer.Worker)
	w := spectrometer.New("dummy_1", channels, nil, func(ctx context.Context) (device.Spectrometer, error) {
		d := device.NewDummySpectrometer("dummy_1", 256, 1)
		require.NoError(t, d.Open(ctx))
		return d, nil
	}, discardLogger())
	go w.Run(ctx)
	require.True(t, w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdConnect}).OK)
	require.True(t, w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdSetMax, IntArg: 200}).OK)
	for _, ch := range channels {
		require.True(t, w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdSetCurrent, Channel: ch, IntArg: 5}).OK)
	}
	specs["dummy_1"] = w

	dir := t.TempDir()
	runs := piccolospec.NewRunStore(dir)

	out := writer.New(dir, 8, discardLogger())
	go out.Run()
	t.Cleanup(out.Stop)

	c := New(reg, specs, runs, out, discardLogger())
	go c.Run(ctx)

	return c, dir
}

func TestRecordSequenceWritesExpectedFiles(t *testing.T) {
	c, dir := newTestController(t, []string{"upwelling", "downwelling"})
	ctx := context.Background()

	err := c.RecordSequence(ctx, RecordArgs{Run: "run1", NSequence: 2, Auto: -1, Delay: 0})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return !c.Busy() }, 5*time.Second, 10*time.Millisecond)

	runDir := filepath.Join(dir, "run1")
	entries, err := os.ReadDir(runDir)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["b0000_s00000.pico"])
	assert.True(t, names["b0000_s00001.pico"])

	data, err := os.ReadFile(filepath.Join(runDir, "b0000_s00000.pico"))
	require.NoError(t, err)
	var list piccolospec.SpectraList
	require.NoError(t, json.Unmarshal(data, &list))
	assert.Equal(t, "run1", list.Run)
	assert.NotEmpty(t, list.Spectra)
}

func TestRecordSequenceRejectsWhileBusy(t *testing.T) {
	c, _ := newTestController(t, []string{"upwelling"})
	ctx := context.Background()

	require.NoError(t, c.RecordSequence(ctx, RecordArgs{Run: "run1", NSequence: 3, Auto: -1, Delay: 50 * time.Millisecond}))
	require.Eventually(t, func() bool { return c.Busy() }, time.Second, 5*time.Millisecond)

	err := c.RecordSequence(ctx, RecordArgs{Run: "run1", NSequence: 1, Auto: -1})
	assert.Error(t, err)

	require.Eventually(t, func() bool { return !c.Busy() }, 5*time.Second, 10*time.Millisecond)
}

func TestAbortStopsSequence(t *testing.T) {
	c, _ := newTestController(t, []string{"upwelling"})
	ctx := context.Background()

	require.NoError(t, c.RecordSequence(ctx, RecordArgs{Run: "run1", NSequence: 10, Auto: -1, Delay: 200 * time.Millisecond}))
	require.Eventually(t, func() bool { return c.Busy() }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Abort(ctx))
	require.Eventually(t, func() bool { return !c.Busy() }, 5*time.Second, 10*time.Millisecond)
}
