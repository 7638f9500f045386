package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

func TestSetControllerState(t *testing.T) {
	t.Parallel()
	m := New()

	m.SetControllerState(true, false)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ControllerBusy))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ControllerPaused))

	m.SetControllerState(false, true)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ControllerBusy))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ControllerPaused))
}

func TestObserveSpectrometerSeedsAndTracksStatus(t *testing.T) {
	t.Parallel()
	m := New()
	var notifier events.Notifier[piccolospec.SpectrometerStatus]

	m.ObserveSpectrometer("SN123", piccolospec.StatusDisconnected, &notifier)
	g, err := m.SpectrometerStatus.GetMetricWithLabelValues("SN123")
	require.NoError(t, err)
	assert.Equal(t, float64(piccolospec.StatusDisconnected), testutil.ToFloat64(g))

	notifier.Publish(piccolospec.StatusIdle)
	assert.Equal(t, float64(piccolospec.StatusIdle), testutil.ToFloat64(g))
}

func TestRecordAutointegrationRound(t *testing.T) {
	t.Parallel()
	m := New()

	m.RecordAutointegrationRound("vis")
	m.RecordAutointegrationRound("vis")
	m.RecordAutointegrationRound("nir")

	g, err := m.AutointegrationRound.GetMetricWithLabelValues("vis")
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(g))
}
