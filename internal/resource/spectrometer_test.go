package resource

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSpectrometerSerials(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/spectrometer/spectrometers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var serials []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &serials))
	assert.Equal(t, []string{"SPEC1"}, serials)
}

func TestSetAndGetMaxTime(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/spectrometer/SPEC1/max_time", "500")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/spectrometer/SPEC1/max_time", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var maxTime int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &maxTime))
	assert.Equal(t, int64(500), maxTime)
}

func TestTECEnabledRoundTrip(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/spectrometer/SPEC1/TECenabled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var enabled bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enabled))
	assert.False(t, enabled)

	rec = h.do(t, http.MethodPost, "/spectrometer/SPEC1/TECenabled", "true")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/spectrometer/SPEC1/TECenabled", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enabled))
	assert.True(t, enabled)
}

func TestTargetTemperatureRoundTrip(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/spectrometer/SPEC1/target_temperature", "-10.5")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/spectrometer/SPEC1/target_temperature", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var target float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &target))
	assert.Equal(t, -10.5, target)
}

func TestUnknownSpectrometerReturns404(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/spectrometer/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
