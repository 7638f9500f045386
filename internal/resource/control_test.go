package resource

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetControlStatusDefaultsToIdle(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/control/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status controlStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.Status)
	assert.False(t, status.Busy)
	assert.False(t, status.Paused)
}

func TestRecordDarkDrivesStatusAndNumbers(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/record_dark", `["run1"]`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return !h.Controller.Busy()
	}, 2*time.Second, 10*time.Millisecond, "controller should finish the dark sequence")

	assert.Equal(t, "idle", h.Controller.Status())

	rec = h.do(t, http.MethodGet, "/data_dir/runs/run1/current_batch", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var batch int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &batch))
	assert.Equal(t, 0, batch)
}

func TestRecordSequenceExposesNumSequencesDelayAndTarget(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	body := `["run1", 2, 1, 0.01, 50]`
	rec := h.do(t, http.MethodPost, "/control/record_sequence", body)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/control/numSequences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var n int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, 2, n)

	rec = h.do(t, http.MethodGet, "/control/delay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var delay float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &delay))
	assert.InDelta(t, 0.01, delay, 1e-9)

	rec = h.do(t, http.MethodGet, "/control/target", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var target float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &target))
	assert.Equal(t, float64(50), target)

	require.Eventually(t, func() bool {
		return !h.Controller.Busy()
	}, 5*time.Second, 10*time.Millisecond, "controller should finish the sequence")
}

func TestAbortWhenIdleIsANoop(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodPost, "/control/abort", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPauseTogglesStatus(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/control/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var paused bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))
	assert.True(t, paused)

	rec = h.do(t, http.MethodPost, "/control/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &paused))
	assert.False(t, paused)
}

func TestAutointegrateRejectsOutOfRangeTarget(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodPost, "/control/auto", "150")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
