package resource

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetShutterNames(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/shutter/shutters", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"upwelling"}, names)
}

func TestShutterOpenCloseRoundTrip(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/shutter/upwelling/open_shutter", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/shutter/upwelling/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "open", status)

	rec = h.do(t, http.MethodPost, "/shutter/upwelling/close_shutter", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUnknownShutterReturns404(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)
	rec := h.do(t, http.MethodGet, "/shutter/nope/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
