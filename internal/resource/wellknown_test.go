package resource

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWellKnownCoreListsRegisteredResources(t *testing.T) {
	t.Parallel()
	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/.well-known/core", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/link-format", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "</shutter/shutters>")
	assert.Contains(t, body, "</control/status>")
	assert.NotContains(t, body, "/.well-known/core>")
}
