package resource

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
)

func TestHandleErrorMapsCategories(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"domain", perrors.Domain("x", "bad value"), http.StatusBadRequest},
		{"busy", perrors.Busy("x", "busy now"), http.StatusBadRequest},
		{"device", perrors.Device("x", "device fault"), http.StatusInternalServerError},
		{"uncategorised", assertErr{"boom"}, http.StatusInternalServerError},
		{"nil", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := handleError(nil, tc.err)
			if tc.err == nil {
				assert.Nil(t, got)
				return
			}
			httpErr, ok := got.(*echo.HTTPError)
			require.True(t, ok)
			assert.Equal(t, tc.want, httpErr.Code)
		})
	}
}

func TestNotFoundReturnsHTTP404(t *testing.T) {
	t.Parallel()
	err := notFound("shutter", "nope")
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
