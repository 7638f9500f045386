package resource

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
)

// handleError maps a component error to one of the three response
// classes spec.md §6 names: domain errors and a busy controller are
// both surfaced as the caller's fault (400, per §7's "busy is
// surfaced similarly to domain warnings"), a device fault or anything
// uncategorised is an internal error (500, per §7's "device faults are
// surfaced as internal error"). perrors.CategoryFatal never reaches
// here — it is a startup-only condition handled in cmd/piccolo-server.
func handleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}
	category, ok := perrors.CategoryOf(err)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	switch category {
	case perrors.CategoryDomain, perrors.CategoryBusy:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case perrors.CategoryDevice:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// notFound is used for path-derived lookups (unknown shutter channel,
// unknown spectrometer serial) that aren't themselves perrors.Error
// values.
func notFound(what, name string) error {
	return echo.NewHTTPError(http.StatusNotFound, what+" not found: "+name)
}
