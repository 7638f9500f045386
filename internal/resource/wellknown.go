package resource

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// initWellKnownRoutes registers /.well-known/core, a CoRE link-format
// stand-in listing every other route already registered on the echo
// instance. Routes are enumerated lazily from s.Echo.Routes() so this
// reflects whatever initXRoutes calls ran before it, regardless of
// registration order.
func (s *Server) initWellKnownRoutes() {
	s.Echo.GET("/.well-known/core", s.getWellKnownCore)
}

func (s *Server) getWellKnownCore(c echo.Context) error {
	seen := make(map[string]struct{})
	var paths []string
	for _, r := range s.Echo.Routes() {
		if r.Path == "/.well-known/core" {
			continue
		}
		if _, ok := seen[r.Path]; ok {
			continue
		}
		seen[r.Path] = struct{}{}
		paths = append(paths, r.Path)
	}
	sort.Strings(paths)

	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("<")
		b.WriteString(p)
		b.WriteString(">")
	}
	return c.Blob(http.StatusOK, "application/link-format", []byte(b.String()))
}
