package resource

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/labstack/echo/v4"
)

// initSysinfoRoutes registers /sysinfo/{cpu,mem,host,clock,version}.
// Payload contents beyond version are out of scope per spec.md; these
// return minimal process-introspection values rather than the original
// daemon's full host/psutil snapshot.
func (s *Server) initSysinfoRoutes() {
	g := s.Echo.Group("/sysinfo")
	g.GET("/cpu", s.getSysinfoCPU)
	g.GET("/mem", s.getSysinfoMem)
	g.GET("/host", s.getSysinfoHost)
	g.GET("/clock", s.getSysinfoClock)
	g.GET("/version", s.getSysinfoVersion)
}

func (s *Server) getSysinfoCPU(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"numCPU": runtime.NumCPU()})
}

func (s *Server) getSysinfoMem(c echo.Context) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return c.JSON(http.StatusOK, map[string]any{"allocBytes": m.Alloc, "sysBytes": m.Sys})
}

func (s *Server) getSysinfoHost(c echo.Context) error {
	host, _ := os.Hostname()
	return c.JSON(http.StatusOK, map[string]any{"hostname": host, "os": runtime.GOOS, "arch": runtime.GOARCH})
}

func (s *Server) getSysinfoClock(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"now": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) getSysinfoVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"version": Version})
}
