package resource

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initDataDirRoutes registers /data_dir/{datadir,mount,all_runs,
// current_run(observable)} and /data_dir/runs/{run}/{name,current_batch}.
// Only the SetCurrentRun/GetCurrentRun/NextBatch contract is a real
// collaborator per spec.md; everything else about run bookkeeping
// (listing by date, disk usage, mount management) is out of scope.
func (s *Server) initDataDirRoutes() {
	g := s.Echo.Group("/data_dir")
	g.GET("/datadir", s.getDataDir)
	g.GET("/mount", s.getMount)
	g.GET("/all_runs", s.getAllRuns)
	g.GET("/current_run", s.getCurrentRun)
	g.POST("/current_run", s.setCurrentRun)
	g.GET("/current_run/observe", s.observeCurrentRun)

	runs := g.Group("/runs/:run")
	runs.GET("/name", s.getRunName)
	runs.GET("/current_batch", s.getRunCurrentBatch)
}

func (s *Server) getDataDir(c echo.Context) error {
	return c.JSON(http.StatusOK, s.dataDir)
}

func (s *Server) getMount(c echo.Context) error {
	return c.JSON(http.StatusOK, s.mount)
}

func (s *Server) getAllRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, s.runs.Runs())
}

func (s *Server) getCurrentRun(c echo.Context) error {
	return c.JSON(http.StatusOK, s.runs.GetCurrentRun())
}

func (s *Server) setCurrentRun(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var name string
	if err := args.String(0, "run", &name); err != nil {
		return err
	}
	if _, err := s.runs.SetCurrentRun(name); err != nil {
		return handleError(c, err)
	}
	s.currentRun.Publish(name)
	return c.JSON(http.StatusOK, name)
}

func (s *Server) observeCurrentRun(c echo.Context) error {
	return serveSSE(c, s.currentRun)
}

func (s *Server) getRunName(c echo.Context) error {
	name := c.Param("run")
	run, err := s.runs.GetOrCreateRun(name)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run.Name)
}

func (s *Server) getRunCurrentBatch(c echo.Context) error {
	name := c.Param("run")
	run, err := s.runs.GetOrCreateRun(name)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, run.CurrentBatch())
}
