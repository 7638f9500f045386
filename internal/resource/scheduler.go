package resource

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

// initSchedulerRoutes registers /control/scheduler/{jobs,quietTimeEnabled,
// quietStart,quietEnd,powerOffEnabled,powerDelay,suspend,unsuspend,delete},
// mirroring spec.md's C7 endpoint tree: jobs is GET (list) and POST (add),
// suspend/unsuspend/delete are flat mutations taking the job id as their
// argument rather than a path-derived id.
func (s *Server) initSchedulerRoutes() {
	g := s.Echo.Group("/control/scheduler")
	g.GET("/jobs", s.getJobs)
	g.POST("/jobs", s.addJob)
	g.POST("/suspend", s.suspendJob)
	g.POST("/unsuspend", s.unsuspendJob)
	g.POST("/delete", s.deleteJob)
	g.GET("/quietTimeEnabled", s.getQuietTimeEnabled)
	g.POST("/quietTimeEnabled", s.setQuietTimeEnabled)
	g.GET("/quietStart", s.getQuietStart)
	g.POST("/quietStart", s.setQuietStart)
	g.GET("/quietEnd", s.getQuietEnd)
	g.POST("/quietEnd", s.setQuietEnd)
	g.GET("/powerOffEnabled", s.getPowerOffEnabled)
	g.POST("/powerOffEnabled", s.setPowerOffEnabled)
	g.GET("/powerDelay", s.getPowerDelay)
	g.POST("/powerDelay", s.setPowerDelay)
}

func (s *Server) getJobs(c echo.Context) error {
	jobs, err := s.scheduler.Jobs()
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, jobs)
}

func (s *Server) addJob(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var command string
	if err := args.String(0, "command", &command); err != nil {
		return err
	}
	var startUnix int64
	if err := args.Int64(1, "start", &startUnix); err != nil {
		return err
	}
	var intervalSeconds float64
	hasInterval, err := args.OptionalFloat64(2, "interval", &intervalSeconds)
	if err != nil {
		return err
	}
	var endUnix int64
	hasEnd, err := args.OptionalInt64(3, "end", &endUnix)
	if err != nil {
		return err
	}
	var ignoreQuietTime bool
	if _, err := args.OptionalBool(4, "ignoreQuietTime", &ignoreQuietTime); err != nil {
		return err
	}

	var interval *time.Duration
	if hasInterval {
		d := time.Duration(intervalSeconds * float64(time.Second))
		interval = &d
	}
	var end *time.Time
	if hasEnd {
		t := time.Unix(endUnix, 0).UTC()
		end = &t
	}

	job := piccolospec.Job{Command: command}
	start := time.Unix(startUnix, 0).UTC()
	scheduled, err := s.scheduler.Add(job, start, interval, end, ignoreQuietTime)
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, scheduled)
}

func (s *Server) jobID(args mutationArgs) (int64, error) {
	var id int64
	if err := args.Int64(0, "id", &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *Server) suspendJob(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	id, err := s.jobID(args)
	if err != nil {
		return err
	}
	if err := s.scheduler.Suspend(id); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "suspended")
}

func (s *Server) unsuspendJob(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	id, err := s.jobID(args)
	if err != nil {
		return err
	}
	if err := s.scheduler.Unsuspend(id); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "unsuspended")
}

func (s *Server) deleteJob(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	id, err := s.jobID(args)
	if err != nil {
		return err
	}
	if err := s.scheduler.Delete(id); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "deleted")
}

func (s *Server) getQuietTimeEnabled(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Settings().QuietTimeEnabled)
}

func (s *Server) setQuietTimeEnabled(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var enabled bool
	if err := args.Bool(0, "enabled", &enabled); err != nil {
		return err
	}
	if err := s.scheduler.SetQuietTimeEnabled(enabled); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, enabled)
}

func (s *Server) getQuietStart(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Settings().QuietStart.Seconds())
}

func (s *Server) setQuietStart(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var seconds float64
	if err := args.Float64(0, "seconds", &seconds); err != nil {
		return err
	}
	d := time.Duration(seconds * float64(time.Second))
	if err := s.scheduler.SetQuietStart(d); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, seconds)
}

func (s *Server) getQuietEnd(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Settings().QuietEnd.Seconds())
}

func (s *Server) setQuietEnd(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var seconds float64
	if err := args.Float64(0, "seconds", &seconds); err != nil {
		return err
	}
	d := time.Duration(seconds * float64(time.Second))
	if err := s.scheduler.SetQuietEnd(d); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, seconds)
}

func (s *Server) getPowerOffEnabled(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Settings().PowerOffEnabled)
}

func (s *Server) setPowerOffEnabled(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var enabled bool
	if err := args.Bool(0, "enabled", &enabled); err != nil {
		return err
	}
	if err := s.scheduler.SetPowerOffEnabled(enabled); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, enabled)
}

func (s *Server) getPowerDelay(c echo.Context) error {
	return c.JSON(http.StatusOK, s.scheduler.Settings().PowerDelay.Seconds())
}

func (s *Server) setPowerDelay(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var seconds float64
	if err := args.Float64(0, "seconds", &seconds); err != nil {
		return err
	}
	d := time.Duration(seconds * float64(time.Second))
	if err := s.scheduler.SetPowerDelay(d); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, seconds)
}
