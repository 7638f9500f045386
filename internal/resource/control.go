package resource

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
)

// initControlRoutes registers /control/{status,current_sequence,
// numSequences,autointegration,delay,target,record_sequence,record_dark,
// auto,abort,pause,status/observe}.
func (s *Server) initControlRoutes() {
	g := s.Echo.Group("/control")
	g.GET("/status", s.getControlStatus)
	g.GET("/status/observe", s.observeControlStatus)
	g.GET("/current_sequence", s.getCurrentSequence)
	g.GET("/numSequences", s.getNumSequences)
	g.GET("/autointegration", s.getAutointegrationInterval)
	g.GET("/delay", s.getDelay)
	g.GET("/target", s.getTarget)
	g.POST("/record_sequence", s.recordSequence)
	g.POST("/record_dark", s.recordDark)
	g.POST("/auto", s.autointegrate)
	g.POST("/abort", s.abort)
	g.POST("/pause", s.pause)
}

func (s *Server) getControlStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, controlStatus{
		Status:          s.controller.Status(),
		Busy:            s.controller.Busy(),
		Paused:          s.controller.Paused(),
		CurrentSequence: s.controller.CurrentSequence(),
	})
}

func (s *Server) observeControlStatus(c echo.Context) error {
	return serveSSE(c, s.control)
}

func (s *Server) getCurrentSequence(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.CurrentSequence())
}

func (s *Server) getNumSequences(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.NumSequences())
}

func (s *Server) getAutointegrationInterval(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.AutointegrationInterval())
}

func (s *Server) getDelay(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Delay().Seconds())
}

func (s *Server) getTarget(c echo.Context) error {
	return c.JSON(http.StatusOK, s.controller.Target())
}

func (s *Server) recordSequence(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var run string
	if err := args.String(0, "run", &run); err != nil {
		return err
	}
	var nsequence int64
	if err := args.Int64(1, "nsequence", &nsequence); err != nil {
		return err
	}
	var auto int64
	if _, err := args.OptionalInt64(2, "auto", &auto); err != nil {
		return err
	}
	var delaySeconds float64
	if _, err := args.OptionalFloat64(3, "delay", &delaySeconds); err != nil {
		return err
	}
	var target float64
	if _, err := args.OptionalFloat64(4, "target", &target); err != nil {
		return err
	}
	recordArgs := controller.RecordArgs{
		Run:       run,
		NSequence: int(nsequence),
		Auto:      int(auto),
		Delay:     time.Duration(delaySeconds * float64(time.Second)),
		Target:    target,
	}
	if err := s.controller.RecordSequence(c.Request().Context(), recordArgs); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "record sequence started")
}

func (s *Server) recordDark(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var run string
	if err := args.String(0, "run", &run); err != nil {
		return err
	}
	if err := s.controller.RecordDark(c.Request().Context(), controller.DarkArgs{Run: run}); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "dark recording started")
}

func (s *Server) autointegrate(c echo.Context) error {
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var target float64
	if _, err := args.OptionalFloat64(0, "target", &target); err != nil {
		return err
	}
	if err := s.controller.Autointegrate(c.Request().Context(), target); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "autointegration started")
}

func (s *Server) abort(c echo.Context) error {
	if err := s.controller.Abort(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, "aborted")
}

func (s *Server) pause(c echo.Context) error {
	if err := s.controller.Pause(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, s.controller.Paused())
}
