package resource

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
)

// initSpectrometerRoutes registers /spectrometer/spectrometers,
// /spectrometer/channels, and the per-serial status/integration-time/
// TEC/autointegration subtree.
func (s *Server) initSpectrometerRoutes() {
	g := s.Echo.Group("/spectrometer")
	g.GET("/spectrometers", s.getSpectrometerSerials)
	g.GET("/channels", s.getSpectrometerChannels)

	named := g.Group("/:serial")
	named.GET("/status", s.getSpectrometerStatus)
	named.GET("/min_time", s.getMinTime)
	named.POST("/min_time", s.setMinTime)
	named.GET("/max_time", s.getMaxTime)
	named.POST("/max_time", s.setMaxTime)
	named.GET("/current_time/:channel", s.getCurrentTime)
	named.POST("/current_time/:channel", s.setCurrentTime)
	named.POST("/autointegration/:channel", s.startAutointegration)
	named.GET("/autointegration/:channel", s.getAutoStatus)
	named.GET("/haveTEC", s.getHaveTEC)
	named.GET("/TECenabled", s.getTECEnabled)
	named.POST("/TECenabled", s.setTECEnabled)
	named.GET("/current_temperature", s.getCurrentTemperature)
	named.GET("/target_temperature", s.getTargetTemperature)
	named.POST("/target_temperature", s.setTargetTemperature)
}

func (s *Server) worker(c echo.Context) (*spectrometer.Worker, error) {
	w, ok := s.spectrometers[c.Param("serial")]
	if !ok {
		return nil, notFound("spectrometer", c.Param("serial"))
	}
	return w, nil
}

func (s *Server) getSpectrometerSerials(c echo.Context) error {
	serials := make([]string, 0, len(s.spectrometers))
	for serial := range s.spectrometers {
		serials = append(serials, serial)
	}
	return c.JSON(http.StatusOK, serials)
}

func (s *Server) getSpectrometerChannels(c echo.Context) error {
	seen := make(map[string]struct{})
	channels := make([]string, 0)
	for _, w := range s.spectrometers {
		for _, ch := range w.Channels() {
			if _, ok := seen[ch]; !ok {
				seen[ch] = struct{}{}
				channels = append(channels, ch)
			}
		}
	}
	return c.JSON(http.StatusOK, channels)
}

func (s *Server) getSpectrometerStatus(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.Status().String())
}

func (s *Server) getMinTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.MinIntegrationTime())
}

func (s *Server) setMinTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var value int64
	if err := args.Int64(0, "value", &value); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdSetMin, IntArg: value})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, w.MinIntegrationTime())
}

func (s *Server) getMaxTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.MaxIntegrationTime())
}

func (s *Server) setMaxTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var value int64
	if err := args.Int64(0, "value", &value); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdSetMax, IntArg: value})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, w.MaxIntegrationTime())
}

func (s *Server) getCurrentTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.CurrentIntegrationTime(c.Param("channel")))
}

func (s *Server) setCurrentTime(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var value int64
	if err := args.Int64(0, "value", &value); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{
		Kind:    spectrometer.CmdSetCurrent,
		Channel: c.Param("channel"),
		IntArg:  value,
	})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, w.CurrentIntegrationTime(c.Param("channel")))
}

func (s *Server) startAutointegration(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var target float64
	if _, err := args.OptionalFloat64(0, "target", &target); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{
		Kind:     spectrometer.CmdAutointegration,
		Channel:  c.Param("channel"),
		FloatArg: target,
	})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, "autointegration started")
}

func (s *Server) getAutoStatus(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.Auto(c.Param("channel")).String())
}

func (s *Server) getHaveTEC(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdHaveTEC})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, result.Value)
}

func (s *Server) getTECEnabled(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.TECEnabled())
}

func (s *Server) setTECEnabled(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var enabled bool
	if err := args.Bool(0, "enabled", &enabled); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdEnableTEC, BoolArg: enabled})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, enabled)
}

func (s *Server) getCurrentTemperature(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdCurrentTemp})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, result.Value)
}

func (s *Server) getTargetTemperature(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, w.TargetTemperature())
}

func (s *Server) setTargetTemperature(c echo.Context) error {
	w, err := s.worker(c)
	if err != nil {
		return err
	}
	args, err := decodeMutation(c)
	if err != nil {
		return err
	}
	var celsius float64
	if err := args.Float64(0, "celsius", &celsius); err != nil {
		return err
	}
	result := w.Submit(c.Request().Context(), spectrometer.Command{Kind: spectrometer.CmdTargetTemp, FloatArg: celsius})
	if result.Err != nil {
		return handleError(c, result.Err)
	}
	return c.JSON(http.StatusOK, celsius)
}
