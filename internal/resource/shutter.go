package resource

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// initShutterRoutes registers /shutter/shutters and
// /shutter/{name}/{reverse,fibre_diameter,open_shutter,close_shutter,status}.
func (s *Server) initShutterRoutes() {
	g := s.Echo.Group("/shutter")
	g.GET("/shutters", s.getShutterNames)

	named := g.Group("/:name")
	named.GET("/reverse", s.getShutterReverse)
	named.GET("/fibre_diameter", s.getShutterFibreDiameter)
	named.GET("/status", s.getShutterStatus)
	named.POST("/open_shutter", s.openShutter)
	named.POST("/close_shutter", s.closeShutter)
}

func (s *Server) getShutterNames(c echo.Context) error {
	return c.JSON(http.StatusOK, s.shutters.Channels())
}

func (s *Server) getShutterReverse(c echo.Context) error {
	sh, ok := s.shutters.Get(c.Param("name"))
	if !ok {
		return notFound("shutter", c.Param("name"))
	}
	return c.JSON(http.StatusOK, sh.Reverse())
}

func (s *Server) getShutterFibreDiameter(c echo.Context) error {
	sh, ok := s.shutters.Get(c.Param("name"))
	if !ok {
		return notFound("shutter", c.Param("name"))
	}
	return c.JSON(http.StatusOK, sh.FibreDiameter())
}

func (s *Server) getShutterStatus(c echo.Context) error {
	sh, ok := s.shutters.Get(c.Param("name"))
	if !ok {
		return notFound("shutter", c.Param("name"))
	}
	return c.JSON(http.StatusOK, sh.Status())
}

func (s *Server) openShutter(c echo.Context) error {
	sh, ok := s.shutters.Get(c.Param("name"))
	if !ok {
		return notFound("shutter", c.Param("name"))
	}
	if err := sh.Open(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, sh.Status())
}

func (s *Server) closeShutter(c echo.Context) error {
	sh, ok := s.shutters.Get(c.Param("name"))
	if !ok {
		return notFound("shutter", c.Param("name"))
	}
	if err := sh.Close(c.Request().Context()); err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, sh.Status())
}
