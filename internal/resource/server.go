// Package resource maps the instrument's components onto an HTTP
// resource tree, standing in for the constrained-REST (CoAP) transport
// spec.md's C7 names as an external collaborator. Built with
// labstack/echo/v4 following the teacher's internal/api/v2 Controller
// shape: one struct owning the echo group, one initXRoutes method per
// subtree, one handler method per endpoint.
//
// Every mutation endpoint accepts a JSON body shaped as a single
// scalar, a positional array, a keyword object, or a two-element
// [positional, keyword] pair. Change notifications are served over SSE
// for two endpoints only: /data_dir/current_run/observe and
// /control/status/observe. Other mutations publish no change
// notification.
package resource

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
)

// Version is the build version reported by /sysinfo/version, set by
// the CLI's -ldflags at build time just like the teacher's buildDate.
var Version = "dev"

// Server owns the echo instance and every component the resource tree
// dispatches to.
type Server struct {
	Echo *echo.Echo

	shutters      *shutter.Registry
	spectrometers map[string]*spectrometer.Worker
	controller    *controller.Controller
	scheduler     *scheduler.Scheduler
	runs          *piccolospec.RunStore
	dataDir       string
	mount         string

	currentRun *broadcaster[string]
	control    *broadcaster[controlStatus]

	log *slog.Logger
}

// Deps collects everything the resource tree needs to dispatch against.
type Deps struct {
	Shutters      *shutter.Registry
	Spectrometers map[string]*spectrometer.Worker
	Controller    *controller.Controller
	Scheduler     *scheduler.Scheduler
	Runs          *piccolospec.RunStore
	DataDir       string
	Mount         string
	Log           *slog.Logger
}

// New builds a Server and registers every route. Routes are registered
// eagerly so /.well-known/core can enumerate the final tree.
func New(d Deps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())

	s := &Server{
		Echo:          e,
		shutters:      d.Shutters,
		spectrometers: d.Spectrometers,
		controller:    d.Controller,
		scheduler:     d.Scheduler,
		runs:          d.Runs,
		dataDir:       d.DataDir,
		mount:         d.Mount,
		currentRun:    newBroadcaster[string](),
		control:       newBroadcaster[controlStatus](),
		log:           d.Log,
	}

	s.watchComponents()

	s.initSysinfoRoutes()
	s.initDataDirRoutes()
	s.initShutterRoutes()
	s.initSpectrometerRoutes()
	s.initControlRoutes()
	s.initSchedulerRoutes()
	s.initWellKnownRoutes()

	return s
}

// watchComponents subscribes the server's broadcasters to the
// underlying components' change notifiers so an SSE client observing
// e.g. control/status sees every controller-originated transition.
func (s *Server) watchComponents() {
	s.controller.StatusChanged.Subscribe(func(status string) {
		s.control.Publish(controlStatus{Status: status, Busy: s.controller.Busy(), Paused: s.controller.Paused()})
	})
	s.controller.SequenceChanged.Subscribe(func(n int) {
		s.control.Publish(controlStatus{Status: "sequence", Busy: s.controller.Busy(), Paused: s.controller.Paused(), CurrentSequence: n})
	})
}

// controlStatus is the payload observed on /control/status.
type controlStatus struct {
	Status          string `json:"status"`
	Busy            bool   `json:"busy"`
	Paused          bool   `json:"paused"`
	CurrentSequence int    `json:"currentSequence,omitempty"`
}

// Start begins serving HTTP on addr. Blocks until the server stops or
// errors; a caller running this in a goroutine should call Shutdown
// from the main goroutine on ctx cancellation.
func (s *Server) Start(addr string) error {
	if err := s.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
