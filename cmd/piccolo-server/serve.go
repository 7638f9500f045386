package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/TeamPiccolo/piccolo3-server/internal/conf"
	"github.com/TeamPiccolo/piccolo3-server/internal/controller"
	"github.com/TeamPiccolo/piccolo3-server/internal/device"
	"github.com/TeamPiccolo/piccolo3-server/internal/logging"
	"github.com/TeamPiccolo/piccolo3-server/internal/metrics"
	"github.com/TeamPiccolo/piccolo3-server/internal/perrors"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
	"github.com/TeamPiccolo/piccolo3-server/internal/power"
	"github.com/TeamPiccolo/piccolo3-server/internal/resource"
	"github.com/TeamPiccolo/piccolo3-server/internal/scheduler"
	"github.com/TeamPiccolo/piccolo3-server/internal/shutter"
	"github.com/TeamPiccolo/piccolo3-server/internal/spectrometer"
	"github.com/TeamPiccolo/piccolo3-server/internal/writer"
)

// schedulerPollInterval is how often the outer loop asks the scheduler
// for runnable jobs when the controller is idle, matching spec.md
// §4.5's "every ~1 s when not busy".
const schedulerPollInterval = time.Second

func runServe(cmd *cobra.Command, args []string) error {
	if printVersion {
		fmt.Println("piccolo-server", version)
		return nil
	}

	log := logging.ForComponent("server", "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()

	shutters, err := buildShutters(ctx, settings.Channels)
	if err != nil {
		return fatal(log, "initialising shutters", err)
	}

	spectrometers := buildSpectrometers(settings.Spectrometers)
	for serial, w := range spectrometers {
		sc := findSpectrometerConfig(settings.Spectrometers, serial)
		startSpectrometer(ctx, w, sc, m)
	}

	runs := piccolospec.NewRunStore(settings.Server.DataDir)

	out := writer.New(settings.Server.DataDir, settings.Output.QueueDepth, logging.ForComponent("writer", ""))
	out.SetMetrics(m)
	go out.Run()

	ctrl := controller.New(shutters, spectrometers, runs, out, logging.ForComponent("controller", ""))
	ctrl.SetMetrics(m)
	go ctrl.Run(ctx)

	store, err := scheduler.OpenStore(settings.Scheduler.DBPath)
	if err != nil {
		return fatal(log, "opening scheduler database", err)
	}
	sched, err := scheduler.New(store, logging.ForComponent("scheduler", ""))
	if err != nil {
		return fatal(log, "initialising scheduler", err)
	}

	signaller := buildPowerSignaller(ctx, log)

	srv := resource.New(resource.Deps{
		Shutters:      shutters,
		Spectrometers: spectrometers,
		Controller:    ctrl,
		Scheduler:     sched,
		Runs:          runs,
		DataDir:       settings.Server.DataDir,
		Mount:         settings.Server.Mount,
		Log:           logging.ForComponent("resource", ""),
	})
	srv.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	go pollScheduler(ctx, sched, ctrl, signaller, m, logging.ForComponent("scheduler-poll", ""))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(settings.Server.Bind) }()
	log.Info("piccolo server listening", "bind", settings.Server.Bind, "data_dir", settings.Server.DataDir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info("received shutdown signal")
	case err := <-serveErr:
		if err != nil {
			log.Error("resource server stopped unexpectedly", "error", err)
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Echo.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down http server", "error", err)
	}

	out.Stop()
	select {
	case <-out.Done():
	case <-time.After(5 * time.Second):
		log.Warn("writer did not drain before shutdown timeout")
	}

	return nil
}

// fatal wraps an error as a CategoryFatal perrors.Error and logs it
// before returning, matching spec.md §7's fatal-startup-failure policy:
// the process exits non-zero (via main's os.Exit on a non-nil Execute
// error) after logging.
func fatal(log *slog.Logger, what string, err error) error {
	wrapped := perrors.Fatal("startup", "%s: %v", what, err)
	log.Error(what, "error", err)
	return wrapped
}

func buildShutters(ctx context.Context, channels []conf.ChannelConfig) (*shutter.Registry, error) {
	reg := shutter.NewRegistry()
	for _, ch := range channels {
		log := logging.ForComponent("shutter", ch.Name)
		sh, err := shutter.New(ctx, ch.Name, device.DummyShutter{}, ch.Reverse, ch.FibreDiameter, log)
		if err != nil {
			return nil, fmt.Errorf("shutter %s: %w", ch.Name, err)
		}
		reg.Add(sh)
	}
	return reg, nil
}

func buildSpectrometers(cfgs []conf.SpectrometerConfig) map[string]*spectrometer.Worker {
	workers := make(map[string]*spectrometer.Worker, len(cfgs))
	for _, sc := range cfgs {
		log := logging.ForComponent("spectrometer", sc.Serial)
		workers[sc.Serial] = spectrometer.New(sc.Serial, sc.Channels, sc.WavelengthCalibrationPiccolo, dialFor(sc.Serial), log)
	}
	return workers
}

func findSpectrometerConfig(cfgs []conf.SpectrometerConfig, serial string) conf.SpectrometerConfig {
	for _, sc := range cfgs {
		if sc.Serial == serial {
			return sc
		}
	}
	return conf.SpectrometerConfig{Serial: serial}
}

// dialFor returns the worker's connect hook for serial. A "dummy_"
// prefixed serial is simulated in-process per spec.md §4.2; any other
// serial has no physical USB backend wired in this build (GPIO/USB
// device drivers are an external collaborator per spec.md §1), so its
// Dial always fails and the worker's connect loop retries every 5s,
// exactly the behaviour spec.md describes for an unreachable device.
func dialFor(serial string) spectrometer.Dial {
	return func(ctx context.Context) (device.Spectrometer, error) {
		if strings.HasPrefix(serial, "dummy_") {
			return device.NewDummySpectrometer(serial, 2048, time.Now().UnixNano()), nil
		}
		return nil, fmt.Errorf("no physical spectrometer backend wired for serial %s", serial)
	}
}

// startSpectrometer launches a worker's goroutine, subscribes its
// status to the metrics registry, then connects it and applies its
// configured integration-time bounds, all off the main startup path so
// a slow or absent real device never delays the HTTP listener coming
// up.
func startSpectrometer(ctx context.Context, w *spectrometer.Worker, sc conf.SpectrometerConfig, m *metrics.Metrics) {
	w.SetMetrics(m)
	go w.Run(ctx)
	m.ObserveSpectrometer(w.Serial(), w.Status(), &w.StatusChanged)

	go func() {
		w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdConnect})
		if sc.MinIntegMS > 0 {
			w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdSetMin, IntArg: sc.MinIntegMS})
		}
		if sc.MaxIntegMS > 0 {
			w.Submit(ctx, spectrometer.Command{Kind: spectrometer.CmdSetMax, IntArg: sc.MaxIntegMS})
		}
	}()
}

func buildPowerSignaller(ctx context.Context, log *slog.Logger) *power.Signaller {
	if !settings.MQTT.Enabled {
		return nil
	}
	client := power.NewClient(settings.MQTT.Broker, "piccolo-server", settings.MQTT.Username, settings.MQTT.Password)
	if err := client.Connect(ctx); err != nil {
		log.Error("connecting to mqtt broker", "error", err)
	}
	return power.NewSignaller(client, settings.MQTT.Topic, logging.ForComponent("power", ""))
}

// pollScheduler is the cooperative poller spec.md §4.5/§5 describes:
// every schedulerPollInterval, when the controller is idle, it asks the
// scheduler for due jobs and hands each one to the controller or the
// power signaller.
func pollScheduler(ctx context.Context, sched *scheduler.Scheduler, ctrl *controller.Controller, signaller *power.Signaller, m *metrics.Metrics, log *slog.Logger) {
	ticker := time.NewTicker(schedulerPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := sched.QueueDepth(); err == nil {
				m.SchedulerQueueDepth.Set(float64(depth))
			}
			if ctrl.Busy() {
				continue
			}
			jobs, err := sched.RunnableJobs(time.Now())
			if err != nil {
				log.Error("polling scheduler for runnable jobs", "error", err)
				continue
			}
			for _, job := range jobs {
				dispatchJob(ctx, ctrl, signaller, log, job)
			}
		}
	}
}
