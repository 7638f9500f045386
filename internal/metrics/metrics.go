// Package metrics exposes the instrument controller's operational state
// as Prometheus gauges/counters: one registry owned by this package, a
// metric per spec.md's C9, grounded on the pack's common
// prometheus/client_golang usage (see
// 99souls-ariadne/engine/monitoring/monitoring.go's
// NewCounterVec/NewGaugeVec-plus-custom-registry pattern).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TeamPiccolo/piccolo3-server/internal/events"
	"github.com/TeamPiccolo/piccolo3-server/internal/piccolospec"
)

// Metrics owns every gauge/counter this service exports and the
// private registry they are attached to.
type Metrics struct {
	registry *prometheus.Registry

	SpectrometerStatus   *prometheus.GaugeVec
	ControllerBusy       prometheus.Gauge
	ControllerPaused     prometheus.Gauge
	SchedulerQueueDepth  prometheus.Gauge
	AutointegrationRound *prometheus.CounterVec
	SpectraWritten       prometheus.Counter
	WriterErrors         prometheus.Counter
}

const namespace = "piccolo"

// New constructs and registers every metric against a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		SpectrometerStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spectrometer_status",
			Help:      "Current spectrometer worker status, as its ordinal (0=NO_WORKER .. 5=AUTOINTEGRATING)",
		}, []string{"serial"}),
		ControllerBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_busy",
			Help:      "1 if the controller currently has an acquisition sequence in progress",
		}),
		ControllerPaused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_paused",
			Help:      "1 if the in-progress acquisition sequence is paused",
		}),
		SchedulerQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_queue_depth",
			Help:      "Number of active or suspended scheduled jobs",
		}),
		AutointegrationRound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autointegration_rounds_total",
			Help:      "Total number of autointegration fit rounds attempted, per channel",
		}, []string{"channel"}),
		SpectraWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spectra_written_total",
			Help:      "Total number of SpectraList files successfully written",
		}),
		WriterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writer_errors_total",
			Help:      "Total number of SpectraList writes that failed",
		}),
	}

	registry.MustRegister(
		m.SpectrometerStatus,
		m.ControllerBusy,
		m.ControllerPaused,
		m.SchedulerQueueDepth,
		m.AutointegrationRound,
		m.SpectraWritten,
		m.WriterErrors,
	)

	return m
}

// Registry returns the Prometheus registry these metrics are attached
// to, for mounting under an HTTP handler (e.g. promhttp.HandlerFor).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetControllerState updates the busy/paused gauges together.
func (m *Metrics) SetControllerState(busy, paused bool) {
	m.ControllerBusy.Set(boolToFloat(busy))
	m.ControllerPaused.Set(boolToFloat(paused))
}

// ObserveSpectrometer subscribes the serial-labelled status gauge to a
// worker's status notifier, and seeds it with the worker's current
// status so the gauge is never stale between the first status change.
func (m *Metrics) ObserveSpectrometer(serial string, current piccolospec.SpectrometerStatus, changed *events.Notifier[piccolospec.SpectrometerStatus]) {
	g := m.SpectrometerStatus.WithLabelValues(serial)
	g.Set(float64(current))
	changed.Subscribe(func(s piccolospec.SpectrometerStatus) {
		g.Set(float64(s))
	})
}

// RecordAutointegrationRound increments the per-channel round counter.
func (m *Metrics) RecordAutointegrationRound(channel string) {
	m.AutointegrationRound.WithLabelValues(channel).Inc()
}

// RecordWrite increments SpectraWritten or WriterErrors depending on
// whether a SpectraList write succeeded, satisfying internal/writer's
// writeMetrics interface.
func (m *Metrics) RecordWrite(ok bool) {
	if ok {
		m.SpectraWritten.Inc()
	} else {
		m.WriterErrors.Inc()
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
