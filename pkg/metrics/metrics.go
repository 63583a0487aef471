// Package metrics exposes receiver counters and gauges to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coldremote"

// Metrics holds the receiver's collectors on a private registry, so several
// receivers (and tests) can run in one process.
type Metrics struct {
	registry *prometheus.Registry

	frames        prometheus.Counter
	framesDropped prometheus.Counter
	rejections    *prometheus.CounterVec
	accepted      prometheus.Counter
	alarms        *prometheus.CounterVec
	storeErrors   prometheus.Counter

	lastSequence    prometheus.Gauge
	lastTemperature prometheus.Gauge
	lastAccepted    prometheus.Gauge
	alive           prometheus.Gauge
}

// New creates and registers the receiver metrics.
// rejectionReasons pre-populates the rejection counter so every reason is
// exported from the start.
func New(rejectionReasons []string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Number of radio frames received",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Number of radio frames dropped because the frame queue was full",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Number of rejected frames and messages by reason",
		}, []string{"reason"}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_accepted_total",
			Help:      "Number of authenticated, fresh readings",
		}),
		alarms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "temperature_alarms_total",
			Help:      "Number of readings outside the temperature limits",
		}, []string{"alarm"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Number of readings that could not be persisted",
		}),
		lastSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sequence",
			Help:      "Sequence number of the last accepted reading",
		}),
		lastTemperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_temperature_celsius",
			Help:      "Temperature of the last accepted reading",
		}),
		lastAccepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_accepted_timestamp_seconds",
			Help:      "Unix time of the last accepted reading",
		}),
		alive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "link_alive",
			Help:      "1 while readings arrive within the watchdog timeout",
		}),
	}

	m.registry.MustRegister(
		m.frames,
		m.framesDropped,
		m.rejections,
		m.accepted,
		m.alarms,
		m.storeErrors,
		m.lastSequence,
		m.lastTemperature,
		m.lastAccepted,
		m.alive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	for _, reason := range rejectionReasons {
		m.rejections.WithLabelValues(reason)
	}
	return m
}

// FrameReceived counts one inbound frame.
func (m *Metrics) FrameReceived() {
	m.frames.Inc()
}

// FrameDropped counts one frame lost to a full queue.
func (m *Metrics) FrameDropped() {
	m.framesDropped.Inc()
}

// Rejected counts one rejection.
func (m *Metrics) Rejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

// Accepted records an accepted reading.
func (m *Metrics) Accepted(sequence uint32, temperature float32, at time.Time) {
	m.accepted.Inc()
	m.lastSequence.Set(float64(sequence))
	m.lastTemperature.Set(float64(temperature))
	m.lastAccepted.Set(float64(at.UnixNano()) / 1e9)
}

// Alarm counts a reading outside the temperature limits.
func (m *Metrics) Alarm(alarm string) {
	m.alarms.WithLabelValues(alarm).Inc()
}

// StoreError counts a failed history write.
func (m *Metrics) StoreError() {
	m.storeErrors.Inc()
}

// SetAlive sets the link liveness gauge.
func (m *Metrics) SetAlive(alive bool) {
	if alive {
		m.alive.Set(1)
	} else {
		m.alive.Set(0)
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
