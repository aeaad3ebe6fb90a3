package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pulse"

// Sink names used as the "sink" label on pulse_ingest_errors_total.
const (
	SinkHistory = "history"
	SinkCurrent = "current"
	SinkMQTT    = "mqtt"
	SinkInflux  = "influx"
)

// Metrics owns the Prometheus collectors for Pulse Core.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
type Metrics struct {
	registry *prometheus.Registry

	readings        prometheus.Counter
	discarded       prometheus.Counter
	eventsDropped   prometheus.Counter
	ingestDropped   prometheus.Counter
	sinkErrors      *prometheus.CounterVec
	channelStates   *prometheus.GaugeVec
	cacheDevices    prometheus.Gauge
	sessionActive   prometheus.Gauge
	sessionsEnded   prometheus.Counter
	scoringDuration prometheus.Histogram
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Readings normalized from driver samples.",
		}),
		discarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_discarded_total",
			Help:      "Driver samples discarded because the device id was not yet known.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_events_dropped_total",
			Help:      "Channel events dropped because a channel queue was full.",
		}),
		ingestDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_dropped_total",
			Help:      "Readings dropped because an ingest worker queue was full.",
		}),
		sinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Failed reading writes by sink.",
		}, []string{"sink"}),
		channelStates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channels",
			Help:      "Radio channels by lifecycle state.",
		}, []string{"state"}),
		cacheDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_devices",
			Help:      "Devices currently held in the latest-reading cache.",
		}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "lesson_active",
			Help:      "1 while a lesson is recording samples.",
		}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lessons_ended_total",
			Help:      "Lessons ended and scored.",
		}),
		scoringDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scoring_duration_seconds",
			Help:      "Time spent scoring a lesson, from sample read to result.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.readings,
		m.discarded,
		m.eventsDropped,
		m.ingestDropped,
		m.sinkErrors,
		m.channelStates,
		m.cacheDevices,
		m.sessionActive,
		m.sessionsEnded,
		m.scoringDuration,
	)

	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) IncReading() {
	if m != nil {
		m.readings.Inc()
	}
}

func (m *Metrics) IncDiscarded() {
	if m != nil {
		m.discarded.Inc()
	}
}

func (m *Metrics) IncChannelEventDropped() {
	if m != nil {
		m.eventsDropped.Inc()
	}
}

func (m *Metrics) IncIngestDropped() {
	if m != nil {
		m.ingestDropped.Inc()
	}
}

// IncSinkError counts a failed write to one of the Sink* destinations.
func (m *Metrics) IncSinkError(sink string) {
	if m != nil {
		m.sinkErrors.WithLabelValues(sink).Inc()
	}
}

// SetChannelStates replaces the per-state channel counts.
func (m *Metrics) SetChannelStates(counts map[string]int) {
	if m == nil {
		return
	}
	m.channelStates.Reset()
	for state, n := range counts {
		m.channelStates.WithLabelValues(state).Set(float64(n))
	}
}

func (m *Metrics) SetCacheDevices(n int) {
	if m != nil {
		m.cacheDevices.Set(float64(n))
	}
}

func (m *Metrics) SetSessionActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.sessionActive.Set(1)
	} else {
		m.sessionActive.Set(0)
	}
}

// ObserveSessionEnded records a scored lesson and how long scoring took.
func (m *Metrics) ObserveSessionEnded(scoring time.Duration) {
	if m == nil {
		return
	}
	m.sessionsEnded.Inc()
	m.scoringDuration.Observe(scoring.Seconds())
}
