package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/status"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	plantSeverity     prometheus.Gauge
	machines          *prometheus.GaugeVec
	rejected          *prometheus.CounterVec
	fetchFailures     *prometheus.CounterVec
	snapshotsApplied  *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		plantSeverity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "plant_severity",
			Help: "Plant-wide severity (0 operational, 1 warning, 2 critical).",
		}),
		machines: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "machines_by_severity",
			Help: "Number of machines currently at each severity.",
		}, []string{"severity"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_records_rejected_total",
			Help: "Telemetry records dropped during normalization, by reason.",
		}, []string{"reason"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_fetch_failures_total",
			Help: "Failed reads from a telemetry source.",
		}, []string{"source"}),
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_snapshots_applied_total",
			Help: "Snapshots or streamed records applied to the working set.",
		}, []string{"source"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Machine severity transitions, by new severity.",
		}, []string{"to"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.plantSeverity,
		m.machines,
		m.rejected,
		m.fetchFailures,
		m.snapshotsApplied,
		m.transitions,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	for _, s := range status.Severities {
		m.machines.WithLabelValues(s.String()).Set(0)
	}
	return m
}

// Registry exposes the underlying registry for scraping in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordFetchFailure(source string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordApplied(source string) {
	if m == nil {
		return
	}
	m.snapshotsApplied.WithLabelValues(source).Inc()
}

// ObserveFleet refreshes the gauges from a dashboard view and counts transitions.
// It is meant to be registered with fleet.OnChange.
func (m *Metrics) ObserveFleet(f *fleet.Fleet) fleet.Listener {
	return func(c fleet.Change) {
		if m == nil {
			return
		}
		if c.SeverityChanged() && !c.Removed {
			m.transitions.WithLabelValues(c.Machine.Severity().String()).Inc()
		}
		view := f.View()
		m.plantSeverity.Set(float64(view.Plant))
		for s, n := range view.Counts {
			m.machines.WithLabelValues(s.String()).Set(float64(n))
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
