// Package metrics exposes Prometheus collectors for the HTTP server and the
// mood pipeline. All Record methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodtunes"

// Metrics holds the service registry and its collectors.
type Metrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	fetchCycles   *prometheus.CounterVec
	fetchDuration prometheus.Histogram
	genreRetries  *prometheus.CounterVec
	detections    *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
	uploads       *prometheus.CounterVec
	playlistSaves *prometheus.CounterVec
}

// New creates a Metrics with its own registry.
func New(service string) *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "route", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "route"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "in_flight_requests",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	fetchCycles := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "fetch_cycles_total",
			Help:      "Recommendation fetch cycles by outcome.",
		},
		[]string{"service", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "recommend",
			Name:        "fetch_duration_seconds",
			Help:        "Recommendation fetch cycle duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	genreRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recommend",
			Name:      "genre_retries_total",
			Help:      "Moves to the next candidate genre by reason.",
		},
		[]string{"service", "reason"},
	)
	detections := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "samples_total",
			Help:      "Detection samples by outcome.",
		},
		[]string{"service", "outcome"},
	)
	resolutions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mood",
			Name:      "resolutions_total",
			Help:      "Mood resolutions by strategy and outcome.",
		},
		[]string{"service", "strategy", "outcome"},
	)
	uploads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "uploads",
			Name:      "captures_total",
			Help:      "Captured image uploads by status.",
		},
		[]string{"service", "status"},
	)
	playlistSaves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "playlist",
			Name:      "saves_total",
			Help:      "Playlist saves by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		fetchCycles,
		fetchDuration,
		genreRetries,
		detections,
		resolutions,
		uploads,
		playlistSaves,
	)

	return &Metrics{
		registry:        registry,
		service:         service,
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestInFlight: requestInFlight,
		fetchCycles:     fetchCycles,
		fetchDuration:   fetchDuration,
		genreRetries:    genreRetries,
		detections:      detections,
		resolutions:     resolutions,
		uploads:         uploads,
		playlistSaves:   playlistSaves,
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count, duration and in-flight gauge. Requests
// are labelled by their chi route pattern so path parameters do not explode
// cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.requestTotal.WithLabelValues(m.service, r.Method, route, strconv.Itoa(recorder.statusCode)).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordFetchCycle records a finished fetch cycle.
func (m *Metrics) RecordFetchCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.fetchCycles.WithLabelValues(m.service, outcome).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// RecordGenreRetry records a move to the next candidate genre.
func (m *Metrics) RecordGenreRetry(reason string) {
	if m == nil {
		return
	}
	m.genreRetries.WithLabelValues(m.service, reason).Inc()
}

// RecordDetection records one detection sample.
func (m *Metrics) RecordDetection(outcome string) {
	if m == nil {
		return
	}
	m.detections.WithLabelValues(m.service, outcome).Inc()
}

// RecordResolution records a mood resolution attempt.
func (m *Metrics) RecordResolution(strategy, outcome string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(m.service, strategy, outcome).Inc()
}

// RecordUpload records a captured image upload.
func (m *Metrics) RecordUpload(err error) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(m.service, status(err)).Inc()
}

// RecordPlaylistSave records a playlist save.
func (m *Metrics) RecordPlaylistSave(err error) {
	if m == nil {
		return
	}
	m.playlistSaves.WithLabelValues(m.service, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
