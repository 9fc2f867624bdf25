// Package metrics provides Prometheus metrics for the room lifecycle service.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Admission and creation
	CreationRequests  *prometheus.CounterVec
	AdmissionRejected *prometheus.CounterVec
	QueueDepth        prometheus.Gauge
	ProvisionInFlight prometheus.Gauge
	ProvisionDuration *prometheus.HistogramVec

	// Eviction and recovery
	Evictions     *prometheus.CounterVec
	SweepOrphans  *prometheus.CounterVec
	SweepDuration *prometheus.HistogramVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	factory  promauto.Factory
	gatherer prometheus.Gatherer
}

// NewMetrics creates metrics registered on reg. A nil reg uses the
// default Prometheus registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer = reg
		gatherer = reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		CreationRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_creation_requests_total",
				Help: "Total number of room creation requests by outcome",
			},
			[]string{"source", "result"},
		),

		AdmissionRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_admission_rejected_total",
				Help: "Creation requests dropped because one was already in flight",
			},
			[]string{"source"},
		),

		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempvoice_queue_depth",
				Help: "Admitted requests waiting in the creation queue",
			},
		),

		ProvisionInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempvoice_provision_in_flight",
				Help: "Room provisioning executions currently running",
			},
		),

		ProvisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempvoice_provision_duration_seconds",
				Help:    "Duration of room provisioning",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),

		Evictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_evictions_total",
				Help: "Eviction timer outcomes",
			},
			[]string{"outcome"},
		),

		SweepOrphans: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_sweep_orphans_total",
				Help: "Room records removed because the platform room no longer exists",
			},
			[]string{"pass"},
		),

		SweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempvoice_sweep_duration_seconds",
				Help:    "Duration of recovery sweep passes",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pass"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),

		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tempvoice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tempvoice_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "route"},
		),

		HTTPInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tempvoice_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		factory:  factory,
		gatherer: gatherer,
	}
}

// RecordCreation records the outcome of one creation request
func (m *Metrics) RecordCreation(source, result string) {
	m.CreationRequests.WithLabelValues(source, result).Inc()
}

// RecordAdmissionRejected records a duplicate request dropped at the gate
func (m *Metrics) RecordAdmissionRejected(source string) {
	m.AdmissionRejected.WithLabelValues(source).Inc()
}

// UpdateQueueDepth updates the creation queue depth
func (m *Metrics) UpdateQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordProvision records a finished provisioning run
func (m *Metrics) RecordProvision(result string, duration time.Duration) {
	m.ProvisionDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordEviction records an eviction timer outcome
func (m *Metrics) RecordEviction(outcome string) {
	m.Evictions.WithLabelValues(outcome).Inc()
}

// WatchTimersArmed exposes the armed eviction timer count, read from
// count at scrape time. Call it once per Metrics.
func (m *Metrics) WatchTimersArmed(count func() int) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "tempvoice_eviction_timers_armed",
			Help: "Eviction timers currently armed",
		},
		func() float64 { return float64(count()) },
	)
}

// RecordSweep records a finished sweep pass
func (m *Metrics) RecordSweep(pass string, orphans int, duration time.Duration) {
	m.SweepOrphans.WithLabelValues(pass).Add(float64(orphans))
	m.SweepDuration.WithLabelValues(pass).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordHTTPRequest records metrics for an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves the registry these metrics were registered on
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()

		start := time.Now()
		rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}

// metricsResponseWriter wraps http.ResponseWriter to capture the status code
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// MetricsServer provides a separate HTTP server for Prometheus metrics
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server
func NewMetricsServer(port int, path string, m *Metrics, logger *zap.Logger) *MetricsServer {
	router := http.NewServeMux()
	router.Handle(path, m.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server
func (ms *MetricsServer) Start() error {
	ms.logger.Info("Starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
