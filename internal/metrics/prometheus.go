package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics wraps prometheus collectors for voxeld's request,
// worker pool, connection, and artifact metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	// Counters
	requestsTotal *prometheus.CounterVec

	// Histograms
	requestDuration *prometheus.HistogramVec

	// Gauges
	uptime              prometheus.GaugeFunc
	queueDepth          prometheus.Gauge
	activeConnections   prometheus.Gauge
	pendingRequests     prometheus.Gauge
	artifactCount       prometheus.Gauge
	artifactBytes       prometheus.Gauge
	engineGuardDegraded prometheus.Gauge
}

// Default histogram buckets for request duration (in milliseconds).
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if buckets == nil || len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of dispatched JSON-RPC requests",
			},
			[]string{"method", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_milliseconds",
				Help:      "Duration of dispatched JSON-RPC requests in milliseconds",
				Buckets:   buckets,
			},
			[]string{"method"},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "worker_queue_depth",
				Help:      "Current worker pool queue depth",
			},
		),

		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_connections",
				Help:      "Number of currently accepted IPC connections",
			},
		),

		pendingRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_requests",
				Help:      "Number of dispatched, not-yet-responded requests across all connections",
			},
		),

		artifactCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifact_count",
				Help:      "Number of render/export artifacts currently retained on disk",
			},
		),

		artifactBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "artifact_bytes",
				Help:      "Total size in bytes of retained render/export artifacts",
			},
		),

		engineGuardDegraded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engine_guard_degraded",
				Help:      "1 if the Engine Guard is in Degraded mode (requires Reset), else 0",
			},
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since the voxeld daemon started",
		},
		func() float64 {
			return time.Since(StartTime()).Seconds()
		},
	)

	registry.MustRegister(
		pm.requestsTotal,
		pm.requestDuration,
		pm.uptime,
		pm.queueDepth,
		pm.activeConnections,
		pm.pendingRequests,
		pm.artifactCount,
		pm.artifactBytes,
		pm.engineGuardDegraded,
	)

	promMetrics = pm
}

// RecordPrometheusRequest records one completed request in Prometheus
// collectors.
func RecordPrometheusRequest(method string, durationMs int64, success bool) {
	if promMetrics == nil {
		return
	}

	status := "success"
	if !success {
		status = "failed"
	}
	promMetrics.requestsTotal.WithLabelValues(method, status).Inc()
	promMetrics.requestDuration.WithLabelValues(method).Observe(float64(durationMs))
}

// SetPrometheusQueueDepth sets the worker pool queue depth gauge.
func SetPrometheusQueueDepth(depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.queueDepth.Set(float64(depth))
}

// SetPrometheusActiveConnections sets the active connections gauge.
func SetPrometheusActiveConnections(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeConnections.Set(float64(n))
}

// SetPrometheusPendingRequests sets the pending requests gauge.
func SetPrometheusPendingRequests(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.pendingRequests.Set(float64(n))
}

// SetPrometheusArtifactStats sets the artifact count and total bytes
// gauges.
func SetPrometheusArtifactStats(count int, totalBytes int64) {
	if promMetrics == nil {
		return
	}
	promMetrics.artifactCount.Set(float64(count))
	promMetrics.artifactBytes.Set(float64(totalBytes))
}

// SetPrometheusEngineGuardDegraded sets the Engine Guard degraded gauge.
func SetPrometheusEngineGuardDegraded(degraded bool) {
	if promMetrics == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1.0
	}
	promMetrics.engineGuardDegraded.Set(v)
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics
// scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the prometheus registry (for custom
// collectors).
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
