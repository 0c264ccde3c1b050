// Package metrics collects and exposes voxeld's runtime observability data.
//
// # Design rationale
//
// Two metric stores coexist in this package:
//
//  1. The in-process Metrics struct (per-method counters + time series)
//     for the lightweight JSON /status endpoint.
//  2. A Prometheus registry (prometheus.go) for scraping by external
//     monitoring systems (Grafana, Alertmanager, etc.), served at /metrics.
//
// Keeping both lets a daemon expose its per-method counters as plain JSON
// without requiring a Prometheus scraper, while still supporting one when
// it is present.
//
// # Concurrency — hot path
//
// RecordRequest is called from the dispatcher on every completed RPC call
// and must be as fast as possible. It uses atomic increments for global
// counters and dispatches a lightweight event onto a buffered channel
// (tsChan) for the time-series worker to process asynchronously. This
// avoids holding any lock on the hot path.
//
// The per-method MethodMetrics struct also uses atomic operations
// exclusively; the sync.Map that stores the per-method entries is
// read-heavy and write-once-per-new-method, which is the ideal use case
// for sync.Map.
//
// # Invariants
//
//   - TotalRequests == SuccessResponses + ErrorResponses.
//   - The time-series ring buffer holds at most timeSeriesBucketCount
//     buckets (24 * 60 = 1440 for the last 24 hours at 1-minute
//     granularity).
//   - tsChan capacity is 8192 events; events dropped when full are counted
//     in tsDroppedEvents for observability.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timeSeriesBucketDuration = time.Minute
	timeSeriesBucketCount    = 24 * 60
)

// TimeSeriesBucket stores metrics for a single time bucket.
type TimeSeriesBucket struct {
	Timestamp    time.Time
	Requests     int64
	Errors       int64
	TotalLatency int64
	Count        int64 // for calculating avg
}

// Metrics collects and exposes voxeld's runtime metrics.
type Metrics struct {
	// Request metrics
	TotalRequests     atomic.Int64
	SuccessResponses  atomic.Int64
	ErrorResponses    atomic.Int64
	CancelledRequests atomic.Int64
	NotificationsSeen atomic.Int64

	// Latency metrics (in milliseconds)
	TotalLatencyMs atomic.Int64
	MinLatencyMs   atomic.Int64
	MaxLatencyMs   atomic.Int64

	// Gauges reflecting daemon-wide state, set periodically by the
	// supervisor rather than incremented on the hot path.
	WorkerQueueDepth    atomic.Int64
	ActiveConnections   atomic.Int64
	PendingRequests     atomic.Int64
	ArtifactCount       atomic.Int64
	ArtifactBytes       atomic.Int64
	EngineGuardDegraded atomic.Bool

	// Per-method metrics
	methodMetrics sync.Map // method name -> *MethodMetrics

	// Time-series data (minute buckets for last 24 hours)
	timeSeriesMu    sync.RWMutex
	timeSeries      []*TimeSeriesBucket
	tsChan          chan timeSeriesEvent
	tsDroppedEvents atomic.Int64

	startTime time.Time
}

// timeSeriesEvent is sent over a channel to avoid write-lock contention on
// the hot path.
type timeSeriesEvent struct {
	durationMs int64
	isError    bool
}

// MethodMetrics tracks metrics for a single JSON-RPC method.
type MethodMetrics struct {
	Requests atomic.Int64
	Successes atomic.Int64
	Failures  atomic.Int64
	TotalMs   atomic.Int64
	MinMs     atomic.Int64
	MaxMs     atomic.Int64
}

// Global metrics instance.
var global = &Metrics{startTime: time.Now()}

func init() {
	global.MinLatencyMs.Store(int64(^uint64(0) >> 1)) // Max int64
	global.tsChan = make(chan timeSeriesEvent, 8192)
	global.initTimeSeries()
	go global.processTimeSeriesLoop()
}

// initTimeSeries initializes minute-level buckets for the last 24 hours.
func (m *Metrics) initTimeSeries() {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)
	m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
	for i := 0; i < timeSeriesBucketCount; i++ {
		m.timeSeries[i] = &TimeSeriesBucket{
			Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
		}
	}
}

// Global returns the global metrics instance.
func Global() *Metrics {
	return global
}

// StartTime returns the time when the metrics system was initialized.
func StartTime() time.Time {
	return global.startTime
}

// RecordRequest records one completed RPC call's outcome and latency,
// keyed by method name for the per-method breakdown.
func (m *Metrics) RecordRequest(method string, durationMs int64, success bool, cancelled bool) {
	m.TotalRequests.Add(1)

	if success {
		m.SuccessResponses.Add(1)
	} else {
		m.ErrorResponses.Add(1)
	}
	if cancelled {
		m.CancelledRequests.Add(1)
	}

	m.TotalLatencyMs.Add(durationMs)
	updateMin(&m.MinLatencyMs, durationMs)
	updateMax(&m.MaxLatencyMs, durationMs)

	mm := m.getMethodMetrics(method)
	mm.Requests.Add(1)
	if success {
		mm.Successes.Add(1)
	} else {
		mm.Failures.Add(1)
	}
	mm.TotalMs.Add(durationMs)
	updateMin(&mm.MinMs, durationMs)
	updateMax(&mm.MaxMs, durationMs)

	m.recordTimeSeries(durationMs, !success)

	RecordPrometheusRequest(method, durationMs, success)
}

// RecordNotification counts a dispatched notification (no response
// expected, so it is tracked separately from RecordRequest's latency
// bookkeeping).
func (m *Metrics) RecordNotification() {
	m.NotificationsSeen.Add(1)
}

// recordTimeSeries enqueues a time-series event for async processing,
// avoiding a write-lock on the hot request path.
func (m *Metrics) recordTimeSeries(durationMs int64, isError bool) {
	select {
	case m.tsChan <- timeSeriesEvent{durationMs: durationMs, isError: isError}:
	default:
		m.tsDroppedEvents.Add(1)
	}
}

// processTimeSeriesLoop drains tsChan and applies events under a write
// lock.
func (m *Metrics) processTimeSeriesLoop() {
	for evt := range m.tsChan {
		m.applyTimeSeriesEvent(evt.durationMs, evt.isError)
	}
}

// applyTimeSeriesEvent updates the time-series buckets (must be called
// from a single goroutine).
func (m *Metrics) applyTimeSeriesEvent(durationMs int64, isError bool) {
	m.timeSeriesMu.Lock()
	defer m.timeSeriesMu.Unlock()

	now := time.Now().Truncate(timeSeriesBucketDuration)

	if len(m.timeSeries) > 0 {
		lastBucket := m.timeSeries[len(m.timeSeries)-1]
		bucketsDiff := int(now.Sub(lastBucket.Timestamp) / timeSeriesBucketDuration)

		if bucketsDiff > 0 {
			if bucketsDiff >= timeSeriesBucketCount {
				m.timeSeries = make([]*TimeSeriesBucket, timeSeriesBucketCount)
				for i := 0; i < timeSeriesBucketCount; i++ {
					m.timeSeries[i] = &TimeSeriesBucket{
						Timestamp: now.Add(time.Duration(i-(timeSeriesBucketCount-1)) * timeSeriesBucketDuration),
					}
				}
			} else {
				m.timeSeries = m.timeSeries[bucketsDiff:]
				for i := 0; i < bucketsDiff; i++ {
					m.timeSeries = append(m.timeSeries, &TimeSeriesBucket{
						Timestamp: lastBucket.Timestamp.Add(time.Duration(i+1) * timeSeriesBucketDuration),
					})
				}
			}
		}
	}

	if len(m.timeSeries) > 0 {
		bucket := m.timeSeries[len(m.timeSeries)-1]
		bucket.Requests++
		bucket.TotalLatency += durationMs
		bucket.Count++
		if isError {
			bucket.Errors++
		}
	}
}

// SetWorkerQueueDepth records the worker pool's current queue depth.
func (m *Metrics) SetWorkerQueueDepth(depth int) {
	m.WorkerQueueDepth.Store(int64(depth))
	SetPrometheusQueueDepth(depth)
}

// SetActiveConnections records the listener's current connection count.
func (m *Metrics) SetActiveConnections(n int) {
	m.ActiveConnections.Store(int64(n))
	SetPrometheusActiveConnections(n)
}

// SetPendingRequests records the sum of every connection's pending table
// size.
func (m *Metrics) SetPendingRequests(n int) {
	m.PendingRequests.Store(int64(n))
	SetPrometheusPendingRequests(n)
}

// SetArtifactStats records the artifact directory's current file count and
// total size.
func (m *Metrics) SetArtifactStats(count int, totalBytes int64) {
	m.ArtifactCount.Store(int64(count))
	m.ArtifactBytes.Store(totalBytes)
	SetPrometheusArtifactStats(count, totalBytes)
}

// SetEngineGuardDegraded records whether the Engine Guard is currently in
// Degraded mode.
func (m *Metrics) SetEngineGuardDegraded(degraded bool) {
	m.EngineGuardDegraded.Store(degraded)
	SetPrometheusEngineGuardDegraded(degraded)
}

func (m *Metrics) getMethodMetrics(method string) *MethodMetrics {
	if v, ok := m.methodMetrics.Load(method); ok {
		return v.(*MethodMetrics)
	}

	mm := &MethodMetrics{}
	mm.MinMs.Store(int64(^uint64(0) >> 1))
	actual, _ := m.methodMetrics.LoadOrStore(method, mm)
	return actual.(*MethodMetrics)
}

// GetMethodMetrics returns the metrics for a specific method (or nil if
// none recorded yet).
func (m *Metrics) GetMethodMetrics(method string) *MethodMetrics {
	if v, ok := m.methodMetrics.Load(method); ok {
		return v.(*MethodMetrics)
	}
	return nil
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() map[string]interface{} {
	total := m.TotalRequests.Load()
	avgLatency := float64(0)
	if total > 0 {
		avgLatency = float64(m.TotalLatencyMs.Load()) / float64(total)
	}

	minLatency := m.MinLatencyMs.Load()
	if minLatency == int64(^uint64(0)>>1) {
		minLatency = 0
	}

	result := map[string]interface{}{
		"uptime_seconds": int64(time.Since(m.startTime).Seconds()),
		"requests": map[string]interface{}{
			"total":         total,
			"success":       m.SuccessResponses.Load(),
			"failed":        m.ErrorResponses.Load(),
			"cancelled":     m.CancelledRequests.Load(),
			"notifications": m.NotificationsSeen.Load(),
		},
		"latency_ms": map[string]interface{}{
			"avg": avgLatency,
			"min": minLatency,
			"max": m.MaxLatencyMs.Load(),
		},
		"daemon": map[string]interface{}{
			"worker_queue_depth":    m.WorkerQueueDepth.Load(),
			"active_connections":    m.ActiveConnections.Load(),
			"pending_requests":      m.PendingRequests.Load(),
			"artifact_count":        m.ArtifactCount.Load(),
			"artifact_bytes":        m.ArtifactBytes.Load(),
			"engine_guard_degraded": m.EngineGuardDegraded.Load(),
		},
		"ts_dropped_events": m.tsDroppedEvents.Load(),
	}

	return result
}

// MethodStats returns per-method metrics.
func (m *Metrics) MethodStats() map[string]interface{} {
	result := make(map[string]interface{})

	m.methodMetrics.Range(func(key, value interface{}) bool {
		method := key.(string)
		mm := value.(*MethodMetrics)

		total := mm.Requests.Load()
		avgMs := float64(0)
		if total > 0 {
			avgMs = float64(mm.TotalMs.Load()) / float64(total)
		}

		minMs := mm.MinMs.Load()
		if minMs == int64(^uint64(0)>>1) {
			minMs = 0
		}

		result[method] = map[string]interface{}{
			"requests":  total,
			"successes": mm.Successes.Load(),
			"failures":  mm.Failures.Load(),
			"avg_ms":    avgMs,
			"min_ms":    minMs,
			"max_ms":    mm.MaxMs.Load(),
		}
		return true
	})

	return result
}

// JSONHandler returns an HTTP handler that exposes metrics in JSON format.
func (m *Metrics) JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		result := m.Snapshot()
		result["methods"] = m.MethodStats()
		json.NewEncoder(w).Encode(result)
	})
}

// TimeSeries returns minute-level time-series data for the last 24 hours.
func (m *Metrics) TimeSeries() []map[string]interface{} {
	m.timeSeriesMu.RLock()
	defer m.timeSeriesMu.RUnlock()

	result := make([]map[string]interface{}, len(m.timeSeries))
	for i, bucket := range m.timeSeries {
		avgDuration := float64(0)
		if bucket.Count > 0 {
			avgDuration = float64(bucket.TotalLatency) / float64(bucket.Count)
		}
		result[i] = map[string]interface{}{
			"timestamp":    bucket.Timestamp.Format(time.RFC3339),
			"requests":     bucket.Requests,
			"errors":       bucket.Errors,
			"avg_duration": avgDuration,
		}
	}
	return result
}

// TimeSeriesHandler returns an HTTP handler for time-series metrics.
func (m *Metrics) TimeSeriesHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m.TimeSeries())
	})
}

// Helper functions

func updateMin(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value >= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}

func updateMax(target *atomic.Int64, value int64) {
	for {
		old := target.Load()
		if value <= old {
			return
		}
		if target.CompareAndSwap(old, value) {
			return
		}
	}
}
