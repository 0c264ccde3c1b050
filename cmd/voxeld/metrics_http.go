package main

import (
	"net/http"

	"github.com/voxelcore/voxeld/internal/logging"
	"github.com/voxelcore/voxeld/internal/metrics"
)

// startMetricsServer exposes /metrics (Prometheus) and /status (JSON) on
// addr in a background goroutine. A failure to bind is logged, not fatal:
// the IPC socket is the daemon's primary interface and should keep running
// even if the optional HTTP side-channel can't start.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.PrometheusHandler())
	mux.Handle("/status", metrics.Global().JSONHandler())

	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logging.Op().Error("metrics HTTP server stopped", "error", err)
		}
	}()
}
