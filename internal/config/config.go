// Package config loads voxeld's daemon configuration: defaults, an optional
// file (JSON or YAML, chosen by extension), and environment overrides
// applied last, mirroring the layering the teacher daemon uses for its own
// config.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SocketConfig controls the IPC Listener's bind behavior.
type SocketConfig struct {
	Path           string `json:"path" yaml:"path"`
	Mode           uint32 `json:"mode" yaml:"mode"` // octal file mode, e.g. 0660
	MaxConnections int    `json:"max_connections" yaml:"max_connections"`
}

// DaemonConfig controls process-level behavior: the PID file, worker pool
// sizing, and the shutdown grace period.
type DaemonConfig struct {
	PIDFile            string `json:"pid_file" yaml:"pid_file"`
	Workers            int    `json:"workers" yaml:"workers"` // 0 means auto (clamped to [2,8])
	QueueCapacity      int    `json:"queue_capacity" yaml:"queue_capacity"`
	ShutdownDeadlineS  int    `json:"shutdown_deadline_sec" yaml:"shutdown_deadline_sec"`
}

// LimitsConfig bounds per-connection resource usage.
type LimitsConfig struct {
	MaxPendingPerConnection int `json:"max_pending_per_connection" yaml:"max_pending_per_connection"`
	MaxFrameBytes           int `json:"max_frame_bytes" yaml:"max_frame_bytes"`
	IdleTimeoutSec          int `json:"idle_timeout_sec" yaml:"idle_timeout_sec"` // 0 means unbounded
}

// ArtifactConfig controls the Render Artifact Manager's directory, TTL, and
// total-size cap.
type ArtifactConfig struct {
	Dir                  string `json:"artifact_dir" yaml:"artifact_dir"`
	TTLSec               int    `json:"artifact_ttl_sec" yaml:"artifact_ttl_sec"`
	CacheBytes           int64  `json:"artifact_cache_bytes" yaml:"artifact_cache_bytes"`
	CleanupIntervalSec   int    `json:"artifact_cleanup_interval_sec" yaml:"artifact_cleanup_interval_sec"`
}

// ScriptConfig controls execute_script's default and maximum timeouts.
type ScriptConfig struct {
	TimeoutDefaultMs int `json:"script_timeout_default_ms" yaml:"script_timeout_default_ms"`
	TimeoutMaxMs     int `json:"script_timeout_max_ms" yaml:"script_timeout_max_ms"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"` // otlp-http (alias otlp), stdout
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	ServiceName string  `json:"service_name" yaml:"service_name"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled          bool      `json:"enabled" yaml:"enabled"`
	Namespace        string    `json:"namespace" yaml:"namespace"`
	HistogramBuckets []float64 `json:"histogram_buckets" yaml:"histogram_buckets"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"` // debug, info, warn, error
	Format         string `json:"format" yaml:"format"` // text, json
	IncludeTraceID bool   `json:"include_trace_id" yaml:"include_trace_id"`
}

// ObservabilityConfig groups the observability-related settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// Config is voxeld's complete daemon configuration.
type Config struct {
	Socket        SocketConfig        `json:"socket" yaml:"socket"`
	Daemon        DaemonConfig        `json:"daemon" yaml:"daemon"`
	Limits        LimitsConfig        `json:"limits" yaml:"limits"`
	Artifact      ArtifactConfig      `json:"artifact" yaml:"artifact"`
	Script        ScriptConfig        `json:"script" yaml:"script"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// defaultSocketPath prefers $XDG_RUNTIME_DIR/voxeld/voxeld.sock, the
// per-user runtime directory convention, and falls back to
// /tmp/voxeld/voxeld.sock when unset.
func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "voxeld", "voxeld.sock")
	}
	return "/tmp/voxeld/voxeld.sock"
}

// DefaultConfig returns a Config populated with the defaults named in the
// method reference.
func DefaultConfig() *Config {
	return &Config{
		Socket: SocketConfig{
			Path:           defaultSocketPath(),
			Mode:           0o660,
			MaxConnections: 256,
		},
		Daemon: DaemonConfig{
			PIDFile:           "/tmp/voxeld.pid",
			Workers:           0,
			QueueCapacity:     1024,
			ShutdownDeadlineS: 30,
		},
		Limits: LimitsConfig{
			MaxPendingPerConnection: 64,
			MaxFrameBytes:           64 << 20, // 64 MiB
			IdleTimeoutSec:          0,
		},
		Artifact: ArtifactConfig{
			Dir:                "/tmp/voxeld/artifacts",
			TTLSec:             3600,
			CacheBytes:         1 << 30, // 1 GiB
			CleanupIntervalSec: 300,
		},
		Script: ScriptConfig{
			TimeoutDefaultMs: 30_000,
			TimeoutMaxMs:     300_000,
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "voxeld",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:          true,
				Namespace:        "voxeld",
				HistogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
	}
}

// ArtifactTTL returns the artifact retention period as a Duration.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Artifact.TTLSec) * time.Second
}

// ArtifactCleanupInterval returns the cleanup sweep period as a Duration.
func (c *Config) ArtifactCleanupInterval() time.Duration {
	return time.Duration(c.Artifact.CleanupIntervalSec) * time.Duration(time.Second)
}

// ShutdownDeadline returns the graceful-shutdown grace period as a Duration.
func (c *Config) ShutdownDeadline() time.Duration {
	return time.Duration(c.Daemon.ShutdownDeadlineS) * time.Second
}

// IdleTimeout returns the per-connection idle timeout, or zero for
// unbounded.
func (c *Config) IdleTimeout() time.Duration {
	if c.Limits.IdleTimeoutSec <= 0 {
		return 0
	}
	return time.Duration(c.Limits.IdleTimeoutSec) * time.Second
}

// ScriptTimeoutDefault and ScriptTimeoutMax return the execute_script
// timeout bounds as Durations.
func (c *Config) ScriptTimeoutDefault() time.Duration {
	return time.Duration(c.Script.TimeoutDefaultMs) * time.Millisecond
}

func (c *Config) ScriptTimeoutMax() time.Duration {
	return time.Duration(c.Script.TimeoutMaxMs) * time.Millisecond
}

// LoadFromFile loads configuration from path, layered over DefaultConfig.
// YAML is used for .yaml/.yml extensions, JSON otherwise.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LoadFromEnv applies VOXELD_*-prefixed environment variable overrides to
// cfg in place.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("VOXELD_SOCKET_PATH"); v != "" {
		cfg.Socket.Path = v
	}
	if v := os.Getenv("VOXELD_SOCKET_MODE"); v != "" {
		if n, err := strconv.ParseUint(v, 8, 32); err == nil {
			cfg.Socket.Mode = uint32(n)
		}
	}
	if v := os.Getenv("VOXELD_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Socket.MaxConnections = n
		}
	}

	if v := os.Getenv("VOXELD_PID_FILE"); v != "" {
		cfg.Daemon.PIDFile = v
	}
	if v := os.Getenv("VOXELD_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.Workers = n
		}
	}
	if v := os.Getenv("VOXELD_QUEUE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.QueueCapacity = n
		}
	}
	if v := os.Getenv("VOXELD_SHUTDOWN_DEADLINE_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.ShutdownDeadlineS = n
		}
	}

	if v := os.Getenv("VOXELD_MAX_PENDING_PER_CONNECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxPendingPerConnection = n
		}
	}
	if v := os.Getenv("VOXELD_MAX_FRAME_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxFrameBytes = n
		}
	}
	if v := os.Getenv("VOXELD_IDLE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.IdleTimeoutSec = n
		}
	}

	if v := os.Getenv("VOXELD_ARTIFACT_DIR"); v != "" {
		cfg.Artifact.Dir = v
	}
	if v := os.Getenv("VOXELD_ARTIFACT_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Artifact.TTLSec = n
		}
	}
	if v := os.Getenv("VOXELD_ARTIFACT_CACHE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Artifact.CacheBytes = n
		}
	}
	if v := os.Getenv("VOXELD_ARTIFACT_CLEANUP_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Artifact.CleanupIntervalSec = n
		}
	}

	if v := os.Getenv("VOXELD_SCRIPT_TIMEOUT_DEFAULT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Script.TimeoutDefaultMs = n
		}
	}
	if v := os.Getenv("VOXELD_SCRIPT_TIMEOUT_MAX_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Script.TimeoutMaxMs = n
		}
	}

	if v := os.Getenv("VOXELD_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("VOXELD_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("VOXELD_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("VOXELD_TRACING_SERVICE_NAME"); v != "" {
		cfg.Observability.Tracing.ServiceName = v
	}
	if v := os.Getenv("VOXELD_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("VOXELD_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("VOXELD_METRICS_NAMESPACE"); v != "" {
		cfg.Observability.Metrics.Namespace = v
	}
	if v := os.Getenv("VOXELD_LOG_LEVEL"); v != "" {
		cfg.Observability.Logging.Level = v
	}
	if v := os.Getenv("VOXELD_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("VOXELD_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
