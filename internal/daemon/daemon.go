// Package daemon wires every voxeld component — the Engine Facade, the
// Engine Guard, the script engine, the Render Artifact Manager, the Worker
// Pool, the Method Registry, and the IPC Listener — into one Supervisor
// that owns the daemon's lifecycle from bind to graceful shutdown.
package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/voxelcore/voxeld/internal/artifact"
	"github.com/voxelcore/voxeld/internal/config"
	"github.com/voxelcore/voxeld/internal/domain"
	"github.com/voxelcore/voxeld/internal/engine"
	"github.com/voxelcore/voxeld/internal/engineguard"
	"github.com/voxelcore/voxeld/internal/ipc"
	"github.com/voxelcore/voxeld/internal/logging"
	"github.com/voxelcore/voxeld/internal/metrics"
	"github.com/voxelcore/voxeld/internal/registry"
	"github.com/voxelcore/voxeld/internal/script"
	"github.com/voxelcore/voxeld/internal/workerpool"

	"golang.org/x/sync/errgroup"
)

// daemonVersion is reported verbatim by the "status" and "version"
// methods.
const daemonVersion = "1.0.0"

// Supervisor owns every long-lived component and the single Facade the
// Engine Guard serializes access to.
type Supervisor struct {
	cfg *config.Config

	facade       *engine.Facade
	guard        *engineguard.Guard
	scriptEngine *script.Engine
	artifacts    *artifact.Manager
	pool         *workerpool.Pool
	registry     *registry.Registry
	listener     *ipc.Listener

	startTime time.Time
}

// New constructs every component and binds the IPC socket. No goroutines
// beyond the artifact cleaner and worker pool are started until Serve is
// called.
func New(cfg *config.Config) (*Supervisor, error) {
	s := &Supervisor{
		cfg:       cfg,
		facade:    engine.NewFacade(),
		registry:  registry.New(),
		startTime: time.Now(),
	}

	s.guard = engineguard.New(func(op *domain.EngineOp) (any, *domain.EngineError) {
		return s.handleEngineOp(op)
	})
	s.scriptEngine = script.New(s.guard)

	artifacts, err := artifact.New(artifact.Config{
		Dir:             cfg.Artifact.Dir,
		TTL:             cfg.ArtifactTTL(),
		MaxTotalBytes:   cfg.Artifact.CacheBytes,
		CleanupInterval: cfg.ArtifactCleanupInterval(),
	})
	if err != nil {
		return nil, fmt.Errorf("init artifact manager: %w", err)
	}
	s.artifacts = artifacts

	s.pool = workerpool.New(cfg.Daemon.Workers, cfg.Daemon.QueueCapacity)

	if err := os.MkdirAll(filepath.Dir(cfg.Socket.Path), 0o700); err != nil {
		s.artifacts.Stop()
		s.pool.Shutdown()
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	listener, err := ipc.New(ipc.Config{
		SocketPath:     cfg.Socket.Path,
		Mode:           os.FileMode(cfg.Socket.Mode),
		MaxConnections: cfg.Socket.MaxConnections,
		Limits: ipc.Limits{
			MaxPending:    cfg.Limits.MaxPendingPerConnection,
			MaxFrameBytes: cfg.Limits.MaxFrameBytes,
			IdleTimeout:   cfg.IdleTimeout(),
			DrainDeadline: cfg.ShutdownDeadline(),
		},
	}, s.dispatch, logging.Op())
	if err != nil {
		s.artifacts.Stop()
		s.pool.Shutdown()
		return nil, fmt.Errorf("bind socket: %w", err)
	}
	s.listener = listener

	return s, nil
}

// Serve runs the Listener's accept loop, blocking until Close/Shutdown
// causes it to return. Intended to run in its own goroutine; the caller
// selects on its returned error channel alongside OS signals.
func (s *Supervisor) Serve() error {
	s.writePIDFile()
	return s.listener.Serve()
}

func (s *Supervisor) writePIDFile() {
	if s.cfg.Daemon.PIDFile == "" {
		return
	}
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.cfg.Daemon.PIDFile, []byte(pid+"\n"), 0o644); err != nil {
		logging.Op().Warn("failed to write pid file", "path", s.cfg.Daemon.PIDFile, "error", err)
	}
}

func (s *Supervisor) removePIDFile() {
	if s.cfg.Daemon.PIDFile == "" {
		return
	}
	os.Remove(s.cfg.Daemon.PIDFile)
}

// Shutdown drains every connection, waits (up to the configured grace
// period) for in-flight worker jobs to finish, then stops the artifact
// cleaner and unlinks the socket. This is the graceful sequence; a second
// signal to the calling process should skip straight to a hard exit
// instead of calling this.
func (s *Supervisor) Shutdown(ctx context.Context) {
	deadline := s.cfg.ShutdownDeadline()
	gctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	g, _ := errgroup.WithContext(gctx)
	g.Go(func() error {
		logging.Op().Info("draining connections")
		s.listener.DrainAll()
		return nil
	})
	g.Go(func() error {
		s.pool.Shutdown()
		return nil
	})

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gctx.Done():
		logging.Op().Warn("shutdown deadline exceeded, forcing exit")
	}

	s.artifacts.Stop()
	if err := s.listener.Close(); err != nil {
		logging.Op().Warn("error closing listener", "error", err)
	}
	s.removePIDFile()
}

// RefreshGauges wires the daemon's live gauges into the shared metrics package;
// called on a ticker by the cmd entrypoint so Prometheus/JSON snapshots
// stay current without every dispatch call touching these fields itself.
func (s *Supervisor) RefreshGauges() {
	count, totalBytes := s.artifacts.Stats()
	m := metrics.Global()
	m.SetWorkerQueueDepth(s.pool.QueueDepth())
	m.SetActiveConnections(s.listener.ActiveConnections())
	m.SetPendingRequests(s.listener.PendingRequestsTotal())
	m.SetArtifactStats(count, totalBytes)
	m.SetEngineGuardDegraded(s.guard.Degraded())
}
