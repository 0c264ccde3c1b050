package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxelcore/voxeld/internal/config"
	"github.com/voxelcore/voxeld/internal/daemon"
	"github.com/voxelcore/voxeld/internal/logging"
	"github.com/voxelcore/voxeld/internal/metrics"
	"github.com/voxelcore/voxeld/internal/observability"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "voxeld",
		Short: "voxeld - headless voxel editing daemon",
		Long:  "voxeld exposes a 3D voxel editing engine over a local JSON-RPC 2.0 IPC channel",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to config file (JSON or YAML); defaults built in when absent")

	rootCmd.AddCommand(serveCmd(), versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("voxeld 1.0.0")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		socketPath string
		httpAddr   string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voxeld daemon, binding the IPC socket and serving requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			} else {
				cfg = config.DefaultConfig()
			}
			config.LoadFromEnv(cfg)

			if cmd.Flags().Changed("socket") {
				cfg.Socket.Path = socketPath
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Observability.Logging.Level = logLevel
			}
			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, cfg.Observability.Metrics.HistogramBuckets)
			}

			sup, err := daemon.New(cfg)
			if err != nil {
				return fmt.Errorf("construct daemon: %w", err)
			}

			logging.Op().Info("voxeld starting",
				"socket", cfg.Socket.Path,
				"workers", cfg.Daemon.Workers,
				"log_level", cfg.Observability.Logging.Level)

			if httpAddr != "" {
				startMetricsServer(httpAddr)
				logging.Op().Info("metrics HTTP endpoint started", "addr", httpAddr)
			}

			serveErr := make(chan error, 1)
			go func() { serveErr <- sup.Serve() }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			gaugeTicker := time.NewTicker(10 * time.Second)
			defer gaugeTicker.Stop()

			for {
				select {
				case err := <-serveErr:
					if err != nil {
						logging.Op().Error("accept loop exited", "error", err)
						return err
					}
					return nil
				case <-gaugeTicker.C:
					sup.RefreshGauges()
				case sig := <-sigCh:
					logging.Op().Info("shutdown signal received", "signal", sig.String())
					ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownDeadline()+5*time.Second)
					sup.Shutdown(ctx)
					cancel()
					logging.Default().Close()
					return nil
				}
			}
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "Unix domain socket path (overrides config)")
	cmd.Flags().StringVar(&httpAddr, "metrics-http", "", "address to serve Prometheus /metrics on (e.g. :9109); disabled when empty")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	return cmd
}
