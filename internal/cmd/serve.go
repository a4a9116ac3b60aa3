package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/siftworks/siftx/internal/config"
	"github.com/siftworks/siftx/internal/observability"
	"github.com/siftworks/siftx/internal/platform"
	"github.com/siftworks/siftx/internal/server"
	"github.com/siftworks/siftx/pkg/jobtracker"
	"github.com/siftworks/siftx/pkg/sifter"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the multi-tenant web service",
	Long: `Run the trusted-launch web service. Every configured consumer
shares the single endpoint; requests are authenticated against the
consumer's own secret and sifter runs are dispatched to the worker pool.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "host", "", "Override the configured listen host")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return exitError(1, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return exitError(1, err)
	}
	if serveAddr != "" {
		cfg.Server.Host = serveAddr
	}

	level := cfg.LogLevel
	if rootLogLevel != "" {
		level = rootLogLevel
	}
	srvLogger, err := observability.NewLogger(level)
	if err != nil {
		return exitError(1, err)
	}
	defer func() { _ = srvLogger.Sync() }()

	if cfg.BrokerURL != "" || cfg.ResultBackend != "" {
		srvLogger.Warn("external broker configuration present, this build dispatches to the bundled in-process worker pool",
			zap.String("broker_url", cfg.BrokerURL))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	settings, err := platform.LoadStorageSettings(cfg.EdxPlatformPath)
	if err != nil {
		return exitError(1, fmt.Errorf("storage settings: %w", err))
	}
	deliverySink, err := settings.NewSink(ctx)
	if err != nil {
		return exitError(1, fmt.Errorf("storage sink: %w", err))
	}
	defer func() { _ = deliverySink.Close() }()

	registry := sifter.NewRegistry(sifter.DefaultLayers(cfg.SifterDir))

	engineOpts := []sifter.EngineOption{}
	if cfg.SifterTimeout > 0 {
		engineOpts = append(engineOpts, sifter.WithTimeout(cfg.SifterTimeout))
	}
	engine := sifter.NewEngine(cfg.EdxVenvPath, cfg.EdxPlatformPath, deliverySink, srvLogger, engineOpts...)

	pool := jobtracker.NewPool(engine, jobtracker.PoolConfig{
		Workers:   cfg.Workers.Count,
		QueueSize: cfg.Workers.QueueSize,
		OnComplete: func(state jobtracker.State, result *jobtracker.Result) {
			outcome := "success"
			switch {
			case state == jobtracker.StateFailure:
				outcome = "failure"
			case result != nil && !result.Success:
				outcome = "sifter_failure"
			}
			observability.SifterRunsTotal.WithLabelValues(outcome).Inc()
		},
	}, srvLogger)
	defer func() { _ = pool.Close() }()

	tracker := jobtracker.NewTracker(pool, srvLogger)

	srv, err := server.New(cfg, registry, tracker, srvLogger)
	if err != nil {
		return exitError(1, err)
	}

	srvLogger.Info("starting siftx web service",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Workers.Count),
		zap.Int("consumers", len(cfg.Consumers)))

	if err := srv.Start(ctx); err != nil {
		return exitError(1, err)
	}
	return nil
}
