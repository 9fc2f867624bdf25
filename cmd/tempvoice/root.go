package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/tempvoice/internal/config"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/handler"
	"github.com/devrev/tempvoice/internal/health"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/server"
	"github.com/devrev/tempvoice/internal/service"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "tempvoice",
		Short:         "Temporary room lifecycle manager",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("CONFIG_PATH"),
		"path to the configuration file (defaults to $CONFIG_PATH)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSweepCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// load reads the configuration and builds the logger it names
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, eviction timers and recovery sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(parent context.Context, cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting tempvoice",
		zap.Int("port", cfg.Server.Port),
		zap.String("database_backend", cfg.Database.Backend),
		zap.String("platform_backend", cfg.Platform.Backend))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, a.metrics, logger)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	// Rooms persisted by a previous run get their timers back before traffic arrives.
	report, err := a.sweep.Restore(ctx)
	if err != nil {
		logger.Error("Startup recovery sweep failed", zap.Error(err))
	} else {
		logSweep(logger, report)
	}
	go a.sweep.Run(ctx)

	errorHandler := apperrors.NewHandler(logger)
	handlers := handler.NewHandlers(a.manager, a.controls, a.tenants, errorHandler, cfg.Server.WriteTimeout, logger)
	healthCheck := health.NewHealthChecker(a.rooms, a.configs, a.locks, a.platform, logger)
	srv := server.NewServer(cfg, handlers, healthCheck, a.metrics, errorHandler, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down tempvoice")
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := a.queue.Stop(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("Creation queue did not drain", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	logger.Info("tempvoice stopped")
	return nil
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one recovery sweep over persisted rooms and exit",
		Long: "Reconciles persisted rooms with the platform once: orphaned records are removed, " +
			"overdue empty rooms are deleted and occupied rooms are reactivated.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.sweep.Restore(ctx)
			if err != nil {
				return fmt.Errorf("recovery sweep failed: %w", err)
			}
			logSweep(logger, report)
			// timers armed for future deadlines are dropped on exit; serve re-arms them
			return nil
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the postgres schema for rooms and tenant configs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if cfg.Database.Backend != "postgres" {
				return fmt.Errorf("migrate requires database.backend=postgres, got %q", cfg.Database.Backend)
			}

			ctx := cmd.Context()
			pool, err := openPool(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := store.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			logger.Info("Schema migrated",
				zap.String("database_host", cfg.Database.Host),
				zap.String("database_name", cfg.Database.Database))
			return nil
		},
	}
}

func logSweep(logger *zap.Logger, report *service.SweepReport) {
	logger.Info("Recovery sweep finished",
		zap.String("pass", report.Pass),
		zap.Int("checked", report.Checked),
		zap.Int("orphans", report.Orphans),
		zap.Int("overdue", report.Overdue),
		zap.Int("rearmed", report.Rearmed),
		zap.Int("armed", report.Armed),
		zap.Int("cleared", report.Cleared),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", report.Duration))
}
