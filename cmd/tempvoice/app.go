package main

import (
	"context"
	"fmt"
	"os"

	"github.com/devrev/tempvoice/internal/clock"
	"github.com/devrev/tempvoice/internal/config"
	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/service"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the wired room lifecycle components
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	rooms    store.RoomDirectory
	configs  store.ConfigStore
	locks    coordinator.LockTable
	platform platform.Platform

	tenants   *service.TenantService
	evictions *service.EvictionScheduler
	queue     *service.CreationQueue
	manager   *service.RoomManager
	controls  *service.ControlService
	sweep     *service.RecoverySweep

	closers []func()
}

// newLogger builds the process logger from the logging section
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

// newApp opens the configured backends and wires the services
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.NewMetrics(nil),
	}

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openLocks(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openPlatform(); err != nil {
		a.Close()
		return nil, err
	}

	c := clock.New()
	cache := store.NewInMemoryCache(cfg.Cache.MaxSize, cfg.Cache.TenantConfigTTL, logger)
	timers := coordinator.NewMemoryTimerTable(c)

	a.tenants = service.NewTenantService(a.configs, cache, cfg.Cache.TenantConfigTTL, a.metrics, logger)
	if err := a.seedTenants(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.evictions = service.NewEvictionScheduler(timers, a.rooms, a.platform, a.tenants, c,
		cfg.Rooms.DefaultEvictionDelay, cfg.Rooms.EvictionTimeout, a.metrics, logger)
	provisioner := service.NewProvisioner(a.platform, a.tenants, a.rooms, a.locks, a.evictions, c, a.metrics, logger)
	a.queue = service.NewCreationQueue(a.locks, provisioner, cfg.Rooms.ConcurrencyLimit, a.metrics, logger)
	a.manager = service.NewRoomManager(a.queue, a.evictions, a.tenants, a.rooms, a.platform, c, logger)
	a.controls = service.NewControlService(a.rooms, a.platform, a.evictions, logger)
	a.sweep = service.NewRecoverySweep(a.rooms, a.platform, a.evictions, c, cfg.Rooms.SweepInterval, a.metrics, logger)

	logger.Info("All services initialized",
		zap.String("database_backend", cfg.Database.Backend),
		zap.String("lock_backend", cfg.Rooms.LockBackend),
		zap.String("platform_backend", cfg.Platform.Backend),
		zap.Int("concurrency_limit", cfg.Rooms.ConcurrencyLimit))
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.Database.Backend {
	case "postgres":
		pool, err := openPool(ctx, a.cfg.Database)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.rooms = store.NewPostgresRoomDirectory(pool, a.logger)
		a.configs = store.NewPostgresConfigStore(pool, a.logger)
		a.logger.Info("Postgres stores initialized",
			zap.String("database_host", a.cfg.Database.Host),
			zap.String("database_name", a.cfg.Database.Database))

	default:
		a.rooms = store.NewMemoryRoomDirectory()
		if a.cfg.Tenants.File != "" {
			fileStore, err := store.NewFileConfigStore(a.cfg.Tenants.File)
			if err != nil {
				return err
			}
			a.configs = fileStore
		} else {
			a.configs = store.NewMemoryConfigStore()
		}
		a.logger.Warn("Using in-memory room directory; room state does not survive restarts")
	}
	return nil
}

func openPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pool, err := store.NewPostgresPool(ctx, cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password,
		cfg.MaxConnections, cfg.MinConnections)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return pool, nil
}

func (a *app) openLocks() error {
	if a.cfg.Rooms.LockBackend != "redis" {
		a.locks = coordinator.NewMemoryLockTable()
		return nil
	}

	r := a.cfg.Redis
	locks, err := coordinator.NewRedisLockTable(r.Host, r.Port, r.Password, r.DB, r.KeyPrefix, a.cfg.Rooms.LockTTL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis lock table: %w", err)
	}
	a.closers = append(a.closers, func() { locks.Close() })
	a.locks = locks
	return nil
}

func (a *app) openPlatform() error {
	if a.cfg.Platform.Backend != "http" {
		a.platform = platform.NewMemory()
		a.logger.Warn("Using in-memory platform")
		return nil
	}

	client, err := platform.NewHTTPClient(a.cfg.Platform, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize platform client: %w", err)
	}
	a.platform = client
	return nil
}

// seedTenants stores tenants from the tenants file that the durable config store lacks
func (a *app) seedTenants(ctx context.Context) error {
	if a.cfg.Tenants.File == "" || a.cfg.Database.Backend != "postgres" {
		return nil
	}

	data, err := os.ReadFile(a.cfg.Tenants.File)
	if err != nil {
		return fmt.Errorf("failed to read tenants file: %w", err)
	}
	configs, err := store.ParseTenantConfigs(data)
	if err != nil {
		return fmt.Errorf("failed to parse tenants file: %w", err)
	}

	seeded, err := a.tenants.SeedConfigs(ctx, configs)
	if err != nil {
		return fmt.Errorf("failed to seed tenants: %w", err)
	}
	a.logger.Info("Tenant configs seeded",
		zap.Int("seeded", seeded),
		zap.Int("in_file", len(configs)))
	return nil
}

// Close releases backend connections in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
