package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresConfigStore implements ConfigStore for PostgreSQL
type PostgresConfigStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresConfigStore creates a config store on an open pool
func NewPostgresConfigStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresConfigStore {
	return &PostgresConfigStore{
		pool:   pool,
		logger: logger,
	}
}

// GetConfig retrieves a tenant's settings
func (s *PostgresConfigStore) GetConfig(ctx context.Context, tenantID string) (*model.TenantConfig, error) {
	query := `
		SELECT tenant_id, enabled, capacity, cooldown_seconds, eviction_delay_seconds,
		       trigger_points, COALESCE(default_category_id, ''), naming_template, language,
		       created_at, updated_at, version
		FROM tenant_configs
		WHERE tenant_id = $1
	`

	var cfg model.TenantConfig
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&cfg.TenantID,
		&cfg.Enabled,
		&cfg.Capacity,
		&cfg.CooldownSeconds,
		&cfg.EvictionDelaySeconds,
		&cfg.TriggerPoints,
		&cfg.DefaultCategoryID,
		&cfg.NamingTemplate,
		&cfg.Language,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
		&cfg.Version,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant config: %w", err)
	}

	return &cfg, nil
}

// UpsertConfig inserts or replaces a tenant's settings, bumping its version
func (s *PostgresConfigStore) UpsertConfig(ctx context.Context, cfg *model.TenantConfig) error {
	query := `
		INSERT INTO tenant_configs (
			tenant_id, enabled, capacity, cooldown_seconds, eviction_delay_seconds,
			trigger_points, default_category_id, naming_template, language,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, 1)
		ON CONFLICT (tenant_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			capacity = EXCLUDED.capacity,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			eviction_delay_seconds = EXCLUDED.eviction_delay_seconds,
			trigger_points = EXCLUDED.trigger_points,
			default_category_id = EXCLUDED.default_category_id,
			naming_template = EXCLUDED.naming_template,
			language = EXCLUDED.language,
			updated_at = EXCLUDED.updated_at,
			version = tenant_configs.version + 1
	`

	triggers := cfg.TriggerPoints
	if triggers == nil {
		triggers = []string{}
	}

	_, err := s.pool.Exec(ctx, query,
		cfg.TenantID,
		cfg.Enabled,
		cfg.Capacity,
		cfg.CooldownSeconds,
		cfg.EvictionDelaySeconds,
		triggers,
		cfg.DefaultCategoryID,
		cfg.NamingTemplate,
		cfg.Language,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tenant config: %w", err)
	}
	return nil
}

// Ping checks the database connection
func (s *PostgresConfigStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is closed by whoever opened it
func (s *PostgresConfigStore) Close() {}
