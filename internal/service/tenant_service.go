package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// SupportedLanguages are the locale codes a tenant may select
var SupportedLanguages = []string{"en", "tr", "es", "fr", "de", "it", "ru", "zh"}

// Tenant setting bounds
const (
	MinCapacity      = 1
	MaxCapacity      = 50
	MaxCooldown      = 3600
	MinEvictionDelay = 5
	MaxEvictionDelay = 300
)

// TenantService manages tenant configurations
type TenantService struct {
	configStore store.ConfigStore
	cache       store.Cache
	cacheTTL    time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(
	configStore store.ConfigStore,
	cache store.Cache,
	cacheTTL time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TenantService {
	return &TenantService{
		configStore: configStore,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     m,
		logger:      logger,
	}
}

// GetConfig retrieves tenant configuration, using cache if available.
// A tenant without stored settings yields an error wrapping store.ErrNotFound.
func (s *TenantService) GetConfig(ctx context.Context, tenantID string) (*model.TenantConfig, error) {
	// Try cache first
	cacheKey := s.tenantCacheKey(tenantID)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != nil {
		if cfg, ok := cached.(*model.TenantConfig); ok {
			s.metrics.RecordCacheHit("tenant_config")
			return cfg.Clone(), nil
		}
	}
	s.metrics.RecordCacheMiss("tenant_config")

	cfg, err := s.configStore.GetConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenant config: %w", err)
	}

	if err := s.cache.Set(ctx, cacheKey, cfg.Clone(), s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache tenant config",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
	}

	return cfg, nil
}

// GetOrDefault returns the stored settings, or the defaults for a tenant that has none
func (s *TenantService) GetOrDefault(ctx context.Context, tenantID string) (*model.TenantConfig, error) {
	cfg, err := s.GetConfig(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return model.DefaultTenantConfig(tenantID), nil
	}
	return cfg, err
}

// UpsertConfig validates and stores a tenant's settings
func (s *TenantService) UpsertConfig(ctx context.Context, cfg *model.TenantConfig) (*model.TenantConfig, error) {
	if err := ValidateTenantConfig(cfg); err != nil {
		return nil, err
	}

	now := time.Now()
	updated := cfg.Clone()
	updated.UpdatedAt = now

	existing, err := s.configStore.GetConfig(ctx, cfg.TenantID)
	switch {
	case err == nil:
		updated.CreatedAt = existing.CreatedAt
		updated.Version = existing.Version + 1
	case errors.Is(err, store.ErrNotFound):
		updated.CreatedAt = now
		updated.Version = 1
	default:
		return nil, fmt.Errorf("failed to load tenant config: %w", err)
	}

	if err := s.configStore.UpsertConfig(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to store tenant config: %w", err)
	}

	s.logger.Info("Updated tenant config",
		zap.String("tenant_id", updated.TenantID),
		zap.Bool("enabled", updated.Enabled),
		zap.Int("capacity", updated.Capacity),
		zap.Int64("version", updated.Version))

	// Invalidate cache
	if err := s.cache.Delete(ctx, s.tenantCacheKey(updated.TenantID)); err != nil {
		s.logger.Warn("Failed to invalidate tenant cache",
			zap.String("tenant_id", updated.TenantID),
			zap.Error(err))
	}

	return updated, nil
}

// SeedConfigs stores configs for tenants that have no settings yet
func (s *TenantService) SeedConfigs(ctx context.Context, configs []*model.TenantConfig) (int, error) {
	seeded := 0
	for _, cfg := range configs {
		_, err := s.configStore.GetConfig(ctx, cfg.TenantID)
		if err == nil {
			continue
		}
		if !errors.Is(err, store.ErrNotFound) {
			return seeded, fmt.Errorf("failed to load tenant config: %w", err)
		}
		if _, err := s.UpsertConfig(ctx, cfg); err != nil {
			return seeded, fmt.Errorf("tenant %s: %w", cfg.TenantID, err)
		}
		seeded++
	}
	return seeded, nil
}

// ValidateTenantConfig checks settings against the allowed ranges
func ValidateTenantConfig(cfg *model.TenantConfig) error {
	if cfg == nil || cfg.TenantID == "" {
		return apperrors.InvalidArgument("tenant_id is required", nil)
	}
	if cfg.Capacity < MinCapacity || cfg.Capacity > MaxCapacity {
		return apperrors.InvalidArgument(
			fmt.Sprintf("capacity must be between %d and %d", MinCapacity, MaxCapacity), nil)
	}
	if cfg.CooldownSeconds < 0 || cfg.CooldownSeconds > MaxCooldown {
		return apperrors.InvalidArgument(
			fmt.Sprintf("cooldown_seconds must be between 0 and %d", MaxCooldown), nil)
	}
	if cfg.EvictionDelaySeconds < MinEvictionDelay || cfg.EvictionDelaySeconds > MaxEvictionDelay {
		return apperrors.InvalidArgument(
			fmt.Sprintf("eviction_delay_seconds must be between %d and %d", MinEvictionDelay, MaxEvictionDelay), nil)
	}
	if strings.TrimSpace(cfg.NamingTemplate) == "" {
		return apperrors.InvalidArgument("naming_template must not be empty", nil)
	}
	if !isSupportedLanguage(cfg.Language) {
		return apperrors.InvalidArgument(
			fmt.Sprintf("language must be one of: %s", strings.Join(SupportedLanguages, ", ")), nil)
	}
	for _, id := range cfg.TriggerPoints {
		if id == "" {
			return apperrors.InvalidArgument("trigger_points must not contain empty ids", nil)
		}
	}
	return nil
}

func isSupportedLanguage(lang string) bool {
	for _, l := range SupportedLanguages {
		if l == lang {
			return true
		}
	}
	return false
}

// tenantCacheKey generates a cache key for tenant config
func (s *TenantService) tenantCacheKey(tenantID string) string {
	return fmt.Sprintf("tenant:config:%s", tenantID)
}
