package service

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTenantService(configs ...*model.TenantConfig) (*TenantService, *metrics.Metrics) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	logger := zap.NewNop()
	return NewTenantService(
		store.NewMemoryConfigStore(configs...),
		store.NewInMemoryCache(10, time.Minute, logger),
		time.Minute, m, logger,
	), m
}

func TestValidateTenantConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.TenantConfig)
		valid  bool
	}{
		{name: "defaults", mutate: func(*model.TenantConfig) {}, valid: true},
		{name: "zero capacity", mutate: func(c *model.TenantConfig) { c.Capacity = 0 }},
		{name: "capacity too large", mutate: func(c *model.TenantConfig) { c.Capacity = MaxCapacity + 1 }},
		{name: "negative cooldown", mutate: func(c *model.TenantConfig) { c.CooldownSeconds = -1 }},
		{name: "zero cooldown", mutate: func(c *model.TenantConfig) { c.CooldownSeconds = 0 }, valid: true},
		{name: "eviction delay too short", mutate: func(c *model.TenantConfig) { c.EvictionDelaySeconds = 4 }},
		{name: "eviction delay too long", mutate: func(c *model.TenantConfig) { c.EvictionDelaySeconds = 301 }},
		{name: "blank template", mutate: func(c *model.TenantConfig) { c.NamingTemplate = "  " }},
		{name: "unknown language", mutate: func(c *model.TenantConfig) { c.Language = "xx" }},
		{name: "turkish", mutate: func(c *model.TenantConfig) { c.Language = "tr" }, valid: true},
		{name: "empty trigger id", mutate: func(c *model.TenantConfig) { c.TriggerPoints = []string{""} }},
		{name: "missing tenant", mutate: func(c *model.TenantConfig) { c.TenantID = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultTenantConfig(testTenant)
			tt.mutate(cfg)
			err := ValidateTenantConfig(cfg)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.GetCode(err))
		})
	}
}

func TestTenantService_GetConfigCaches(t *testing.T) {
	svc, m := newTenantService(testConfig())
	ctx := context.Background()

	cfg, err := svc.GetConfig(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{testTrigger}, cfg.TriggerPoints)

	// callers get copies
	cfg.TriggerPoints[0] = "mutated"

	again, err := svc.GetConfig(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, []string{testTrigger}, again.TriggerPoints)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMisses.WithLabelValues("tenant_config")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheHits.WithLabelValues("tenant_config")))
}

func TestTenantService_MissingTenant(t *testing.T) {
	svc, _ := newTenantService()
	ctx := context.Background()

	_, err := svc.GetConfig(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	cfg, err := svc.GetOrDefault(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, "{username}'s Room", cfg.NamingTemplate)
}

func TestTenantService_UpsertInvalidatesCache(t *testing.T) {
	svc, _ := newTenantService(testConfig())
	ctx := context.Background()

	before, err := svc.GetConfig(ctx, testTenant)
	require.NoError(t, err)

	update := before.Clone()
	update.Capacity = 3
	saved, err := svc.UpsertConfig(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, saved.Version)
	assert.Equal(t, before.CreatedAt, saved.CreatedAt)

	after, err := svc.GetConfig(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 3, after.Capacity)

	update.Capacity = 0
	_, err = svc.UpsertConfig(ctx, update)
	assert.Equal(t, apperrors.ErrCodeInvalidArgument, apperrors.GetCode(err))
}

func TestTenantService_SeedConfigsSkipsExisting(t *testing.T) {
	svc, _ := newTenantService(testConfig(func(c *model.TenantConfig) { c.Capacity = 7 }))
	ctx := context.Background()

	seeded, err := svc.SeedConfigs(ctx, []*model.TenantConfig{
		testConfig(),
		model.DefaultTenantConfig("tenant-2"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	existing, err := svc.GetConfig(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, 7, existing.Capacity)

	_, err = svc.GetConfig(ctx, "tenant-2")
	assert.NoError(t, err)
}
