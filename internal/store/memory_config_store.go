package store

import (
	"context"
	"sync"

	"github.com/devrev/tempvoice/internal/model"
)

// MemoryConfigStore implements ConfigStore in process memory
type MemoryConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*model.TenantConfig
}

// NewMemoryConfigStore creates a store pre-populated with configs
func NewMemoryConfigStore(configs ...*model.TenantConfig) *MemoryConfigStore {
	s := &MemoryConfigStore{
		configs: make(map[string]*model.TenantConfig),
	}
	for _, cfg := range configs {
		s.configs[cfg.TenantID] = copyConfig(cfg)
	}
	return s
}

func copyConfig(cfg *model.TenantConfig) *model.TenantConfig {
	out := *cfg
	out.TriggerPoints = append([]string(nil), cfg.TriggerPoints...)
	return &out
}

// GetConfig retrieves a tenant's settings
func (s *MemoryConfigStore) GetConfig(ctx context.Context, tenantID string) (*model.TenantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.configs[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConfig(cfg), nil
}

// UpsertConfig stores a tenant's settings
func (s *MemoryConfigStore) UpsertConfig(ctx context.Context, cfg *model.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.configs[cfg.TenantID] = copyConfig(cfg)
	return nil
}

// Ping always succeeds
func (s *MemoryConfigStore) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryConfigStore) Close() {}
