package store

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/model"
	"gopkg.in/yaml.v3"
)

// tenantFile is the on-disk layout of a tenants seed file
type tenantFile struct {
	Tenants []tenantEntry `yaml:"tenants"`
}

type tenantEntry struct {
	TenantID             string   `yaml:"tenant_id"`
	Enabled              *bool    `yaml:"enabled,omitempty"`
	Capacity             int      `yaml:"capacity,omitempty"`
	CooldownSeconds      *int     `yaml:"cooldown_seconds,omitempty"`
	EvictionDelaySeconds int      `yaml:"eviction_delay_seconds,omitempty"`
	TriggerPoints        []string `yaml:"trigger_points,omitempty"`
	DefaultCategoryID    string   `yaml:"default_category_id,omitempty"`
	NamingTemplate       string   `yaml:"naming_template,omitempty"`
	Language             string   `yaml:"language,omitempty"`
}

// FileConfigStore serves tenant settings from a YAML file. Upserts are
// written back to the same file.
type FileConfigStore struct {
	path   string
	mu     sync.Mutex
	memory *MemoryConfigStore
}

// NewFileConfigStore loads tenant settings from path
func NewFileConfigStore(path string) (*FileConfigStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenants file: %w", err)
	}

	configs, err := ParseTenantConfigs(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenants file %s: %w", path, err)
	}

	return &FileConfigStore{
		path:   path,
		memory: NewMemoryConfigStore(configs...),
	}, nil
}

// ParseTenantConfigs decodes a tenants YAML document, filling unset fields with defaults
func ParseTenantConfigs(data []byte) ([]*model.TenantConfig, error) {
	var file tenantFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	configs := make([]*model.TenantConfig, 0, len(file.Tenants))
	seen := make(map[string]bool)
	for i, entry := range file.Tenants {
		if entry.TenantID == "" {
			return nil, fmt.Errorf("tenants[%d]: tenant_id is required", i)
		}
		if seen[entry.TenantID] {
			return nil, fmt.Errorf("tenants[%d]: duplicate tenant_id %s", i, entry.TenantID)
		}
		seen[entry.TenantID] = true

		cfg := model.DefaultTenantConfig(entry.TenantID)
		if entry.Enabled != nil {
			cfg.Enabled = *entry.Enabled
		}
		if entry.Capacity > 0 {
			cfg.Capacity = entry.Capacity
		}
		if entry.CooldownSeconds != nil {
			cfg.CooldownSeconds = *entry.CooldownSeconds
		}
		if entry.EvictionDelaySeconds > 0 {
			cfg.EvictionDelaySeconds = entry.EvictionDelaySeconds
		}
		if entry.TriggerPoints != nil {
			cfg.TriggerPoints = entry.TriggerPoints
		}
		if entry.NamingTemplate != "" {
			cfg.NamingTemplate = entry.NamingTemplate
		}
		if entry.Language != "" {
			cfg.Language = entry.Language
		}
		cfg.DefaultCategoryID = entry.DefaultCategoryID
		configs = append(configs, cfg)
	}
	return configs, nil
}

// GetConfig retrieves a tenant's settings
func (s *FileConfigStore) GetConfig(ctx context.Context, tenantID string) (*model.TenantConfig, error) {
	return s.memory.GetConfig(ctx, tenantID)
}

// UpsertConfig stores a tenant's settings and rewrites the file
func (s *FileConfigStore) UpsertConfig(ctx context.Context, cfg *model.TenantConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.memory.UpsertConfig(ctx, cfg); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileConfigStore) flush() error {
	s.memory.mu.RLock()
	entries := make([]tenantEntry, 0, len(s.memory.configs))
	for _, cfg := range s.memory.configs {
		enabled := cfg.Enabled
		cooldown := cfg.CooldownSeconds
		entries = append(entries, tenantEntry{
			TenantID:             cfg.TenantID,
			Enabled:              &enabled,
			Capacity:             cfg.Capacity,
			CooldownSeconds:      &cooldown,
			EvictionDelaySeconds: cfg.EvictionDelaySeconds,
			TriggerPoints:        cfg.TriggerPoints,
			DefaultCategoryID:    cfg.DefaultCategoryID,
			NamingTemplate:       cfg.NamingTemplate,
			Language:             cfg.Language,
		})
	}
	s.memory.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].TenantID < entries[j].TenantID })

	data, err := yaml.Marshal(tenantFile{Tenants: entries})
	if err != nil {
		return fmt.Errorf("failed to encode tenants file: %w", err)
	}

	tmp := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write tenants file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// Ping checks the file is still readable
func (s *FileConfigStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.path)
	return err
}

// Close is a no-op
func (s *FileConfigStore) Close() {}
