package model

import "time"

// TenantConfig represents per-tenant room settings
type TenantConfig struct {
	TenantID             string
	Enabled              bool
	Capacity             int
	CooldownSeconds      int
	EvictionDelaySeconds int
	TriggerPoints        []string
	DefaultCategoryID    string
	NamingTemplate       string
	Language             string
	CreatedAt            time.Time
	UpdatedAt            time.Time
	Version              int64 // For optimistic locking
}

// DefaultTenantConfig returns the settings a tenant starts with
func DefaultTenantConfig(tenantID string) *TenantConfig {
	now := time.Now()
	return &TenantConfig{
		TenantID:             tenantID,
		Enabled:              true,
		Capacity:             10,
		CooldownSeconds:      30,
		EvictionDelaySeconds: 30,
		TriggerPoints:        []string{},
		NamingTemplate:       "{username}'s Room",
		Language:             "en",
		CreatedAt:            now,
		UpdatedAt:            now,
		Version:              1,
	}
}

// IsTrigger reports whether roomID is one of the tenant's trigger points
func (c *TenantConfig) IsTrigger(roomID string) bool {
	for _, id := range c.TriggerPoints {
		if id == roomID {
			return true
		}
	}
	return false
}

// Cooldown returns the per-owner creation cooldown
func (c *TenantConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// EvictionDelay returns the grace period before an empty room is deleted
func (c *TenantConfig) EvictionDelay() time.Duration {
	return time.Duration(c.EvictionDelaySeconds) * time.Second
}

// Clone returns a deep copy
func (c *TenantConfig) Clone() *TenantConfig {
	out := *c
	out.TriggerPoints = append([]string(nil), c.TriggerPoints...)
	return &out
}
