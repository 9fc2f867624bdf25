package store

import (
	"context"
	"errors"
	"time"

	"github.com/devrev/tempvoice/internal/model"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("not found")

// RoomDirectory is the durable record of live rooms
type RoomDirectory interface {
	Get(ctx context.Context, roomID string) (*model.Room, error)
	// FindRecent returns the newest room the owner created in the tenant at
	// or after since, or ErrNotFound.
	FindRecent(ctx context.Context, tenantID, ownerID string, since time.Time) (*model.Room, error)
	Count(ctx context.Context, tenantID string) (int, error)
	Create(ctx context.Context, room *model.Room) (*model.Room, error)
	Update(ctx context.Context, roomID string, patch model.RoomPatch) error
	Delete(ctx context.Context, roomID string) error
	List(ctx context.Context, tenantID string) ([]*model.Room, error)
	ListAll(ctx context.Context) ([]*model.Room, error)

	// Health check
	Ping(ctx context.Context) error
	Close()
}

// ConfigStore holds per-tenant settings
type ConfigStore interface {
	GetConfig(ctx context.Context, tenantID string) (*model.TenantConfig, error)
	UpsertConfig(ctx context.Context, cfg *model.TenantConfig) error
	Ping(ctx context.Context) error
	Close()
}

// Cache interface for in-memory caching
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
