package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPostgresPoolFromURL(ctx, url)
	require.NoError(t, err)
	require.NoError(t, Migrate(ctx, pool))
	t.Cleanup(pool.Close)
	return pool
}

func TestPostgresRoomDirectory(t *testing.T) {
	pool := openTestPool(t)
	dir := NewPostgresRoomDirectory(pool, zap.NewNop())
	ctx := context.Background()

	tenantID := "t-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	_, err := dir.Create(ctx, newRoom("r-"+uuid.NewString(), tenantID, "u1", now.Add(-time.Minute)))
	require.NoError(t, err)
	recent, err := dir.Create(ctx, newRoom("r-"+uuid.NewString(), tenantID, "u1", now))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM rooms WHERE tenant_id = $1`, tenantID)
	})

	found, err := dir.FindRecent(ctx, tenantID, "u1", now.Add(-10*time.Second))
	require.NoError(t, err)
	assert.Equal(t, recent.ID, found.ID)

	count, err := dir.Count(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	deadline := now.Add(30 * time.Second)
	require.NoError(t, dir.Update(ctx, recent.ID, model.PendingEvictionPatch(deadline)))
	got, err := dir.Get(ctx, recent.ID)
	require.NoError(t, err)
	require.True(t, got.PendingEviction())
	assert.True(t, deadline.Equal(got.ScheduledEvictionAt.UTC()))

	require.NoError(t, dir.Update(ctx, recent.ID, model.ActivePatch()))
	got, _ = dir.Get(ctx, recent.ID)
	assert.Nil(t, got.ScheduledEvictionAt)

	rooms, err := dir.List(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, rooms, 2)

	require.NoError(t, dir.Delete(ctx, recent.ID))
	assert.ErrorIs(t, dir.Delete(ctx, recent.ID), ErrNotFound)
	assert.ErrorIs(t, dir.Update(ctx, recent.ID, model.ActivePatch()), ErrNotFound)
	_, err = dir.Get(ctx, recent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresConfigStore(t *testing.T) {
	pool := openTestPool(t)
	s := NewPostgresConfigStore(pool, zap.NewNop())
	ctx := context.Background()

	tenantID := "t-" + uuid.NewString()
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM tenant_configs WHERE tenant_id = $1`, tenantID)
	})

	_, err := s.GetConfig(ctx, tenantID)
	assert.ErrorIs(t, err, ErrNotFound)

	cfg := model.DefaultTenantConfig(tenantID)
	cfg.TriggerPoints = []string{"lobby"}
	require.NoError(t, s.UpsertConfig(ctx, cfg))

	cfg.Capacity = 4
	require.NoError(t, s.UpsertConfig(ctx, cfg))

	got, err := s.GetConfig(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Capacity)
	assert.Equal(t, []string{"lobby"}, got.TriggerPoints)
	assert.Equal(t, "", got.DefaultCategoryID)
	assert.Equal(t, int64(2), got.Version)
}
