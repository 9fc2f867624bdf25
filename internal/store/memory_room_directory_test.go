package store

import (
	"context"
	"testing"
	"time"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(id, tenantID, ownerID string, createdAt time.Time) *model.Room {
	return &model.Room{
		ID:           id,
		TenantID:     tenantID,
		OwnerID:      ownerID,
		Name:         id,
		CreatedAt:    createdAt,
		LastActiveAt: createdAt,
	}
}

func TestMemoryRoomDirectory_CreateAndGet(t *testing.T) {
	dir := NewMemoryRoomDirectory()
	ctx := context.Background()
	now := time.Now()

	created, err := dir.Create(ctx, newRoom("r1", "t1", "u1", now))
	require.NoError(t, err)
	assert.Equal(t, model.RoomActive, created.State)

	_, err = dir.Create(ctx, newRoom("r1", "t1", "u1", now))
	assert.Error(t, err)

	got, err := dir.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.OwnerID)

	// Returned records are copies
	got.OwnerID = "mutated"
	again, _ := dir.Get(ctx, "r1")
	assert.Equal(t, "u1", again.OwnerID)

	_, err = dir.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRoomDirectory_FindRecent(t *testing.T) {
	dir := NewMemoryRoomDirectory()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _ = dir.Create(ctx, newRoom("old", "t1", "u1", base.Add(-time.Hour)))
	_, _ = dir.Create(ctx, newRoom("mid", "t1", "u1", base.Add(-20*time.Second)))
	_, _ = dir.Create(ctx, newRoom("new", "t1", "u1", base.Add(-5*time.Second)))
	_, _ = dir.Create(ctx, newRoom("other", "t1", "u2", base))

	room, err := dir.FindRecent(ctx, "t1", "u1", base.Add(-30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "new", room.ID)

	_, err = dir.FindRecent(ctx, "t1", "u1", base)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = dir.FindRecent(ctx, "t2", "u1", base.Add(-time.Hour*2))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRoomDirectory_UpdateAppliesPatch(t *testing.T) {
	dir := NewMemoryRoomDirectory()
	ctx := context.Background()
	now := time.Now()
	_, _ = dir.Create(ctx, newRoom("r1", "t1", "u1", now))

	deadline := now.Add(30 * time.Second)
	require.NoError(t, dir.Update(ctx, "r1", model.PendingEvictionPatch(deadline)))

	room, _ := dir.Get(ctx, "r1")
	assert.True(t, room.PendingEviction())
	assert.True(t, deadline.Equal(*room.ScheduledEvictionAt))

	require.NoError(t, dir.Update(ctx, "r1", model.ActivePatch()))
	room, _ = dir.Get(ctx, "r1")
	assert.Equal(t, model.RoomActive, room.State)
	assert.Nil(t, room.ScheduledEvictionAt)

	name := "renamed"
	require.NoError(t, dir.Update(ctx, "r1", model.RoomPatch{Name: &name}))
	room, _ = dir.Get(ctx, "r1")
	assert.Equal(t, "renamed", room.Name)
	assert.Equal(t, model.RoomActive, room.State)

	assert.ErrorIs(t, dir.Update(ctx, "missing", model.ActivePatch()), ErrNotFound)
}

func TestMemoryRoomDirectory_CountListDelete(t *testing.T) {
	dir := NewMemoryRoomDirectory()
	ctx := context.Background()
	base := time.Now()

	_, _ = dir.Create(ctx, newRoom("b", "t1", "u1", base))
	_, _ = dir.Create(ctx, newRoom("a", "t1", "u2", base))
	_, _ = dir.Create(ctx, newRoom("c", "t1", "u3", base.Add(-time.Minute)))
	_, _ = dir.Create(ctx, newRoom("z", "t2", "u1", base))

	count, err := dir.Count(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	rooms, err := dir.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rooms, 3)
	assert.Equal(t, "c", rooms[0].ID)
	assert.Equal(t, "a", rooms[1].ID)
	assert.Equal(t, "b", rooms[2].ID)

	all, err := dir.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, dir.Delete(ctx, "a"))
	assert.ErrorIs(t, dir.Delete(ctx, "a"), ErrNotFound)

	count, _ = dir.Count(ctx, "t1")
	assert.Equal(t, 2, count)
}
