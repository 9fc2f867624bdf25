package service

import (
	"context"
	"testing"
	"time"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDeadline(deadline time.Time) func(*model.Room) {
	return func(r *model.Room) {
		r.State = model.RoomPendingEviction
		r.ScheduledEvictionAt = &deadline
	}
}

func TestRecoverySweep_Restore(t *testing.T) {
	f := newFixture(t, testConfig())
	now := f.clock.Now()

	orphan := f.seedRoom(t, "orphan", "owner-1")
	f.fake.RemoveRoom(orphan.ID)
	overdue := f.seedRoom(t, "overdue", "owner-2", withDeadline(now.Add(-time.Minute)))
	future := f.seedRoom(t, "future", "owner-3", withDeadline(now.Add(20*time.Second)))
	bare := f.seedRoom(t, "bare", "owner-4")
	busy := f.seedRoom(t, "busy", "owner-5", withDeadline(now.Add(10*time.Second)))
	require.NoError(t, f.fake.Connect(testTenant, "owner-5", busy.ID))
	active := f.seedRoom(t, "active", "owner-6")
	require.NoError(t, f.fake.Connect(testTenant, "owner-6", active.ID))

	report, err := f.sweep.Restore(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, report.Checked)
	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, 1, report.Overdue)
	assert.Equal(t, 1, report.Rearmed)
	assert.Equal(t, 1, report.Armed)
	assert.Equal(t, 1, report.Cleared)
	assert.Equal(t, 0, report.Failed)

	ctx := context.Background()
	_, err = f.rooms.Get(ctx, orphan.ID)
	assert.Error(t, err)
	_, err = f.rooms.Get(ctx, overdue.ID)
	assert.Error(t, err)
	_, exists := f.fake.Room(overdue.ID)
	assert.False(t, exists)

	// the remaining delay is kept, not restarted
	deadline, armed := f.evictions.Armed(future.ID)
	require.True(t, armed)
	assert.Equal(t, now.Add(20*time.Second), deadline)

	deadline, armed = f.evictions.Armed(bare.ID)
	require.True(t, armed)
	assert.Equal(t, now.Add(30*time.Second), deadline)

	_, armed = f.evictions.Armed(busy.ID)
	assert.False(t, armed)
	stored, err := f.rooms.Get(ctx, busy.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoomActive, stored.State)
	assert.Nil(t, stored.ScheduledEvictionAt)

	_, armed = f.evictions.Armed(active.ID)
	assert.False(t, armed)

	f.clock.Advance(19 * time.Second)
	_, exists = f.fake.Room(future.ID)
	assert.True(t, exists)
	f.clock.Advance(time.Second)
	_, exists = f.fake.Room(future.ID)
	assert.False(t, exists)

	f.clock.Advance(10 * time.Second)
	_, exists = f.fake.Room(bare.ID)
	assert.False(t, exists)

	rooms := f.listRooms(t)
	require.Len(t, rooms, 2)
}

func TestRecoverySweep_RestoreIsRepeatable(t *testing.T) {
	f := newFixture(t, testConfig())
	room := f.seedRoom(t, "room-1", "owner-1")

	_, err := f.sweep.Restore(context.Background())
	require.NoError(t, err)
	first, _ := f.evictions.Armed(room.ID)

	f.clock.Advance(5 * time.Second)
	report, err := f.sweep.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Rearmed)

	second, _ := f.evictions.Armed(room.ID)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.coord.Timers.Len())
}

func TestRecoverySweep_PlatformErrorCountsAsFailed(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedRoom(t, "room-1", "owner-1")
	f.fake.Fail(platform.OpOccupancy, errInjected)

	report, err := f.sweep.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, f.listRooms(t), 1)
	assert.Equal(t, 0, f.coord.Timers.Len())
}

func TestRecoverySweep_PruneOrphansOnlyRemovesOrphans(t *testing.T) {
	f := newFixture(t, testConfig())
	orphan := f.seedRoom(t, "orphan", "owner-1", withDeadline(f.clock.Now().Add(time.Minute)))
	_, err := f.evictions.ScheduleEviction(context.Background(), orphan)
	require.NoError(t, err)
	f.fake.RemoveRoom(orphan.ID)
	empty := f.seedRoom(t, "empty", "owner-2")

	report, err := f.sweep.PruneOrphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Orphans)

	_, armed := f.evictions.Armed(orphan.ID)
	assert.False(t, armed)
	_, armed = f.evictions.Armed(empty.ID)
	assert.False(t, armed)

	rooms := f.listRooms(t)
	require.Len(t, rooms, 1)
	assert.Equal(t, empty.ID, rooms[0].ID)
}

func TestRecoverySweep_RunStopsOnCancel(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.sweep.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep loop did not stop")
	}
}
