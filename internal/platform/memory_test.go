package platform

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_CreateMoveDelete(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()
	p.AddRoom("g1", "lobby", "cat-1")
	require.NoError(t, p.Connect("g1", "alice", "lobby"))

	category, err := p.ParentCategory(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", category)

	id, err := p.CreateRoom(ctx, RoomSpec{TenantID: "g1", Name: "alice's Room", CategoryID: category, OwnerID: "alice"})
	require.NoError(t, err)

	require.NoError(t, p.MoveMember(ctx, "g1", "alice", id))
	count, err := p.Occupancy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	lobby, _ := p.Occupancy(ctx, "lobby")
	assert.Equal(t, 0, lobby)

	assert.ErrorIs(t, p.MoveMember(ctx, "g1", "bob", id), ErrMemberNotConnected)

	require.NoError(t, p.DeleteRoom(ctx, id))
	_, err = p.Occupancy(ctx, id)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.ErrorIs(t, p.DeleteRoom(ctx, id), ErrRoomNotFound)

	_, connected := p.Location("g1", "alice")
	assert.False(t, connected)
	assert.Equal(t, []string{id}, p.Deleted())
}

func TestMemory_FailureInjection(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	p.Fail(OpCreateRoom, boom)
	_, err := p.CreateRoom(ctx, RoomSpec{TenantID: "g1"})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, p.Created())

	p.Fail(OpCreateRoom, nil)
	_, err = p.CreateRoom(ctx, RoomSpec{TenantID: "g1"})
	assert.NoError(t, err)

	p.SetCanManage("g1", false)
	ok, err := p.CanManage(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_TracksConcurrentCreates(t *testing.T) {
	p := NewMemory()
	release := make(chan struct{})
	var entered sync.WaitGroup
	entered.Add(3)
	p.OnCreate(func(RoomSpec) {
		entered.Done()
		<-release
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.CreateRoom(context.Background(), RoomSpec{TenantID: "g1"})
		}()
	}
	entered.Wait()
	close(release)
	wg.Wait()

	assert.Equal(t, 3, p.MaxConcurrentCreates())
	assert.Len(t, p.Created(), 3)
}

func TestMemory_EditsApplyToRoom(t *testing.T) {
	p := NewMemory()
	ctx := context.Background()
	id, _ := p.CreateRoom(ctx, RoomSpec{TenantID: "g1", Name: "a", OwnerID: "alice", Overwrites: OwnerOverwrites("g1", "alice")})

	require.NoError(t, p.Rename(ctx, id, "b"))
	require.NoError(t, p.SetUserLimit(ctx, id, 5))
	require.NoError(t, p.SetConnectAllowed(ctx, "g1", id, false))
	require.NoError(t, p.GrantOwner(ctx, id, "bob"))

	room, ok := p.Room(id)
	require.True(t, ok)
	assert.Equal(t, "b", room.Name)
	assert.Equal(t, 5, room.UserLimit)
	assert.Len(t, room.Overwrites, 3)
	assert.Equal(t, []Permission{PermConnect}, room.Overwrites[1].Deny)
	assert.Equal(t, "bob", room.Overwrites[2].TargetID)
}
