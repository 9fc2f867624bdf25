package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type executorFunc func(ctx context.Context, req *model.CreateRequest) error

func (f executorFunc) Execute(ctx context.Context, req *model.CreateRequest) error {
	return f(ctx, req)
}

func TestCreationQueue_AtMostOneInFlightPerOwner(t *testing.T) {
	f := newFixture(t, testConfig())
	release := make(chan struct{})
	f.fake.OnCreate(func(platform.RoomSpec) { <-release })

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.queue.RequestCreate(context.Background(), f.request("owner-1"))
			assert.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	assert.True(t, f.lockHeld(t, "owner-1"))
	assert.Equal(t, uint64(19), f.queue.Stats().Rejected)

	close(release)
	f.wait(t)

	assert.False(t, f.lockHeld(t, "owner-1"))
	assert.Len(t, f.fake.Created(), 1)
	assert.Len(t, f.listRooms(t), 1)
}

func TestCreationQueue_BatchesBoundedByLimit(t *testing.T) {
	f := newFixture(t, testConfig())
	entered := make(chan string, 10)
	release := make(chan struct{})
	f.fake.OnCreate(func(spec platform.RoomSpec) {
		entered <- spec.OwnerID
		<-release
	})

	for i := 0; i < 5; i++ {
		ok, err := f.queue.RequestCreate(context.Background(), f.request(fmt.Sprintf("owner-%d", i)))
		require.NoError(t, err)
		require.True(t, ok)
	}

	for i := 0; i < DefaultConcurrencyLimit; i++ {
		select {
		case <-entered:
		case <-time.After(2 * time.Second):
			t.Fatal("batch did not start")
		}
	}
	select {
	case owner := <-entered:
		t.Fatalf("creation for %s started while the batch was still running", owner)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 3, f.queue.Stats().Pending)

	close(release)
	f.wait(t)

	assert.Equal(t, DefaultConcurrencyLimit, f.fake.MaxConcurrentCreates())
	assert.Len(t, f.fake.Created(), 5)
	assert.Len(t, f.listRooms(t), 5)
	assert.Equal(t, uint64(5), f.queue.Stats().Completed)
}

func TestCreationQueue_ProcessesInArrivalOrder(t *testing.T) {
	f := newFixture(t, testConfig())
	queue := NewCreationQueue(f.coord.Locks, f.prov, 1, f.metrics, zap.NewNop())

	var mu sync.Mutex
	var order []string
	f.fake.OnCreate(func(spec platform.RoomSpec) {
		mu.Lock()
		order = append(order, spec.OwnerID)
		mu.Unlock()
	})

	owners := []string{"a", "b", "c", "d"}
	for _, owner := range owners {
		_, err := queue.RequestCreate(context.Background(), f.request(owner))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, queue.Wait(ctx))

	assert.Equal(t, owners, order)
	assert.Equal(t, 1, f.fake.MaxConcurrentCreates())
}

func TestCreationQueue_PanicDoesNotStopDrain(t *testing.T) {
	f := newFixture(t, testConfig())

	var ran atomic.Int32
	queue := NewCreationQueue(f.coord.Locks, executorFunc(func(ctx context.Context, req *model.CreateRequest) error {
		defer f.coord.Locks.Release(ctx, req.LockKey())
		ran.Add(1)
		if req.Owner.ID == "bad" {
			panic("boom")
		}
		return nil
	}), 2, f.metrics, zap.NewNop())

	for _, owner := range []string{"bad", "good-1", "good-2"} {
		_, err := queue.RequestCreate(context.Background(), f.request(owner))
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, queue.Wait(ctx))

	stats := queue.Stats()
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(2), stats.Completed)
	assert.False(t, f.lockHeld(t, "bad"))
}

func TestCreationQueue_CallerCancellationDoesNotAbortCreation(t *testing.T) {
	f := newFixture(t, testConfig())
	release := make(chan struct{})
	f.fake.OnCreate(func(platform.RoomSpec) { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	ok, err := f.queue.RequestCreate(ctx, f.request("owner-1"))
	require.NoError(t, err)
	require.True(t, ok)
	cancel()

	close(release)
	f.wait(t)

	assert.Len(t, f.listRooms(t), 1)
	assert.False(t, f.lockHeld(t, "owner-1"))
}

func TestCreationQueue_StopRejectsNewRequests(t *testing.T) {
	f := newFixture(t, testConfig())

	require.NoError(t, f.queue.Stop(time.Second))

	ok, err := f.queue.RequestCreate(context.Background(), f.request("owner-1"))
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, f.lockHeld(t, "owner-1"))
}

// stoppingLocks runs onAcquire right after a successful TryAcquire
type stoppingLocks struct {
	coordinator.LockTable
	onAcquire func()
}

func (l *stoppingLocks) TryAcquire(ctx context.Context, key string) (bool, error) {
	ok, err := l.LockTable.TryAcquire(ctx, key)
	if ok && l.onAcquire != nil {
		l.onAcquire()
	}
	return ok, err
}

func TestCreationQueue_StopDuringAdmissionReleasesLock(t *testing.T) {
	f := newFixture(t, testConfig())
	locks := &stoppingLocks{LockTable: f.coord.Locks}
	queue := NewCreationQueue(locks, f.prov, DefaultConcurrencyLimit, f.metrics, zap.NewNop())
	locks.onAcquire = func() { require.NoError(t, queue.Stop(time.Second)) }

	ok, err := queue.RequestCreate(context.Background(), f.request("owner-1"))
	assert.Error(t, err)
	assert.False(t, ok)

	stats := queue.Stats()
	assert.Equal(t, uint64(0), stats.Admitted)
	assert.Equal(t, 0, stats.Pending)
	assert.False(t, stats.Draining)
	assert.False(t, f.lockHeld(t, "owner-1"))
	assert.Empty(t, f.fake.Created())
}

func TestCreationQueue_SingleSlotRapidDuplicateJoins(t *testing.T) {
	f := newFixture(t, testConfig(func(c *model.TenantConfig) {
		c.Capacity = 1
		c.CooldownSeconds = 0
	}))
	release := make(chan struct{})
	f.fake.OnCreate(func(platform.RoomSpec) { <-release })

	f.joinTrigger(t, "owner-1")
	require.NoError(t, f.manager.OnOccupancyChange(context.Background(), &model.OccupancyChange{
		TenantID:       testTenant,
		Member:         member("owner-1"),
		PreviousRoomID: testLobby,
		CurrentRoomID:  testTrigger,
	}))

	close(release)
	f.wait(t)

	stats := f.queue.Stats()
	assert.Equal(t, uint64(1), stats.Admitted)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Len(t, f.fake.Created(), 1)
	assert.Len(t, f.listRooms(t), 1)
	assert.False(t, f.lockHeld(t, "owner-1"))

	// the tenant is now full, so a later request is admitted but creates nothing
	ok, err := f.queue.RequestCreate(context.Background(), f.request("owner-2"))
	require.NoError(t, err)
	assert.True(t, ok)
	f.wait(t)
	assert.Len(t, f.fake.Created(), 1)
	assert.Len(t, f.listRooms(t), 1)
}
