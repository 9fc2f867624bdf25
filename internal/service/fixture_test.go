package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testTenant   = "tenant-1"
	testTrigger  = "trigger-1"
	testLobby    = "lobby-1"
	testCategory = "category-1"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fixture wires the whole room lifecycle on in-memory backends and a fake clock
type fixture struct {
	clock     *clock.Fake
	coord     *coordinator.Coordinator
	fake      *platform.Memory
	rooms     *faultyDirectory
	configs   *store.MemoryConfigStore
	metrics   *metrics.Metrics
	tenants   *TenantService
	evictions *EvictionScheduler
	prov      *Provisioner
	queue     *CreationQueue
	manager   *RoomManager
	controls  *ControlService
	sweep     *RecoverySweep
}

func testConfig(mutate ...func(*model.TenantConfig)) *model.TenantConfig {
	cfg := model.DefaultTenantConfig(testTenant)
	cfg.CooldownSeconds = 0
	cfg.TriggerPoints = []string{testTrigger}
	cfg.DefaultCategoryID = "default-category"
	for _, fn := range mutate {
		fn(cfg)
	}
	return cfg
}

func newFixture(t *testing.T, configs ...*model.TenantConfig) *fixture {
	t.Helper()

	logger := zap.NewNop()
	f := &fixture{
		clock:   clock.NewFake(testEpoch),
		fake:    platform.NewMemory(),
		rooms:   &faultyDirectory{RoomDirectory: store.NewMemoryRoomDirectory()},
		configs: store.NewMemoryConfigStore(configs...),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	f.coord = coordinator.NewInMemory(f.clock)
	f.tenants = NewTenantService(f.configs, store.NewInMemoryCache(100, time.Minute, logger), time.Minute, f.metrics, logger)
	f.evictions = NewEvictionScheduler(f.coord.Timers, f.rooms, f.fake, f.tenants, f.clock, 30*time.Second, 5*time.Second, f.metrics, logger)
	f.prov = NewProvisioner(f.fake, f.tenants, f.rooms, f.coord.Locks, f.evictions, f.clock, f.metrics, logger)
	f.queue = NewCreationQueue(f.coord.Locks, f.prov, DefaultConcurrencyLimit, f.metrics, logger)
	f.manager = NewRoomManager(f.queue, f.evictions, f.tenants, f.rooms, f.fake, f.clock, logger)
	f.controls = NewControlService(f.rooms, f.fake, f.evictions, logger)
	f.sweep = NewRecoverySweep(f.rooms, f.fake, f.evictions, f.clock, time.Minute, f.metrics, logger)

	f.fake.AddRoom(testTenant, testTrigger, testCategory)
	f.fake.AddRoom(testTenant, testLobby, "")
	return f
}

func member(id string) model.Member {
	return model.Member{ID: id, Username: id, DisplayName: "Display " + id}
}

func (f *fixture) request(ownerID string) *model.CreateRequest {
	return &model.CreateRequest{
		RequestID: "req-" + ownerID,
		TenantID:  testTenant,
		Owner:     member(ownerID),
		Source:    model.SourceExplicit,
	}
}

// joinTrigger connects ownerID to the trigger point and reports the event
func (f *fixture) joinTrigger(t *testing.T, ownerID string) {
	t.Helper()
	require.NoError(t, f.fake.Connect(testTenant, ownerID, testTrigger))
	require.NoError(t, f.manager.OnOccupancyChange(context.Background(), &model.OccupancyChange{
		TenantID:      testTenant,
		Member:        member(ownerID),
		CurrentRoomID: testTrigger,
	}))
}

// leave disconnects memberID and reports the event
func (f *fixture) leave(t *testing.T, memberID, roomID string) {
	t.Helper()
	f.fake.Disconnect(testTenant, memberID)
	require.NoError(t, f.manager.OnOccupancyChange(context.Background(), &model.OccupancyChange{
		TenantID:       testTenant,
		Member:         member(memberID),
		PreviousRoomID: roomID,
	}))
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.queue.Wait(ctx))
}

func (f *fixture) lockHeld(t *testing.T, ownerID string) bool {
	t.Helper()
	held, err := f.coord.Locks.Held(context.Background(), model.AdmissionKey(testTenant, ownerID))
	require.NoError(t, err)
	return held
}

func (f *fixture) listRooms(t *testing.T) []*model.Room {
	t.Helper()
	rooms, err := f.rooms.ListAll(context.Background())
	require.NoError(t, err)
	return rooms
}

// seedRoom creates a platform room and its record directly
func (f *fixture) seedRoom(t *testing.T, roomID, ownerID string, mutate ...func(*model.Room)) *model.Room {
	t.Helper()
	f.fake.AddRoom(testTenant, roomID, "")
	room := &model.Room{
		ID:           roomID,
		TenantID:     testTenant,
		OwnerID:      ownerID,
		Name:         ownerID + "'s Room",
		State:        model.RoomActive,
		CreatedAt:    f.clock.Now(),
		LastActiveAt: f.clock.Now(),
	}
	for _, fn := range mutate {
		fn(room)
	}
	created, err := f.rooms.Create(context.Background(), room)
	require.NoError(t, err)
	return created
}

var errInjected = errors.New("injected failure")

// faultyDirectory fails Create on demand
type faultyDirectory struct {
	store.RoomDirectory

	mu         sync.Mutex
	failCreate error
}

func (d *faultyDirectory) FailCreate(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failCreate = err
}

func (d *faultyDirectory) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	d.mu.Lock()
	err := d.failCreate
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return d.RoomDirectory.Create(ctx, room)
}
