package platform

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Op names a platform operation for failure injection
type Op string

const (
	OpCanManage      Op = "can_manage"
	OpParentCategory Op = "parent_category"
	OpCreateRoom     Op = "create_room"
	OpDeleteRoom     Op = "delete_room"
	OpMoveMember     Op = "move_member"
	OpOccupancy      Op = "occupancy"
	OpEdit           Op = "edit"
)

// MemoryRoom is the in-process state of one platform room
type MemoryRoom struct {
	ID         string
	TenantID   string
	Name       string
	CategoryID string
	UserLimit  int
	Overwrites []Overwrite
	members    map[string]bool
}

// Memory is an in-process Platform. It backs local runs and tests, and
// records how many room creations ran at once.
type Memory struct {
	mu       sync.Mutex
	rooms    map[string]*MemoryRoom
	location map[string]string // tenant:member -> room id
	noManage map[string]bool
	failures map[Op]error
	createFn func(spec RoomSpec)
	created  []RoomSpec
	deleted  []string

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

// NewMemory creates an empty in-memory platform
func NewMemory() *Memory {
	return &Memory{
		rooms:    make(map[string]*MemoryRoom),
		location: make(map[string]string),
		noManage: make(map[string]bool),
		failures: make(map[Op]error),
	}
}

func memberKey(tenantID, memberID string) string {
	return tenantID + ":" + memberID
}

// AddRoom registers a pre-existing room, such as a trigger point
func (m *Memory) AddRoom(tenantID, roomID, categoryID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[roomID] = &MemoryRoom{
		ID:         roomID,
		TenantID:   tenantID,
		Name:       roomID,
		CategoryID: categoryID,
		members:    make(map[string]bool),
	}
}

// RemoveRoom drops a room as if it was deleted outside the service
func (m *Memory) RemoveRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(roomID)
}

func (m *Memory) removeLocked(roomID string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	for member := range room.members {
		delete(m.location, memberKey(room.TenantID, member))
	}
	delete(m.rooms, roomID)
}

// Connect places a member in a room, leaving any previous room
func (m *Memory) Connect(tenantID, memberID, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectLocked(tenantID, memberID, roomID)
}

func (m *Memory) connectLocked(tenantID, memberID, roomID string) error {
	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	m.disconnectLocked(tenantID, memberID)
	room.members[memberID] = true
	m.location[memberKey(tenantID, memberID)] = roomID
	return nil
}

// Disconnect removes a member from whatever room they are in
func (m *Memory) Disconnect(tenantID, memberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked(tenantID, memberID)
}

func (m *Memory) disconnectLocked(tenantID, memberID string) {
	key := memberKey(tenantID, memberID)
	if current, ok := m.location[key]; ok {
		if room, exists := m.rooms[current]; exists {
			delete(room.members, memberID)
		}
		delete(m.location, key)
	}
}

// Location returns the room a member is connected to
func (m *Memory) Location(tenantID, memberID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.location[memberKey(tenantID, memberID)]
	return roomID, ok
}

// Room returns a copy of a room's state
func (m *Memory) Room(roomID string) (MemoryRoom, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return MemoryRoom{}, false
	}
	out := *room
	out.Overwrites = append([]Overwrite(nil), room.Overwrites...)
	out.members = nil
	return out, true
}

// SetCanManage toggles the management right for a tenant
func (m *Memory) SetCanManage(tenantID string, allowed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noManage[tenantID] = !allowed
}

// Fail makes every call to op return err until cleared with a nil err
func (m *Memory) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// OnCreate installs a hook that runs inside CreateRoom while the call is
// counted as in flight. Tests use it to hold creations open.
func (m *Memory) OnCreate(fn func(spec RoomSpec)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createFn = fn
}

// Created returns the specs of every successful CreateRoom call
func (m *Memory) Created() []RoomSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RoomSpec(nil), m.created...)
}

// Deleted returns the ids passed to successful DeleteRoom calls
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// MaxConcurrentCreates returns the highest number of overlapping CreateRoom calls seen
func (m *Memory) MaxConcurrentCreates() int {
	return int(m.maxInFlight.Load())
}

func (m *Memory) failure(op Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[op]
}

func (m *Memory) CanManage(ctx context.Context, tenantID string) (bool, error) {
	if err := m.failure(OpCanManage); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.noManage[tenantID], nil
}

func (m *Memory) ParentCategory(ctx context.Context, roomID string) (string, error) {
	if err := m.failure(OpParentCategory); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return "", ErrRoomNotFound
	}
	return room.CategoryID, nil
}

func (m *Memory) CreateRoom(ctx context.Context, spec RoomSpec) (string, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxInFlight.Load()
		if n <= peak || m.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	m.mu.Lock()
	hook := m.createFn
	m.mu.Unlock()
	if hook != nil {
		hook(spec)
	}

	if err := m.failure(OpCreateRoom); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.rooms[id] = &MemoryRoom{
		ID:         id,
		TenantID:   spec.TenantID,
		Name:       spec.Name,
		CategoryID: spec.CategoryID,
		Overwrites: append([]Overwrite(nil), spec.Overwrites...),
		members:    make(map[string]bool),
	}
	m.created = append(m.created, spec)
	return id, nil
}

func (m *Memory) DeleteRoom(ctx context.Context, roomID string) error {
	if err := m.failure(OpDeleteRoom); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rooms[roomID]; !ok {
		return ErrRoomNotFound
	}
	m.removeLocked(roomID)
	m.deleted = append(m.deleted, roomID)
	return nil
}

func (m *Memory) MoveMember(ctx context.Context, tenantID, memberID, roomID string) error {
	if err := m.failure(OpMoveMember); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.location[memberKey(tenantID, memberID)]; !ok {
		return ErrMemberNotConnected
	}
	return m.connectLocked(tenantID, memberID, roomID)
}

func (m *Memory) Occupancy(ctx context.Context, roomID string) (int, error) {
	members, err := m.Members(ctx, roomID)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (m *Memory) Members(ctx context.Context, roomID string) ([]string, error) {
	if err := m.failure(OpOccupancy); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	members := make([]string, 0, len(room.members))
	for id := range room.members {
		members = append(members, id)
	}
	sort.Strings(members)
	return members, nil
}

func (m *Memory) SetConnectAllowed(ctx context.Context, tenantID, roomID string, allowed bool) error {
	return m.edit(roomID, func(room *MemoryRoom) {
		ow := Overwrite{TargetID: tenantID, TargetKind: TargetTenant}
		if allowed {
			ow.Allow = []Permission{PermConnect}
		} else {
			ow.Deny = []Permission{PermConnect}
		}
		room.setOverwrite(ow)
	})
}

func (m *Memory) SetUserLimit(ctx context.Context, roomID string, limit int) error {
	return m.edit(roomID, func(room *MemoryRoom) { room.UserLimit = limit })
}

func (m *Memory) Rename(ctx context.Context, roomID, name string) error {
	return m.edit(roomID, func(room *MemoryRoom) { room.Name = name })
}

func (m *Memory) GrantOwner(ctx context.Context, roomID, memberID string) error {
	return m.edit(roomID, func(room *MemoryRoom) {
		room.setOverwrite(OwnerOverwrites(room.TenantID, memberID)[0])
	})
}

func (m *Memory) RevokeOwner(ctx context.Context, roomID, memberID string) error {
	return m.edit(roomID, func(room *MemoryRoom) {
		room.setOverwrite(RevokedOwnerOverwrite(memberID))
	})
}

func (m *Memory) KickMember(ctx context.Context, roomID, memberID string) error {
	var tenantID string
	err := m.edit(roomID, func(room *MemoryRoom) { tenantID = room.TenantID })
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.location[memberKey(tenantID, memberID)] != roomID {
		return ErrMemberNotConnected
	}
	m.disconnectLocked(tenantID, memberID)
	return nil
}

func (m *Memory) edit(roomID string, fn func(room *MemoryRoom)) error {
	if err := m.failure(OpEdit); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	fn(room)
	return nil
}

func (r *MemoryRoom) setOverwrite(ow Overwrite) {
	for i, existing := range r.Overwrites {
		if existing.TargetID == ow.TargetID && existing.TargetKind == ow.TargetKind {
			r.Overwrites[i] = ow
			return
		}
	}
	r.Overwrites = append(r.Overwrites, ow)
}

// Ping always succeeds
func (m *Memory) Ping(ctx context.Context) error { return nil }
