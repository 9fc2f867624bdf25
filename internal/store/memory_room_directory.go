package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/model"
)

// MemoryRoomDirectory implements RoomDirectory in process memory.
// Used for local runs without Postgres and as the directory in tests.
type MemoryRoomDirectory struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room
}

// NewMemoryRoomDirectory creates an empty directory
func NewMemoryRoomDirectory() *MemoryRoomDirectory {
	return &MemoryRoomDirectory{
		rooms: make(map[string]*model.Room),
	}
}

func copyRoom(r *model.Room) *model.Room {
	out := *r
	if r.ScheduledEvictionAt != nil {
		deadline := *r.ScheduledEvictionAt
		out.ScheduledEvictionAt = &deadline
	}
	return &out
}

// Get retrieves a room by id
func (s *MemoryRoomDirectory) Get(ctx context.Context, roomID string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRoom(room), nil
}

// FindRecent returns the owner's newest room created at or after since
func (s *MemoryRoomDirectory) FindRecent(ctx context.Context, tenantID, ownerID string, since time.Time) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *model.Room
	for _, room := range s.rooms {
		if room.TenantID != tenantID || room.OwnerID != ownerID || room.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || room.CreatedAt.After(newest.CreatedAt) {
			newest = room
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return copyRoom(newest), nil
}

// Count returns the number of live rooms in the tenant
func (s *MemoryRoomDirectory) Count(ctx context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, room := range s.rooms {
		if room.TenantID == tenantID && room.State != model.RoomDeleted {
			count++
		}
	}
	return count, nil
}

// Create inserts a new room record
func (s *MemoryRoomDirectory) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.ID]; exists {
		return nil, fmt.Errorf("room %s already exists", room.ID)
	}
	stored := copyRoom(room)
	if stored.State == "" {
		stored.State = model.RoomActive
	}
	s.rooms[room.ID] = stored
	return copyRoom(stored), nil
}

// Update applies a patch to a room record
func (s *MemoryRoomDirectory) Update(ctx context.Context, roomID string, patch model.RoomPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	patch.Apply(room)
	return nil
}

// Delete removes a room record
func (s *MemoryRoomDirectory) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return ErrNotFound
	}
	delete(s.rooms, roomID)
	return nil
}

// List returns the tenant's rooms ordered by creation time
func (s *MemoryRoomDirectory) List(ctx context.Context, tenantID string) ([]*model.Room, error) {
	return s.list(func(r *model.Room) bool { return r.TenantID == tenantID }), nil
}

// ListAll returns every room ordered by creation time
func (s *MemoryRoomDirectory) ListAll(ctx context.Context) ([]*model.Room, error) {
	return s.list(func(*model.Room) bool { return true }), nil
}

func (s *MemoryRoomDirectory) list(keep func(*model.Room) bool) []*model.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]*model.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		if keep(room) {
			rooms = append(rooms, copyRoom(room))
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms
}

// Ping always succeeds
func (s *MemoryRoomDirectory) Ping(ctx context.Context) error { return nil }

// Close is a no-op
func (s *MemoryRoomDirectory) Close() {}
