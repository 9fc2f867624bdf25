package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/devrev/tempvoice/internal/clock"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomManager turns platform membership events into creation requests and
// eviction schedule changes
type RoomManager struct {
	queue     *CreationQueue
	evictions *EvictionScheduler
	tenants   *TenantService
	rooms     store.RoomDirectory
	platform  platform.Platform
	clock     clock.Clock
	logger    *zap.Logger
}

// NewRoomManager creates a room manager
func NewRoomManager(
	queue *CreationQueue,
	evictions *EvictionScheduler,
	tenants *TenantService,
	rooms store.RoomDirectory,
	p platform.Platform,
	c clock.Clock,
	logger *zap.Logger,
) *RoomManager {
	return &RoomManager{
		queue:     queue,
		evictions: evictions,
		tenants:   tenants,
		rooms:     rooms,
		platform:  p,
		clock:     c,
		logger:    logger,
	}
}

// OnOccupancyChange handles one member moving between rooms. A move is
// both a leave of the previous room and a join of the current one.
func (m *RoomManager) OnOccupancyChange(ctx context.Context, ev *model.OccupancyChange) error {
	if ev.TenantID == "" || ev.Member.ID == "" {
		return apperrors.InvalidArgument("tenant_id and member id are required", nil)
	}

	var errs []error
	if ev.Left() {
		if err := m.handleLeave(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if ev.Joined() {
		if err := m.handleJoin(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *RoomManager) handleJoin(ctx context.Context, ev *model.OccupancyChange) error {
	cfg, err := m.tenants.GetConfig(ctx, ev.TenantID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load tenant config: %w", err)
	}

	if cfg != nil && cfg.Enabled && cfg.IsTrigger(ev.CurrentRoomID) {
		_, err := m.queue.RequestCreate(ctx, &model.CreateRequest{
			RequestID:     uuid.NewString(),
			TenantID:      ev.TenantID,
			TenantName:    ev.TenantName,
			Owner:         ev.Member,
			Source:        model.SourceTrigger,
			TriggerID:     ev.CurrentRoomID,
			CurrentRoomID: ev.CurrentRoomID,
			EnqueuedAt:    m.clock.Now(),
		})
		return err
	}

	room, err := m.rooms.Get(ctx, ev.CurrentRoomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up room: %w", err)
	}

	if _, err := m.evictions.Reactivate(ctx, room); err != nil {
		return err
	}
	now := m.clock.Now()
	if err := m.rooms.Update(ctx, room.ID, model.RoomPatch{LastActiveAt: &now}); err != nil && !errors.Is(err, store.ErrNotFound) {
		m.logger.Warn("Failed to touch room activity",
			zap.String("room_id", room.ID),
			zap.Error(err))
	}
	return nil
}

func (m *RoomManager) handleLeave(ctx context.Context, ev *model.OccupancyChange) error {
	room, err := m.rooms.Get(ctx, ev.PreviousRoomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up room: %w", err)
	}

	occupancy, err := m.platform.Occupancy(ctx, room.ID)
	if errors.Is(err, platform.ErrRoomNotFound) {
		// The recovery sweep removes the record
		m.logger.Info("Left room no longer exists",
			zap.String("room_id", room.ID))
		return nil
	}
	if err != nil {
		return platformError("occupancy", err)
	}
	if occupancy > 0 {
		return nil
	}

	_, err = m.evictions.ScheduleEviction(ctx, room)
	return err
}

// CreateRoom enqueues an explicit creation request for owner. It fails with
// CreationInFlight when the owner already has one queued or running.
func (m *RoomManager) CreateRoom(ctx context.Context, tenantID, tenantName string, owner model.Member, currentRoomID string) (*model.CreateRequest, error) {
	if tenantID == "" || owner.ID == "" {
		return nil, apperrors.InvalidArgument("tenant_id and owner id are required", nil)
	}

	req := &model.CreateRequest{
		RequestID:     uuid.NewString(),
		TenantID:      tenantID,
		TenantName:    tenantName,
		Owner:         owner,
		Source:        model.SourceExplicit,
		CurrentRoomID: currentRoomID,
		EnqueuedAt:    m.clock.Now(),
	}
	admitted, err := m.queue.RequestCreate(ctx, req)
	if err != nil {
		return nil, apperrors.InternalError("failed to enqueue room creation", err)
	}
	if !admitted {
		return nil, apperrors.CreationInFlight(tenantID, owner.ID)
	}
	return req, nil
}

// ListRooms returns the tracked rooms of a tenant
func (m *RoomManager) ListRooms(ctx context.Context, tenantID string) ([]*model.Room, error) {
	rooms, err := m.rooms.List(ctx, tenantID)
	if err != nil {
		return nil, apperrors.InternalError("failed to list rooms", err)
	}
	return rooms, nil
}

// GetRoom returns one tracked room
func (m *RoomManager) GetRoom(ctx context.Context, roomID string) (*model.Room, error) {
	room, err := m.rooms.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.RoomNotFound(roomID)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to get room", err)
	}
	return room, nil
}
