package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// MaxUserLimit is the largest member cap a room accepts; 0 means no limit
const MaxUserLimit = 99

// ControlService applies owner actions to a live room
type ControlService struct {
	rooms     store.RoomDirectory
	platform  platform.Platform
	evictions *EvictionScheduler
	logger    *zap.Logger
}

// NewControlService creates a control service
func NewControlService(
	rooms store.RoomDirectory,
	p platform.Platform,
	evictions *EvictionScheduler,
	logger *zap.Logger,
) *ControlService {
	return &ControlService{
		rooms:     rooms,
		platform:  p,
		evictions: evictions,
		logger:    logger,
	}
}

// Lock stops the tenant's members from connecting to the room
func (s *ControlService) Lock(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	return s.setLocked(ctx, roomID, callerID, true)
}

// Unlock lets the tenant's members connect again
func (s *ControlService) Unlock(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	return s.setLocked(ctx, roomID, callerID, false)
}

func (s *ControlService) setLocked(ctx context.Context, roomID, callerID string, locked bool) (*model.Room, error) {
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.platform.SetConnectAllowed(ctx, room.TenantID, room.ID, !locked); err != nil {
		return nil, s.controlError(room.ID, "set_connect", err)
	}
	return s.patch(ctx, room, model.RoomPatch{Locked: &locked})
}

// SetUserLimit caps the number of members; 0 removes the cap
func (s *ControlService) SetUserLimit(ctx context.Context, roomID, callerID string, limit int) (*model.Room, error) {
	if limit < 0 || limit > MaxUserLimit {
		return nil, apperrors.InvalidArgument("user limit must be between 0 and 99", nil)
	}
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.platform.SetUserLimit(ctx, room.ID, limit); err != nil {
		return nil, s.controlError(room.ID, "set_user_limit", err)
	}
	return s.patch(ctx, room, model.RoomPatch{UserLimit: &limit})
}

// Rename changes the room name
func (s *ControlService) Rename(ctx context.Context, roomID, callerID, name string) (*model.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxRoomNameLength {
		return nil, apperrors.InvalidArgument("room name must be 1 to 100 characters", nil)
	}
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}
	if err := s.platform.Rename(ctx, room.ID, name); err != nil {
		return nil, s.controlError(room.ID, "rename", err)
	}
	return s.patch(ctx, room, model.RoomPatch{Name: &name})
}

// Transfer hands ownership to another member who is in the room
func (s *ControlService) Transfer(ctx context.Context, roomID, callerID, newOwnerID string) (*model.Room, error) {
	if newOwnerID == "" {
		return nil, apperrors.InvalidArgument("new owner is required", nil)
	}
	if newOwnerID == callerID {
		return nil, apperrors.InvalidArgument("already the owner", nil)
	}
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return nil, err
	}

	members, err := s.platform.Members(ctx, room.ID)
	if err != nil {
		return nil, s.controlError(room.ID, "members", err)
	}
	present := false
	for _, id := range members {
		if id == newOwnerID {
			present = true
			break
		}
	}
	if !present {
		return nil, apperrors.InvalidArgument("new owner must be in the room", nil).
			WithDetail("member_id", newOwnerID)
	}

	if err := s.platform.GrantOwner(ctx, room.ID, newOwnerID); err != nil {
		return nil, s.controlError(room.ID, "grant_owner", err)
	}
	if err := s.platform.RevokeOwner(ctx, room.ID, callerID); err != nil {
		s.logger.Warn("Failed to revoke previous owner",
			zap.String("room_id", room.ID),
			zap.String("owner_id", callerID),
			zap.Error(err))
	}

	s.logger.Info("Transferred room ownership",
		zap.String("room_id", room.ID),
		zap.String("from", callerID),
		zap.String("to", newOwnerID))
	return s.patch(ctx, room, model.RoomPatch{OwnerID: &newOwnerID})
}

// Kick disconnects a member from the room
func (s *ControlService) Kick(ctx context.Context, roomID, callerID, memberID string) error {
	if memberID == "" || memberID == callerID {
		return apperrors.InvalidArgument("cannot kick this member", nil)
	}
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return err
	}
	if err := s.platform.KickMember(ctx, room.ID, memberID); err != nil {
		if errors.Is(err, platform.ErrMemberNotConnected) {
			return apperrors.InvalidArgument("member is not in the room", err).
				WithDetail("member_id", memberID)
		}
		return s.controlError(room.ID, "kick", err)
	}
	return nil
}

// Close deletes the room right away
func (s *ControlService) Close(ctx context.Context, roomID, callerID string) error {
	room, err := s.ownedRoom(ctx, roomID, callerID)
	if err != nil {
		return err
	}

	s.evictions.Forget(room.ID)
	if err := s.platform.DeleteRoom(ctx, room.ID); err != nil && !errors.Is(err, platform.ErrRoomNotFound) {
		return platformError("delete_room", err)
	}
	if err := s.rooms.Delete(ctx, room.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return apperrors.InternalError("failed to delete room record", err)
	}

	s.logger.Info("Closed room",
		zap.String("room_id", room.ID),
		zap.String("owner_id", callerID))
	return nil
}

// ownedRoom loads roomID and checks that callerID owns it
func (s *ControlService) ownedRoom(ctx context.Context, roomID, callerID string) (*model.Room, error) {
	if callerID == "" {
		return nil, apperrors.InvalidArgument("caller member id is required", nil)
	}
	room, err := s.rooms.Get(ctx, roomID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && room.State == model.RoomDeleted) {
		return nil, apperrors.RoomNotFound(roomID)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to get room", err)
	}
	if room.OwnerID != callerID {
		return nil, apperrors.NotOwner(roomID, callerID)
	}
	return room, nil
}

func (s *ControlService) patch(ctx context.Context, room *model.Room, p model.RoomPatch) (*model.Room, error) {
	if err := s.rooms.Update(ctx, room.ID, p); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.RoomNotFound(room.ID)
		}
		return nil, apperrors.InternalError("failed to update room", err)
	}
	p.Apply(room)
	return room, nil
}

func (s *ControlService) controlError(roomID, op string, err error) error {
	if errors.Is(err, platform.ErrRoomNotFound) {
		return apperrors.RoomNotFound(roomID)
	}
	return platformError(op, err)
}
