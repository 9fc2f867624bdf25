package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
	"github.com/devrev/tempvoice/internal/coordinator"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// EvictionOutcome is what a fired or forced eviction did
type EvictionOutcome string

const (
	// EvictionDeleted means the platform room and its record were removed
	EvictionDeleted EvictionOutcome = "deleted"
	// EvictionReactivated means the room was occupied again and stays Active
	EvictionReactivated EvictionOutcome = "reactivated"
	// EvictionGone means the platform room had already disappeared
	EvictionGone EvictionOutcome = "gone"
	// EvictionFailed leaves the persisted deadline for the next recovery sweep
	EvictionFailed EvictionOutcome = "failed"
)

// EvictionScheduler deletes rooms that stay empty for the tenant's
// eviction delay. Armed timers live in the timer table; their deadlines
// are persisted on the room record for recovery after a restart.
type EvictionScheduler struct {
	timers       coordinator.TimerTable
	rooms        store.RoomDirectory
	platform     platform.Platform
	tenants      *TenantService
	clock        clock.Clock
	defaultDelay time.Duration
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewEvictionScheduler creates an eviction scheduler. timeout bounds the
// platform and directory calls made when a timer fires.
func NewEvictionScheduler(
	timers coordinator.TimerTable,
	rooms store.RoomDirectory,
	p platform.Platform,
	tenants *TenantService,
	c clock.Clock,
	defaultDelay time.Duration,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *EvictionScheduler {
	if defaultDelay <= 0 {
		defaultDelay = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	m.WatchTimersArmed(timers.Len)

	return &EvictionScheduler{
		timers:       timers,
		rooms:        rooms,
		platform:     p,
		tenants:      tenants,
		clock:        c,
		defaultDelay: defaultDelay,
		timeout:      timeout,
		metrics:      m,
		logger:       logger,
	}
}

// ScheduleEviction moves an empty room to PendingEviction with the tenant's
// full delay. It is a no-op returning false when a timer is already armed.
func (s *EvictionScheduler) ScheduleEviction(ctx context.Context, room *model.Room) (bool, error) {
	delay := s.delayFor(ctx, room.TenantID)
	return s.scheduleAt(ctx, room.ID, s.clock.Now().Add(delay))
}

// scheduleAt arms the timer for roomID and persists deadline
func (s *EvictionScheduler) scheduleAt(ctx context.Context, roomID string, deadline time.Time) (bool, error) {
	if !s.timers.Arm(roomID, deadline, func() { s.fire(roomID) }) {
		s.logger.Debug("Eviction already scheduled",
			zap.String("room_id", roomID))
		return false, nil
	}
	s.logger.Info("Scheduled room eviction",
		zap.String("room_id", roomID),
		zap.Duration("delay", deadline.Sub(s.clock.Now())))

	if err := s.rooms.Update(ctx, roomID, model.PendingEvictionPatch(deadline)); err != nil {
		// The timer stays armed; recovery re-arms an empty room without a deadline
		return true, fmt.Errorf("failed to persist eviction deadline: %w", err)
	}
	return true, nil
}

// Reactivate cancels any armed timer for the room and moves its record back
// to Active. It reports whether anything changed.
func (s *EvictionScheduler) Reactivate(ctx context.Context, room *model.Room) (bool, error) {
	cancelled := s.timers.Cancel(room.ID)
	if cancelled {
		s.logger.Debug("Cancelled room eviction",
			zap.String("room_id", room.ID))
	}

	if !cancelled && room.State == model.RoomActive && room.ScheduledEvictionAt == nil {
		return false, nil
	}

	if err := s.rooms.Update(ctx, room.ID, model.ActivePatch()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return cancelled, nil
		}
		return cancelled, fmt.Errorf("failed to clear eviction deadline: %w", err)
	}
	return true, nil
}

// Forget cancels the timer for a room that is being removed by other means
func (s *EvictionScheduler) Forget(roomID string) {
	s.timers.Cancel(roomID)
}

// Armed reports the pending deadline for roomID
func (s *EvictionScheduler) Armed(roomID string) (time.Time, bool) {
	return s.timers.Deadline(roomID)
}

// EvictNow runs the eviction for roomID immediately, cancelling any armed timer
func (s *EvictionScheduler) EvictNow(ctx context.Context, roomID string) EvictionOutcome {
	s.Forget(roomID)
	outcome := s.evict(ctx, roomID)
	s.metrics.RecordEviction(string(outcome))
	return outcome
}

// fire is the timer callback
func (s *EvictionScheduler) fire(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	outcome := s.evict(ctx, roomID)
	s.metrics.RecordEviction(string(outcome))
}

// evict re-checks occupancy and deletes the room if it is still empty
func (s *EvictionScheduler) evict(ctx context.Context, roomID string) EvictionOutcome {
	occupancy, err := s.platform.Occupancy(ctx, roomID)
	if errors.Is(err, platform.ErrRoomNotFound) {
		s.removeRecord(ctx, roomID)
		s.logger.Info("Room already gone, removed record",
			zap.String("room_id", roomID))
		return EvictionGone
	}
	if err != nil {
		s.logger.Error("Failed to check room occupancy before eviction",
			zap.String("room_id", roomID),
			zap.Error(err))
		return EvictionFailed
	}

	// A join may have raced the timer
	if occupancy > 0 {
		if _, rearmed := s.timers.Deadline(roomID); rearmed {
			// a leave during the check armed a new timer and persisted its deadline
			s.logger.Info("Room occupied at eviction time, new eviction already armed",
				zap.String("room_id", roomID))
			return EvictionReactivated
		}
		if err := s.rooms.Update(ctx, roomID, model.ActivePatch()); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to clear eviction deadline of occupied room",
				zap.String("room_id", roomID),
				zap.Error(err))
		}
		s.logger.Info("Room occupied at eviction time, keeping it",
			zap.String("room_id", roomID),
			zap.Int("occupancy", occupancy))
		return EvictionReactivated
	}

	if err := s.rooms.Update(ctx, roomID, model.DeletedPatch(s.clock.Now())); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("Failed to mark room deleted",
			zap.String("room_id", roomID),
			zap.Error(err))
	}

	if err := s.platform.DeleteRoom(ctx, roomID); err != nil && !errors.Is(err, platform.ErrRoomNotFound) {
		s.logger.Error("Failed to delete empty room",
			zap.String("room_id", roomID),
			zap.Error(err))
		return EvictionFailed
	}

	s.removeRecord(ctx, roomID)
	s.logger.Info("Deleted empty room",
		zap.String("room_id", roomID))
	return EvictionDeleted
}

// removeRecord deletes the directory record; a leftover record is pruned by the recovery sweep
func (s *EvictionScheduler) removeRecord(ctx context.Context, roomID string) {
	if err := s.rooms.Delete(ctx, roomID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Failed to delete room record",
			zap.String("room_id", roomID),
			zap.Error(err))
	}
}

// delayFor returns the tenant's eviction delay, or the default if it has none
func (s *EvictionScheduler) delayFor(ctx context.Context, tenantID string) time.Duration {
	cfg, err := s.tenants.GetConfig(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Failed to load tenant config, using default eviction delay",
				zap.String("tenant_id", tenantID),
				zap.Error(err))
		}
		return s.defaultDelay
	}
	if delay := cfg.EvictionDelay(); delay > 0 {
		return delay
	}
	return s.defaultDelay
}
