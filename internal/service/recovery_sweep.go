package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// Sweep pass names used in logs and metrics
const (
	PassStartup  = "startup"
	PassPeriodic = "periodic"
)

// DefaultSweepInterval is the period of the orphan-only pass
const DefaultSweepInterval = 5 * time.Minute

// SweepReport counts what one sweep pass did
type SweepReport struct {
	Pass     string
	Checked  int
	Orphans  int
	Overdue  int
	Rearmed  int
	Armed    int
	Cleared  int
	Failed   int
	Duration time.Duration
}

// RecoverySweep reconciles room records with the rooms that exist on the platform
type RecoverySweep struct {
	rooms     store.RoomDirectory
	platform  platform.Platform
	evictions *EvictionScheduler
	clock     clock.Clock
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewRecoverySweep creates a recovery sweep
func NewRecoverySweep(
	rooms store.RoomDirectory,
	p platform.Platform,
	evictions *EvictionScheduler,
	c clock.Clock,
	interval time.Duration,
	m *metrics.Metrics,
	logger *zap.Logger,
) *RecoverySweep {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &RecoverySweep{
		rooms:     rooms,
		platform:  p,
		evictions: evictions,
		clock:     c,
		interval:  interval,
		metrics:   m,
		logger:    logger,
	}
}

// Restore is the startup pass. For every record it prunes orphans, clears
// deadlines on occupied rooms, deletes overdue rooms and re-arms the rest.
func (s *RecoverySweep) Restore(ctx context.Context) (*SweepReport, error) {
	start := s.clock.Now()
	report := &SweepReport{Pass: PassStartup}

	s.logger.Info("Restoring room state")

	rooms, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	for _, room := range rooms {
		report.Checked++
		s.restoreRoom(ctx, room, report)
	}

	report.Duration = s.clock.Now().Sub(start)
	s.metrics.RecordSweep(PassStartup, report.Orphans, report.Duration)
	s.logger.Info("Room state restored",
		zap.Int("checked", report.Checked),
		zap.Int("orphans", report.Orphans),
		zap.Int("overdue", report.Overdue),
		zap.Int("rearmed", report.Rearmed),
		zap.Int("armed", report.Armed),
		zap.Int("cleared", report.Cleared),
		zap.Int("failed", report.Failed))

	return report, nil
}

func (s *RecoverySweep) restoreRoom(ctx context.Context, room *model.Room, report *SweepReport) {
	occupancy, err := s.platform.Occupancy(ctx, room.ID)
	if errors.Is(err, platform.ErrRoomNotFound) {
		if s.pruneOrphan(ctx, room) {
			report.Orphans++
		} else {
			report.Failed++
		}
		return
	}
	if err != nil {
		report.Failed++
		s.logger.Error("Failed to check room during restore",
			zap.String("room_id", room.ID),
			zap.Error(err))
		return
	}

	if occupancy > 0 {
		if room.ScheduledEvictionAt == nil && room.State == model.RoomActive {
			return
		}
		s.logger.Info("Occupied room had a pending eviction, cancelling",
			zap.String("room_id", room.ID))
		if _, err := s.evictions.Reactivate(ctx, room); err != nil {
			report.Failed++
			s.logger.Error("Failed to reactivate room",
				zap.String("room_id", room.ID),
				zap.Error(err))
			return
		}
		report.Cleared++
		return
	}

	now := s.clock.Now()
	switch {
	case room.ScheduledEvictionAt != nil && !room.ScheduledEvictionAt.After(now):
		s.logger.Info("Deleting overdue room",
			zap.String("room_id", room.ID),
			zap.Time("deadline", *room.ScheduledEvictionAt))
		switch s.evictions.EvictNow(ctx, room.ID) {
		case EvictionDeleted, EvictionGone:
			report.Overdue++
		case EvictionFailed:
			report.Failed++
		}

	case room.ScheduledEvictionAt != nil:
		remaining := room.ScheduledEvictionAt.Sub(now)
		s.logger.Info("Rescheduling room eviction",
			zap.String("room_id", room.ID),
			zap.Duration("delay", remaining))
		if _, err := s.evictions.scheduleAt(ctx, room.ID, *room.ScheduledEvictionAt); err != nil {
			s.logger.Warn("Failed to persist rescheduled eviction",
				zap.String("room_id", room.ID),
				zap.Error(err))
		}
		report.Rearmed++

	default:
		s.logger.Info("Found empty room without deadline, scheduling eviction",
			zap.String("room_id", room.ID))
		if _, err := s.evictions.ScheduleEviction(ctx, room); err != nil {
			s.logger.Warn("Failed to persist eviction deadline",
				zap.String("room_id", room.ID),
				zap.Error(err))
		}
		report.Armed++
	}
}

// PruneOrphans is the periodic pass: it only removes records whose
// platform room no longer exists
func (s *RecoverySweep) PruneOrphans(ctx context.Context) (*SweepReport, error) {
	start := s.clock.Now()
	report := &SweepReport{Pass: PassPeriodic}

	rooms, err := s.rooms.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	for _, room := range rooms {
		report.Checked++
		_, err := s.platform.Occupancy(ctx, room.ID)
		if errors.Is(err, platform.ErrRoomNotFound) {
			if s.pruneOrphan(ctx, room) {
				report.Orphans++
			} else {
				report.Failed++
			}
			continue
		}
		if err != nil {
			report.Failed++
			s.logger.Warn("Failed to check room existence",
				zap.String("room_id", room.ID),
				zap.Error(err))
		}
	}

	report.Duration = s.clock.Now().Sub(start)
	s.metrics.RecordSweep(PassPeriodic, report.Orphans, report.Duration)
	if report.Orphans > 0 {
		s.logger.Info("Orphan cleanup removed rooms",
			zap.Int("orphans", report.Orphans))
	}
	return report, nil
}

// pruneOrphan removes the record of a room that no longer exists
func (s *RecoverySweep) pruneOrphan(ctx context.Context, room *model.Room) bool {
	s.logger.Warn("Orphan detected, cleaning up",
		zap.String("room_id", room.ID),
		zap.String("tenant_id", room.TenantID))

	s.evictions.Forget(room.ID)
	if err := s.rooms.Delete(ctx, room.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Failed to delete orphaned room record",
			zap.String("room_id", room.ID),
			zap.Error(err))
		return false
	}
	return true
}

// Run prunes orphans every interval until ctx is cancelled
func (s *RecoverySweep) Run(ctx context.Context) {
	s.logger.Info("Starting periodic orphan cleanup",
		zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Periodic orphan cleanup stopped")
			return
		case <-ticker.C:
			if _, err := s.PruneOrphans(ctx); err != nil {
				s.logger.Error("Orphan cleanup failed",
					zap.Error(err))
			}
		}
	}
}
