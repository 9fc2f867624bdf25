package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/clock"
	"github.com/devrev/tempvoice/internal/coordinator"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/metrics"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/platform"
	"github.com/devrev/tempvoice/internal/store"
	"go.uber.org/zap"
)

// Provisioner creates one room per admitted request
type Provisioner struct {
	platform  platform.Platform
	tenants   *TenantService
	rooms     store.RoomDirectory
	locks     coordinator.LockTable
	evictions *EvictionScheduler
	clock     clock.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger

	mu    sync.Mutex
	slots map[string]*tenantSlots
}

// tenantSlots serializes capacity checks for one tenant. users counts the
// callers inside reserve or holding a reservation; the entry is dropped at zero.
type tenantSlots struct {
	mu       sync.Mutex
	reserved int
	users    int
}

// NewProvisioner creates a provisioner
func NewProvisioner(
	p platform.Platform,
	tenants *TenantService,
	rooms store.RoomDirectory,
	locks coordinator.LockTable,
	evictions *EvictionScheduler,
	c clock.Clock,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Provisioner {
	return &Provisioner{
		platform:  p,
		tenants:   tenants,
		rooms:     rooms,
		locks:     locks,
		evictions: evictions,
		clock:     c,
		metrics:   m,
		logger:    logger,
		slots:     make(map[string]*tenantSlots),
	}
}

// Execute provisions the room for req and releases its admission lock,
// whatever the outcome
func (p *Provisioner) Execute(ctx context.Context, req *model.CreateRequest) (err error) {
	start := p.clock.Now()
	p.metrics.ProvisionInFlight.Inc()

	defer func() {
		p.metrics.ProvisionInFlight.Dec()
		if relErr := p.locks.Release(context.WithoutCancel(ctx), req.LockKey()); relErr != nil {
			p.logger.Error("Failed to release admission lock",
				zap.String("tenant_id", req.TenantID),
				zap.String("owner_id", req.Owner.ID),
				zap.Error(relErr))
		}
		result := resultLabel(err)
		p.metrics.RecordProvision(result, p.clock.Now().Sub(start))
		p.metrics.RecordCreation(string(req.Source), result)
	}()

	room, err := p.Provision(ctx, req)
	if err != nil {
		p.logOutcome(req, err)
		return err
	}

	p.logger.Info("Created room",
		zap.String("room_id", room.ID),
		zap.String("tenant_id", room.TenantID),
		zap.String("owner_id", room.OwnerID),
		zap.String("name", room.Name))
	return nil
}

// Provision runs the creation steps in order, stopping at the first failure
func (p *Provisioner) Provision(ctx context.Context, req *model.CreateRequest) (*model.Room, error) {
	// 1. Management rights
	canManage, err := p.platform.CanManage(ctx, req.TenantID)
	if err != nil {
		return nil, platformError("can_manage", err)
	}
	if !canManage {
		return nil, apperrors.MissingManagePermission(req.TenantID, nil)
	}

	// 2. Tenant settings
	cfg, err := p.tenants.GetConfig(ctx, req.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperrors.TenantNotFound(req.TenantID)
	}
	if err != nil {
		return nil, apperrors.InternalError("failed to load tenant config", err)
	}
	if !cfg.Enabled {
		return nil, apperrors.TenantDisabled(req.TenantID)
	}

	now := p.clock.Now()

	// 3. Per-owner cooldown
	if cooldown := cfg.Cooldown(); cooldown > 0 {
		recent, err := p.rooms.FindRecent(ctx, req.TenantID, req.Owner.ID, now.Add(-cooldown))
		switch {
		case err == nil:
			remaining := recent.CreatedAt.Add(cooldown).Sub(now).Round(time.Second)
			return nil, apperrors.CooldownActive(req.Owner.ID, remaining)
		case !errors.Is(err, store.ErrNotFound):
			return nil, apperrors.InternalError("failed to check cooldown", err)
		}
	}

	// 4. Tenant capacity
	count, err := p.reserve(ctx, req.TenantID, cfg.Capacity)
	if err != nil {
		return nil, err
	}
	defer p.unreserve(req.TenantID)

	// 5. Category
	categoryID := p.resolveCategory(ctx, req, cfg)

	// 6. Name
	tenantName := req.TenantName
	if tenantName == "" {
		tenantName = req.TenantID
	}
	name := ResolveName(cfg.NamingTemplate, NameVars{
		Username:    req.Owner.Username,
		DisplayName: req.Owner.DisplayName,
		Tenant:      tenantName,
		Count:       count + 1,
	})

	// 7. Platform room, then move the owner in
	roomID, err := p.platform.CreateRoom(ctx, platform.RoomSpec{
		TenantID:   req.TenantID,
		Name:       name,
		CategoryID: categoryID,
		OwnerID:    req.Owner.ID,
		Overwrites: platform.OwnerOverwrites(req.TenantID, req.Owner.ID),
	})
	if err != nil {
		return nil, platformError("create_room", err)
	}
	moved := p.moveOwner(ctx, req, roomID)

	// 8. Record
	room, err := p.rooms.Create(ctx, &model.Room{
		ID:           roomID,
		TenantID:     req.TenantID,
		OwnerID:      req.Owner.ID,
		Name:         name,
		State:        model.RoomActive,
		CreatedAt:    now,
		LastActiveAt: now,
	})
	if err != nil {
		p.discard(ctx, roomID)
		return nil, apperrors.InternalError("failed to persist room", err)
	}

	// Nobody is in the room; reclaim it unless someone joins
	if !moved {
		if _, err := p.evictions.ScheduleEviction(ctx, room); err != nil {
			p.logger.Warn("Failed to schedule eviction for unoccupied room",
				zap.String("room_id", room.ID),
				zap.Error(err))
		}
	}

	return room, nil
}

// reserve counts the tenant's rooms and claims a slot on top of them. The
// slot is held until the room record exists or the creation fails, so
// parallel creations in one batch cannot overshoot capacity. Only
// creations for the same tenant wait on each other's count.
func (p *Provisioner) reserve(ctx context.Context, tenantID string, capacity int) (int, error) {
	slots := p.acquireSlots(tenantID)

	slots.mu.Lock()
	count, err := p.rooms.Count(ctx, tenantID)
	if err != nil {
		slots.mu.Unlock()
		p.releaseSlots(tenantID)
		return 0, apperrors.InternalError("failed to count rooms", err)
	}
	pending := slots.reserved
	if count+pending >= capacity {
		slots.mu.Unlock()
		p.releaseSlots(tenantID)
		return 0, apperrors.CapacityReached(tenantID, count+pending, capacity)
	}
	slots.reserved++
	slots.mu.Unlock()
	return count + pending, nil
}

func (p *Provisioner) unreserve(tenantID string) {
	p.mu.Lock()
	slots := p.slots[tenantID]
	p.mu.Unlock()

	slots.mu.Lock()
	slots.reserved--
	slots.mu.Unlock()
	p.releaseSlots(tenantID)
}

func (p *Provisioner) acquireSlots(tenantID string) *tenantSlots {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots, ok := p.slots[tenantID]
	if !ok {
		slots = &tenantSlots{}
		p.slots[tenantID] = slots
	}
	slots.users++
	return slots
}

func (p *Provisioner) releaseSlots(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	slots := p.slots[tenantID]
	slots.users--
	if slots.users == 0 {
		delete(p.slots, tenantID)
	}
}

// resolveCategory prefers the trigger point's own category, then the tenant default
func (p *Provisioner) resolveCategory(ctx context.Context, req *model.CreateRequest, cfg *model.TenantConfig) string {
	if req.Source == model.SourceTrigger && req.TriggerID != "" && cfg.IsTrigger(req.TriggerID) {
		parent, err := p.platform.ParentCategory(ctx, req.TriggerID)
		if err != nil {
			p.logger.Warn("Failed to resolve trigger category, using default",
				zap.String("tenant_id", req.TenantID),
				zap.String("trigger_id", req.TriggerID),
				zap.Error(err))
		} else if parent != "" {
			return parent
		}
	}
	return cfg.DefaultCategoryID
}

// moveOwner moves the owner into the new room if they are connected somewhere
func (p *Provisioner) moveOwner(ctx context.Context, req *model.CreateRequest, roomID string) bool {
	if req.CurrentRoomID == "" {
		return false
	}
	if err := p.platform.MoveMember(ctx, req.TenantID, req.Owner.ID, roomID); err != nil {
		p.logger.Warn("Failed to move owner into new room",
			zap.String("room_id", roomID),
			zap.String("owner_id", req.Owner.ID),
			zap.Error(err))
		return false
	}
	return true
}

// discard deletes a platform room that could not be recorded
func (p *Provisioner) discard(ctx context.Context, roomID string) {
	err := p.platform.DeleteRoom(ctx, roomID)
	if err != nil && !errors.Is(err, platform.ErrRoomNotFound) {
		p.logger.Error("Failed to delete unrecorded room",
			zap.String("room_id", roomID),
			zap.Error(err))
	}
}

func (p *Provisioner) logOutcome(req *model.CreateRequest, err error) {
	fields := []zap.Field{
		zap.String("tenant_id", req.TenantID),
		zap.String("owner_id", req.Owner.ID),
		zap.String("source", string(req.Source)),
		zap.Error(err),
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindPolicyReject, apperrors.KindNotFound:
		p.logger.Info("Room creation rejected", fields...)
	case apperrors.KindPermission:
		p.logger.Warn("Room creation not permitted", fields...)
	default:
		p.logger.Error("Room creation failed", fields...)
	}
}

// platformError keeps taxonomy errors from the platform and wraps the rest as transient
func platformError(op string, err error) error {
	if _, ok := apperrors.AsRoomError(err); ok {
		return err
	}
	return apperrors.PlatformUnavailable(op, err)
}

// resultLabel turns an error into a metric label
func resultLabel(err error) string {
	if err == nil {
		return "created"
	}
	switch code := apperrors.GetCode(err); code {
	case apperrors.ErrCodeTenantDisabled:
		return "disabled"
	case apperrors.ErrCodeTenantNotFound:
		return "no_config"
	case apperrors.ErrCodeCooldownActive:
		return "cooldown"
	case apperrors.ErrCodeCapacityReached:
		return "capacity"
	default:
		return string(code.Kind())
	}
}

var _ Executor = (*Provisioner)(nil)
