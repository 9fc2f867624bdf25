package model

import "time"

// RoomState is the lifecycle state of a tracked room
type RoomState string

const (
	RoomActive          RoomState = "active"
	RoomPendingEviction RoomState = "pending_eviction"
	// RoomDeleted marks a record whose eviction is committed but whose platform
	// room may still exist. It no longer counts against capacity, and the
	// record is removed once the platform delete succeeds.
	RoomDeleted RoomState = "deleted"
)

// Room is the durable record of a live temporary room
type Room struct {
	ID                  string
	TenantID            string
	OwnerID             string
	Name                string
	Locked              bool
	UserLimit           int
	State               RoomState
	CreatedAt           time.Time
	LastActiveAt        time.Time
	ScheduledEvictionAt *time.Time
}

// PendingEviction reports whether the room carries a persisted eviction deadline
func (r *Room) PendingEviction() bool {
	return r.State == RoomPendingEviction && r.ScheduledEvictionAt != nil
}

// RoomPatch is a partial update applied to a room record.
// Nil fields are left untouched.
type RoomPatch struct {
	OwnerID      *string
	Name         *string
	Locked       *bool
	UserLimit    *int
	LastActiveAt *time.Time
	State        *RoomState
	// ScheduledEvictionAt is written whenever State is set: a nil value
	// together with a non-nil State clears the deadline.
	ScheduledEvictionAt *time.Time
}

// ActivePatch returns a patch that moves a room back to Active and clears its deadline
func ActivePatch() RoomPatch {
	state := RoomActive
	return RoomPatch{State: &state}
}

// PendingEvictionPatch returns a patch that records an eviction deadline
func PendingEvictionPatch(deadline time.Time) RoomPatch {
	state := RoomPendingEviction
	return RoomPatch{State: &state, ScheduledEvictionAt: &deadline}
}

// DeletedPatch returns a patch that commits an eviction at the given time.
// The time is kept as the deadline so a retry treats the room as overdue.
func DeletedPatch(at time.Time) RoomPatch {
	state := RoomDeleted
	return RoomPatch{State: &state, ScheduledEvictionAt: &at}
}

// Apply mutates r according to the patch
func (p RoomPatch) Apply(r *Room) {
	if p.OwnerID != nil {
		r.OwnerID = *p.OwnerID
	}
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Locked != nil {
		r.Locked = *p.Locked
	}
	if p.UserLimit != nil {
		r.UserLimit = *p.UserLimit
	}
	if p.LastActiveAt != nil {
		r.LastActiveAt = *p.LastActiveAt
	}
	if p.State != nil {
		r.State = *p.State
		if p.ScheduledEvictionAt != nil {
			deadline := *p.ScheduledEvictionAt
			r.ScheduledEvictionAt = &deadline
		} else {
			r.ScheduledEvictionAt = nil
		}
	}
}
