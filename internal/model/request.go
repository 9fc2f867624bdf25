package model

import (
	"fmt"
	"time"
)

// SourceKind identifies what caused a creation request
type SourceKind string

const (
	SourceTrigger  SourceKind = "trigger"
	SourceExplicit SourceKind = "explicit"
)

// Member is the platform user a request is made for
type Member struct {
	ID          string
	Username    string
	DisplayName string
}

// CreateRequest is an admitted creation request waiting in the creation queue
type CreateRequest struct {
	RequestID  string
	TenantID   string
	TenantName string
	Owner      Member
	Source     SourceKind
	// TriggerID is the trigger point the owner joined, if any
	TriggerID string
	// CurrentRoomID is where the owner is connected right now, empty if nowhere
	CurrentRoomID string
	EnqueuedAt    time.Time
}

// LockKey returns the admission lock key for the request's (tenant, owner) pair
func (r *CreateRequest) LockKey() string {
	return AdmissionKey(r.TenantID, r.Owner.ID)
}

// AdmissionKey builds the composite admission key
func AdmissionKey(tenantID, ownerID string) string {
	return fmt.Sprintf("%s:%s", tenantID, ownerID)
}

// OccupancyChange describes one membership transition reported by the event layer
type OccupancyChange struct {
	TenantID       string
	TenantName     string
	Member         Member
	PreviousRoomID string
	CurrentRoomID  string
}

// Joined reports whether the member entered a room with this change
func (e *OccupancyChange) Joined() bool {
	return e.CurrentRoomID != "" && e.CurrentRoomID != e.PreviousRoomID
}

// Left reports whether the member left a room with this change
func (e *OccupancyChange) Left() bool {
	return e.PreviousRoomID != "" && e.PreviousRoomID != e.CurrentRoomID
}
