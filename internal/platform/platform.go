// Package platform is the boundary to the chat platform that hosts the
// voice rooms. The core only creates, deletes, inspects and edits rooms
// through the Platform interface.
package platform

import (
	"context"
	"errors"
)

// ErrRoomNotFound is returned when the platform no longer has the room
var ErrRoomNotFound = errors.New("room not found on platform")

// ErrMemberNotConnected is returned when moving a member who is not in any room
var ErrMemberNotConnected = errors.New("member not connected")

// Permission is a platform permission flag
type Permission string

const (
	PermConnect        Permission = "connect"
	PermSpeak          Permission = "speak"
	PermStream         Permission = "stream"
	PermManageChannels Permission = "manage_channels"
	PermMoveMembers    Permission = "move_members"
)

// TargetKind says whether an overwrite applies to a member or a whole tenant
type TargetKind string

const (
	TargetMember TargetKind = "member"
	TargetTenant TargetKind = "tenant"
)

// Overwrite grants or denies permissions on one room for one target
type Overwrite struct {
	TargetID   string       `json:"target_id"`
	TargetKind TargetKind   `json:"target_kind"`
	Allow      []Permission `json:"allow,omitempty"`
	Deny       []Permission `json:"deny,omitempty"`
}

// RoomSpec describes a room to create
type RoomSpec struct {
	TenantID   string      `json:"tenant_id"`
	Name       string      `json:"name"`
	CategoryID string      `json:"category_id,omitempty"`
	OwnerID    string      `json:"owner_id"`
	Overwrites []Overwrite `json:"overwrites"`
}

// OwnerOverwrites returns the permissions a freshly created room carries:
// management rights exclusive to the owner and connect for the tenant default role.
func OwnerOverwrites(tenantID, ownerID string) []Overwrite {
	return []Overwrite{
		{
			TargetID:   ownerID,
			TargetKind: TargetMember,
			Allow: []Permission{
				PermConnect, PermSpeak, PermStream, PermManageChannels, PermMoveMembers,
			},
		},
		{
			TargetID:   tenantID,
			TargetKind: TargetTenant,
			Allow:      []Permission{PermConnect},
		},
	}
}

// RevokedOwnerOverwrite strips management rights from a member while
// leaving their connect permission alone
func RevokedOwnerOverwrite(memberID string) Overwrite {
	return Overwrite{
		TargetID:   memberID,
		TargetKind: TargetMember,
		Deny:       []Permission{PermManageChannels, PermMoveMembers},
	}
}

// Platform is the transport to the hosting chat platform
type Platform interface {
	// CanManage reports whether the service holds room management rights in the tenant
	CanManage(ctx context.Context, tenantID string) (bool, error)
	// ParentCategory returns the category a room is filed under, empty if none
	ParentCategory(ctx context.Context, roomID string) (string, error)
	// CreateRoom creates a room and returns its platform id
	CreateRoom(ctx context.Context, spec RoomSpec) (string, error)
	DeleteRoom(ctx context.Context, roomID string) error
	// MoveMember moves a connected member into roomID
	MoveMember(ctx context.Context, tenantID, memberID, roomID string) error
	// Occupancy returns the number of members in the room, or ErrRoomNotFound
	Occupancy(ctx context.Context, roomID string) (int, error)
	// Members returns the ids of members in the room, or ErrRoomNotFound
	Members(ctx context.Context, roomID string) ([]string, error)

	SetConnectAllowed(ctx context.Context, tenantID, roomID string, allowed bool) error
	SetUserLimit(ctx context.Context, roomID string, limit int) error
	Rename(ctx context.Context, roomID, name string) error
	// GrantOwner gives memberID the owner permission set on the room
	GrantOwner(ctx context.Context, roomID, memberID string) error
	// RevokeOwner removes management rights from a former owner
	RevokeOwner(ctx context.Context, roomID, memberID string) error
	// KickMember disconnects memberID if they are in the room
	KickMember(ctx context.Context, roomID, memberID string) error

	Ping(ctx context.Context) error
}
