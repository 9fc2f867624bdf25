package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/devrev/tempvoice/internal/model"
)

const maxBodyBytes = 1 << 20

// MemberDTO identifies a platform member in request bodies
type MemberDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name,omitempty"`
}

func (m MemberDTO) toModel() model.Member {
	return model.Member{ID: m.ID, Username: m.Username, DisplayName: m.DisplayName}
}

// OccupancyEventRequest is the body of POST /v1/events/occupancy
type OccupancyEventRequest struct {
	TenantID       string    `json:"tenant_id"`
	TenantName     string    `json:"tenant_name,omitempty"`
	Member         MemberDTO `json:"member"`
	PreviousRoomID string    `json:"previous_room_id,omitempty"`
	CurrentRoomID  string    `json:"current_room_id,omitempty"`
}

// CreateRoomRequest is the body of POST /v1/tenants/{tenant_id}/rooms
type CreateRoomRequest struct {
	TenantName    string    `json:"tenant_name,omitempty"`
	Owner         MemberDTO `json:"owner"`
	CurrentRoomID string    `json:"current_room_id,omitempty"`
}

// CreateRoomResponse acknowledges a queued creation
type CreateRoomResponse struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	TenantID  string `json:"tenant_id"`
	OwnerID   string `json:"owner_id"`
}

// RoomResponse is the JSON form of a tracked room
type RoomResponse struct {
	ID                  string     `json:"id"`
	TenantID            string     `json:"tenant_id"`
	OwnerID             string     `json:"owner_id"`
	Name                string     `json:"name"`
	Locked              bool       `json:"locked"`
	UserLimit           int        `json:"user_limit"`
	State               string     `json:"state"`
	CreatedAt           time.Time  `json:"created_at"`
	LastActiveAt        time.Time  `json:"last_active_at"`
	ScheduledEvictionAt *time.Time `json:"scheduled_eviction_at,omitempty"`
}

func roomResponse(r *model.Room) RoomResponse {
	return RoomResponse{
		ID:                  r.ID,
		TenantID:            r.TenantID,
		OwnerID:             r.OwnerID,
		Name:                r.Name,
		Locked:              r.Locked,
		UserLimit:           r.UserLimit,
		State:               string(r.State),
		CreatedAt:           r.CreatedAt,
		LastActiveAt:        r.LastActiveAt,
		ScheduledEvictionAt: r.ScheduledEvictionAt,
	}
}

// ListRoomsResponse lists a tenant's rooms
type ListRoomsResponse struct {
	TenantID string         `json:"tenant_id"`
	Rooms    []RoomResponse `json:"rooms"`
	Count    int            `json:"count"`
}

// TenantConfigDTO is the JSON form of tenant settings. On PUT, omitted
// fields keep their current values.
type TenantConfigDTO struct {
	TenantID             string    `json:"tenant_id"`
	Enabled              *bool     `json:"enabled,omitempty"`
	Capacity             *int      `json:"capacity,omitempty"`
	CooldownSeconds      *int      `json:"cooldown_seconds,omitempty"`
	EvictionDelaySeconds *int      `json:"eviction_delay_seconds,omitempty"`
	TriggerPoints        []string  `json:"trigger_points,omitempty"`
	DefaultCategoryID    *string   `json:"default_category_id,omitempty"`
	NamingTemplate       *string   `json:"naming_template,omitempty"`
	Language             *string   `json:"language,omitempty"`
	Version              int64     `json:"version,omitempty"`
	UpdatedAt            time.Time `json:"updated_at,omitempty"`
}

func tenantConfigDTO(c *model.TenantConfig) TenantConfigDTO {
	triggers := c.TriggerPoints
	if triggers == nil {
		triggers = []string{}
	}
	return TenantConfigDTO{
		TenantID:             c.TenantID,
		Enabled:              &c.Enabled,
		Capacity:             &c.Capacity,
		CooldownSeconds:      &c.CooldownSeconds,
		EvictionDelaySeconds: &c.EvictionDelaySeconds,
		TriggerPoints:        triggers,
		DefaultCategoryID:    &c.DefaultCategoryID,
		NamingTemplate:       &c.NamingTemplate,
		Language:             &c.Language,
		Version:              c.Version,
		UpdatedAt:            c.UpdatedAt,
	}
}

// applyTo overlays the fields present in the request onto cfg
func (d TenantConfigDTO) applyTo(cfg *model.TenantConfig) {
	if d.Enabled != nil {
		cfg.Enabled = *d.Enabled
	}
	if d.Capacity != nil {
		cfg.Capacity = *d.Capacity
	}
	if d.CooldownSeconds != nil {
		cfg.CooldownSeconds = *d.CooldownSeconds
	}
	if d.EvictionDelaySeconds != nil {
		cfg.EvictionDelaySeconds = *d.EvictionDelaySeconds
	}
	if d.TriggerPoints != nil {
		cfg.TriggerPoints = append([]string(nil), d.TriggerPoints...)
	}
	if d.DefaultCategoryID != nil {
		cfg.DefaultCategoryID = *d.DefaultCategoryID
	}
	if d.NamingTemplate != nil {
		cfg.NamingTemplate = *d.NamingTemplate
	}
	if d.Language != nil {
		cfg.Language = *d.Language
	}
}

// TransferRequest is the body of POST /v1/rooms/{room_id}/transfer
type TransferRequest struct {
	NewOwnerID string `json:"new_owner_id"`
}

// KickRequest is the body of POST /v1/rooms/{room_id}/kick
type KickRequest struct {
	MemberID string `json:"member_id"`
}

// UserLimitRequest is the body of PUT /v1/rooms/{room_id}/limit
type UserLimitRequest struct {
	UserLimit *int `json:"user_limit"`
}

// RenameRequest is the body of PUT /v1/rooms/{room_id}/name
type RenameRequest struct {
	Name string `json:"name"`
}

// StatusResponse is a bare acknowledgement
type StatusResponse struct {
	Status string `json:"status"`
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
