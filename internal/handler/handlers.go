// Package handler provides HTTP request handlers for the room lifecycle API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/devrev/tempvoice/internal/middleware"
	"github.com/devrev/tempvoice/internal/model"
	"github.com/devrev/tempvoice/internal/service"
	"github.com/devrev/tempvoice/internal/store"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	rooms        *service.RoomManager
	controls     *service.ControlService
	tenants      *service.TenantService
	errorHandler *apperrors.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	rooms *service.RoomManager,
	controls *service.ControlService,
	tenants *service.TenantService,
	errorHandler *apperrors.Handler,
	timeout time.Duration,
	logger *zap.Logger,
) *Handlers {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handlers{
		rooms:        rooms,
		controls:     controls,
		tenants:      tenants,
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// OccupancyEvent handles POST /v1/events/occupancy requests.
func (h *Handlers) OccupancyEvent(w http.ResponseWriter, r *http.Request) {
	var req OccupancyEventRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.rooms.OnOccupancyChange(ctx, &model.OccupancyChange{
		TenantID:       req.TenantID,
		TenantName:     req.TenantName,
		Member:         req.Member.toModel(),
		PreviousRoomID: req.PreviousRoomID,
		CurrentRoomID:  req.CurrentRoomID,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, StatusResponse{Status: "accepted"})
}

// CreateRoom handles POST /v1/tenants/{tenant_id}/rooms requests.
func (h *Handlers) CreateRoom(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var req CreateRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}
	if req.Owner.ID == "" {
		req.Owner.ID = middleware.MemberIDFrom(r.Context())
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	queued, err := h.rooms.CreateRoom(ctx, tenantID, req.TenantName, req.Owner.toModel(), req.CurrentRoomID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusAccepted, CreateRoomResponse{
		Status:    "queued",
		RequestID: queued.RequestID,
		TenantID:  queued.TenantID,
		OwnerID:   queued.Owner.ID,
	})
}

// ListRooms handles GET /v1/tenants/{tenant_id}/rooms requests.
func (h *Handlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	rooms, err := h.rooms.ListRooms(ctx, tenantID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := ListRoomsResponse{TenantID: tenantID, Rooms: make([]RoomResponse, 0, len(rooms))}
	for _, room := range rooms {
		resp.Rooms = append(resp.Rooms, roomResponse(room))
	}
	resp.Count = len(resp.Rooms)
	h.writeJSONResponse(w, http.StatusOK, resp)
}

// GetTenantConfig handles GET /v1/tenants/{tenant_id}/config requests.
func (h *Handlers) GetTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cfg, err := h.tenants.GetConfig(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		h.errorHandler.HandleError(w, r, apperrors.TenantNotFound(tenantID))
		return
	}
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InternalError("failed to load tenant config", err))
		return
	}

	h.writeJSONResponse(w, http.StatusOK, tenantConfigDTO(cfg))
}

// UpdateTenantConfig handles PUT /v1/tenants/{tenant_id}/config requests.
func (h *Handlers) UpdateTenantConfig(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant_id"]

	var req TenantConfigDTO
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}
	if req.TenantID != "" && req.TenantID != tenantID {
		h.errorHandler.WriteValidationError(w, "tenant_id does not match path", middleware.RequestIDFrom(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cfg, err := h.tenants.GetOrDefault(ctx, tenantID)
	if err != nil {
		h.errorHandler.HandleError(w, r, apperrors.InternalError("failed to load tenant config", err))
		return
	}
	req.applyTo(cfg)

	saved, err := h.tenants.UpsertConfig(ctx, cfg)
	if err != nil {
		if _, ok := apperrors.AsRoomError(err); !ok {
			err = apperrors.InternalError("failed to store tenant config", err)
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, tenantConfigDTO(saved))
}

// GetRoom handles GET /v1/rooms/{room_id} requests.
func (h *Handlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	room, err := h.rooms.GetRoom(ctx, mux.Vars(r)["room_id"])
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, roomResponse(room))
}

// LockRoom handles POST /v1/rooms/{room_id}/lock requests.
func (h *Handlers) LockRoom(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, h.controls.Lock)
}

// UnlockRoom handles POST /v1/rooms/{room_id}/unlock requests.
func (h *Handlers) UnlockRoom(w http.ResponseWriter, r *http.Request) {
	h.roomAction(w, r, h.controls.Unlock)
}

// SetUserLimit handles PUT /v1/rooms/{room_id}/limit requests.
func (h *Handlers) SetUserLimit(w http.ResponseWriter, r *http.Request) {
	var req UserLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}
	if req.UserLimit == nil {
		h.errorHandler.WriteValidationError(w, "user_limit is required", middleware.RequestIDFrom(r.Context()))
		return
	}

	h.roomAction(w, r, func(ctx context.Context, roomID, callerID string) (*model.Room, error) {
		return h.controls.SetUserLimit(ctx, roomID, callerID, *req.UserLimit)
	})
}

// RenameRoom handles PUT /v1/rooms/{room_id}/name requests.
func (h *Handlers) RenameRoom(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}

	h.roomAction(w, r, func(ctx context.Context, roomID, callerID string) (*model.Room, error) {
		return h.controls.Rename(ctx, roomID, callerID, req.Name)
	})
}

// TransferRoom handles POST /v1/rooms/{room_id}/transfer requests.
func (h *Handlers) TransferRoom(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}

	h.roomAction(w, r, func(ctx context.Context, roomID, callerID string) (*model.Room, error) {
		return h.controls.Transfer(ctx, roomID, callerID, req.NewOwnerID)
	})
}

// KickMember handles POST /v1/rooms/{room_id}/kick requests.
func (h *Handlers) KickMember(w http.ResponseWriter, r *http.Request) {
	var req KickRequest
	if err := decodeJSON(r, &req); err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), middleware.RequestIDFrom(r.Context()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.controls.Kick(ctx, mux.Vars(r)["room_id"], middleware.MemberIDFrom(r.Context()), req.MemberID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, StatusResponse{Status: "kicked"})
}

// CloseRoom handles DELETE /v1/rooms/{room_id} requests.
func (h *Handlers) CloseRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	err := h.controls.Close(ctx, mux.Vars(r)["room_id"], middleware.MemberIDFrom(r.Context()))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type roomActionFunc func(ctx context.Context, roomID, callerID string) (*model.Room, error)

// roomAction runs an owner control for the calling member and writes the updated room
func (h *Handlers) roomAction(w http.ResponseWriter, r *http.Request, action roomActionFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	room, err := action(ctx, mux.Vars(r)["room_id"], middleware.MemberIDFrom(r.Context()))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, roomResponse(room))
}

// writeJSONResponse writes a JSON response.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
