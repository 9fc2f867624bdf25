// Package errors defines the room lifecycle error taxonomy and its HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents internal error codes for room operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument  ErrorCode = 1000
	ErrCodeRoomNotFound     ErrorCode = 1001
	ErrCodeTenantNotFound   ErrorCode = 1002
	ErrCodeNotOwner         ErrorCode = 1003
	ErrCodeCreationInFlight ErrorCode = 1004

	// Policy rejections (expected, not failures)
	ErrCodeTenantDisabled  ErrorCode = 2000
	ErrCodeCooldownActive  ErrorCode = 2001
	ErrCodeCapacityReached ErrorCode = 2002

	// Permission errors
	ErrCodeMissingManagePermission ErrorCode = 3000

	// External platform errors
	ErrCodePlatformUnavailable ErrorCode = 4000
	ErrCodePlatformRateLimited ErrorCode = 4001

	// Server errors
	ErrCodeInternal      ErrorCode = 5000
	ErrCodeInconsistency ErrorCode = 5001
)

// Kind groups error codes into the handling categories the lifecycle cares about
type Kind string

const (
	KindNone              Kind = ""
	KindInvalidArgument   Kind = "invalid_argument"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflict"
	KindPermission        Kind = "permission"
	KindPolicyReject      Kind = "policy_reject"
	KindTransientExternal Kind = "transient_external"
	KindInconsistency     Kind = "inconsistency"
	KindInternal          Kind = "internal"
)

// Kind returns the category of the code
func (c ErrorCode) Kind() Kind {
	switch {
	case c == ErrCodeOK:
		return KindNone
	case c == ErrCodeInvalidArgument:
		return KindInvalidArgument
	case c == ErrCodeRoomNotFound, c == ErrCodeTenantNotFound:
		return KindNotFound
	case c == ErrCodeCreationInFlight:
		return KindConflict
	case c == ErrCodeNotOwner, c >= 3000 && c < 4000:
		return KindPermission
	case c >= 2000 && c < 3000:
		return KindPolicyReject
	case c >= 4000 && c < 5000:
		return KindTransientExternal
	case c == ErrCodeInconsistency:
		return KindInconsistency
	default:
		return KindInternal
	}
}

// RoomError represents a structured error with code and context
type RoomError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *RoomError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *RoomError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error code to an HTTP status code
func (e *RoomError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case ErrCodeRoomNotFound, ErrCodeTenantNotFound:
		return http.StatusNotFound
	case ErrCodeNotOwner, ErrCodeMissingManagePermission:
		return http.StatusForbidden
	case ErrCodeCreationInFlight:
		return http.StatusConflict
	case ErrCodeTenantDisabled, ErrCodeCooldownActive, ErrCodeCapacityReached:
		return http.StatusUnprocessableEntity
	case ErrCodePlatformRateLimited:
		return http.StatusTooManyRequests
	case ErrCodePlatformUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewRoomError creates a new RoomError
func NewRoomError(code ErrorCode, message string, cause error) *RoomError {
	return &RoomError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *RoomError) WithDetail(key string, value interface{}) *RoomError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *RoomError {
	return NewRoomError(ErrCodeInvalidArgument, message, cause)
}

func RoomNotFound(roomID string) *RoomError {
	return NewRoomError(ErrCodeRoomNotFound, fmt.Sprintf("room not found: %s", roomID), nil).
		WithDetail("room_id", roomID)
}

func TenantNotFound(tenantID string) *RoomError {
	return NewRoomError(ErrCodeTenantNotFound, fmt.Sprintf("tenant not configured: %s", tenantID), nil).
		WithDetail("tenant_id", tenantID)
}

func NotOwner(roomID, memberID string) *RoomError {
	return NewRoomError(ErrCodeNotOwner, "member does not own this room", nil).
		WithDetail("room_id", roomID).
		WithDetail("member_id", memberID)
}

func CreationInFlight(tenantID, ownerID string) *RoomError {
	return NewRoomError(ErrCodeCreationInFlight, "a room is already being created for this member", nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("owner_id", ownerID)
}

func TenantDisabled(tenantID string) *RoomError {
	return NewRoomError(ErrCodeTenantDisabled, fmt.Sprintf("temporary rooms disabled for tenant %s", tenantID), nil).
		WithDetail("tenant_id", tenantID)
}

func CooldownActive(ownerID string, remaining time.Duration) *RoomError {
	return NewRoomError(ErrCodeCooldownActive, fmt.Sprintf("creation cooldown active: %s remaining", remaining.Round(time.Second)), nil).
		WithDetail("owner_id", ownerID).
		WithDetail("remaining_seconds", int(remaining.Seconds()+0.999))
}

func CapacityReached(tenantID string, current, limit int) *RoomError {
	return NewRoomError(ErrCodeCapacityReached, fmt.Sprintf("room capacity reached: %d/%d", current, limit), nil).
		WithDetail("tenant_id", tenantID).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

func MissingManagePermission(tenantID string, cause error) *RoomError {
	return NewRoomError(ErrCodeMissingManagePermission, "missing permission to manage rooms", cause).
		WithDetail("tenant_id", tenantID)
}

func PlatformUnavailable(operation string, cause error) *RoomError {
	return NewRoomError(ErrCodePlatformUnavailable, fmt.Sprintf("platform %s failed, try again", operation), cause).
		WithDetail("operation", operation)
}

func PlatformRateLimited(operation string, cause error) *RoomError {
	return NewRoomError(ErrCodePlatformRateLimited, fmt.Sprintf("platform %s rate limited, try again later", operation), cause).
		WithDetail("operation", operation)
}

func Inconsistency(message string, cause error) *RoomError {
	return NewRoomError(ErrCodeInconsistency, message, cause)
}

func InternalError(message string, cause error) *RoomError {
	return NewRoomError(ErrCodeInternal, message, cause)
}

// AsRoomError extracts a RoomError from anywhere in the error chain
func AsRoomError(err error) (*RoomError, bool) {
	var re *RoomError
	if stderrors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	if re, ok := AsRoomError(err); ok {
		return re.Code
	}
	return ErrCodeInternal
}

// KindOf returns the handling category of err
func KindOf(err error) Kind {
	return GetCode(err).Kind()
}

// IsPolicyReject reports whether err is an expected admission rejection
func IsPolicyReject(err error) bool {
	return KindOf(err) == KindPolicyReject
}

// IsTransient reports whether err is a retry-later platform failure
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientExternal
}
