package errors

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ResponseCode represents API error codes written to clients.
type ResponseCode string

const (
	ResponseCodeInvalidRequest   ResponseCode = "INVALID_REQUEST"
	ResponseCodeInternalError    ResponseCode = "INTERNAL_ERROR"
	ResponseCodeServiceDown      ResponseCode = "SERVICE_UNAVAILABLE"
	ResponseCodeRateLimited      ResponseCode = "RATE_LIMITED"
	ResponseCodeRoomNotFound     ResponseCode = "ROOM_NOT_FOUND"
	ResponseCodeTenantNotFound   ResponseCode = "TENANT_NOT_FOUND"
	ResponseCodeForbidden        ResponseCode = "FORBIDDEN"
	ResponseCodeCreationInFlight ResponseCode = "CREATION_IN_FLIGHT"
	ResponseCodePolicyRejected   ResponseCode = "POLICY_REJECTED"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string       `json:"status"`
	ErrorCode ResponseCode `json:"error_code"`
	Message   string       `json:"message"`
	RequestID string       `json:"request_id,omitempty"`
}

// Handler provides error handling functionality.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates a new error handler.
func NewHandler(logger *zap.Logger) *Handler {
	return &Handler{
		logger: logger,
	}
}

// HandleError processes an error and writes an appropriate HTTP response.
func (h *Handler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get("X-Request-ID")

	re, ok := AsRoomError(err)
	if !ok {
		h.logger.Error("Unclassified error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestID),
			zap.Error(err))
		h.WriteInternalError(w, "internal server error", requestID)
		return
	}

	h.WriteErrorResponse(w, re.HTTPStatus(), ResponseCodeFor(re.Code), re.Error(), requestID)
}

// ResponseCodeFor converts an internal error code to an API error code.
func ResponseCodeFor(code ErrorCode) ResponseCode {
	switch code {
	case ErrCodeInvalidArgument:
		return ResponseCodeInvalidRequest
	case ErrCodeRoomNotFound:
		return ResponseCodeRoomNotFound
	case ErrCodeTenantNotFound:
		return ResponseCodeTenantNotFound
	case ErrCodeNotOwner, ErrCodeMissingManagePermission:
		return ResponseCodeForbidden
	case ErrCodeCreationInFlight:
		return ResponseCodeCreationInFlight
	case ErrCodeTenantDisabled, ErrCodeCooldownActive, ErrCodeCapacityReached:
		return ResponseCodePolicyRejected
	case ErrCodePlatformRateLimited:
		return ResponseCodeRateLimited
	case ErrCodePlatformUnavailable:
		return ResponseCodeServiceDown
	default:
		return ResponseCodeInternalError
	}
}

// WriteErrorResponse writes a formatted error response to the HTTP response writer.
func (h *Handler) WriteErrorResponse(w http.ResponseWriter, statusCode int, errorCode ResponseCode, message string, requestID string) {
	h.logger.Warn("HTTP error response",
		zap.Int("status_code", statusCode),
		zap.String("error_code", string(errorCode)),
		zap.String("message", message),
		zap.String("request_id", requestID),
	)

	resp := ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// WriteValidationError writes a validation error response.
func (h *Handler) WriteValidationError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusBadRequest, ResponseCodeInvalidRequest, message, requestID)
}

// WriteInternalError writes an internal error response.
func (h *Handler) WriteInternalError(w http.ResponseWriter, message string, requestID string) {
	h.WriteErrorResponse(w, http.StatusInternalServerError, ResponseCodeInternalError, message, requestID)
}

// WriteRateLimitedError writes a rate limit exceeded response.
func (h *Handler) WriteRateLimitedError(w http.ResponseWriter, requestID string) {
	h.WriteErrorResponse(w, http.StatusTooManyRequests, ResponseCodeRateLimited, "rate limit exceeded", requestID)
}
