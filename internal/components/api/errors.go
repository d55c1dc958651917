// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/artfolio/artfolio-sync/internal/platform/apperr"
)

// Deterministic reason codes for stable error classification.
// These codes should remain stable across versions for client compatibility.
const (
	// Authentication and authorization
	ReasonUnauthenticated = "unauthenticated"
	ReasonUnauthorized    = "unauthorized"

	// Rate limiting
	ReasonRateLimited = "rate_limited"

	// Request validation
	ReasonBadRequest   = "bad_request"
	ReasonMissingField = "missing_field"
	ReasonInvalidField = "invalid_field"
	ReasonNotFound     = "not_found"
	ReasonConflict     = "conflict"

	// Workflow conflicts
	ReasonDuplicateActiveRequest = "duplicate_active_request"
	ReasonAlreadyResolved        = "already_resolved"
	ReasonInProgress             = "in_progress"

	// Server errors
	ReasonInternalError = "internal_error"
	ReasonStorageError  = "storage_error"
)

// ErrorEnvelope is the standard error response format.
type ErrorEnvelope struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	Code       string `json:"code"`        // HTTP status text (e.g., "Forbidden")
	ReasonCode string `json:"reason_code"` // Deterministic reason code
	Message    string `json:"message"`     // Human-readable message
}

// WriteError writes a standardized JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, reasonCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	envelope := ErrorEnvelope{
		Error: ErrorDetail{
			Code:       http.StatusText(statusCode),
			ReasonCode: reasonCode,
			Message:    message,
		},
	}

	json.NewEncoder(w).Encode(envelope)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps an apperr kind to its HTTP status and reason code.
// Unclassified errors map to 500.
func StatusFor(err error) (int, string) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest, ReasonInvalidField
	case apperr.KindAuthenticationRequired:
		return http.StatusUnauthorized, ReasonUnauthenticated
	case apperr.KindUnauthorized:
		return http.StatusForbidden, ReasonUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound, ReasonNotFound
	case apperr.KindDuplicateActiveRequest:
		return http.StatusConflict, ReasonDuplicateActiveRequest
	case apperr.KindAlreadyResolved:
		return http.StatusConflict, ReasonAlreadyResolved
	case apperr.KindInProgress:
		return http.StatusConflict, ReasonInProgress
	case apperr.KindStorage:
		return http.StatusInternalServerError, ReasonStorageError
	default:
		return http.StatusInternalServerError, ReasonInternalError
	}
}

// WriteAppError writes err using the envelope. Server-side failures are
// logged and answered with a generic message so backend details never leak.
func WriteAppError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, reason := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", "error", err)
		}
		WriteError(w, status, reason, "internal error")
		return
	}
	WriteError(w, status, reason, apperr.Message(err))
}

// Common error helpers for frequently used patterns

// WriteUnauthorized writes a 401 Unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusUnauthorized, reasonCode, message)
}

// WriteNotFound writes a 404 Not Found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ReasonNotFound, message)
}

// WriteBadRequest writes a 400 Bad Request error.
func WriteBadRequest(w http.ResponseWriter, reasonCode, message string) {
	WriteError(w, http.StatusBadRequest, reasonCode, message)
}

// WriteTooManyRequests writes a 429 Too Many Requests error.
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, ReasonRateLimited, message)
}
