package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT RESPONSE FORMAT:
// Every response from the API carries a "success" flag. Errors add a
// machine-readable type, a human-readable message and, for validation
// failures, the offending field:
//
//	{"success": false, "error": "validation_error", "message": "email is required", "field": "email"}
//
// The frontend can branch on "error" without parsing the message.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/auth-service/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`           // Machine-readable error type (e.g., "invalid_code")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Set for validation errors
}

// MessageResponse is the body of a successful call with nothing else to return.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and the status code must be set BEFORE the body is written.
// Once Encode writes the first byte the headers are on the wire and any
// later change is silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent, so all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorMapping ties a sentinel from apperror to its HTTP status and error type.
type errorMapping struct {
	target    error
	status    int
	errorType string
}

// errorMappings is checked in order with errors.Is. The service layer never
// knows about status codes: this table is the only place they are decided.
var errorMappings = []errorMapping{
	{apperror.ErrValidation, http.StatusBadRequest, "validation_error"},
	{apperror.ErrAlreadyVerified, http.StatusBadRequest, "already_verified"},
	{apperror.ErrExpired, http.StatusBadRequest, "otp_expired"},
	{apperror.ErrInvalidCode, http.StatusBadRequest, "invalid_code"},
	{apperror.ErrMissingEmail, http.StatusBadRequest, "missing_email"},
	{apperror.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{apperror.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{apperror.ErrNotVerified, http.StatusForbidden, "not_verified"},
	{apperror.ErrNotFound, http.StatusNotFound, "not_found"},
	{apperror.ErrConflict, http.StatusConflict, "conflict"},
	{apperror.ErrNotificationFailed, http.StatusBadGateway, "notification_failed"},
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.As() extracts the *apperror.AppError for its message and field;
// errors.Is() walks the chain to find which sentinel it wraps:
//
//	service returns: apperror.InvalidCode()
//	which wraps:     AppError{Err: ErrInvalidCode, Message: "..."}
//	errors.Is walks: AppError → ErrInvalidCode ✓ → 400 invalid_code
//
// Anything else is an internal failure. It is logged with full detail and
// the client only sees a generic 500: raw errors can carry SQL, hostnames
// or file paths.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		for _, m := range errorMappings {
			if errors.Is(err, m.target) {
				writeJSON(w, m.status, ErrorResponse{
					Error:   m.errorType,
					Message: appErr.Message,
					Field:   appErr.Field,
				})
				return
			}
		}
	}

	logger.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// decodeJSON reads the request body into dst. A malformed body is reported
// as a validation error so it renders like any other bad input.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("", "invalid JSON body")
	}
	return nil
}

// maxBodyBytes caps request bodies. Every auth payload is a handful of short strings.
const maxBodyBytes = 1 << 16
