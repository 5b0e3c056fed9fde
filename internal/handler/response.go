package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//   {"error": "not_found", "message": "group not found with id abc123"}
//
// This makes it easy for clients to parse errors — they always know what
// fields to expect, regardless of whether it's a 400, 404, or 502.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/qliu/flashsync/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`   // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"` // Human-readable description
}

// degradedWarning is attached to responses served from the local cache
// because the remote store was unreachable. Clients can surface it ("you
// are seeing offline data") without treating the response as a failure.
const degradedWarning = "remote store unavailable; serving cached data"

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status code must be set BEFORE writing the body. Once
// Encode calls w.Write(), the headers are sent and further changes are
// silently ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent — we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// ERROR MAPPING:
// This is where domain errors (from the engine and auth layers) get
// translated to HTTP. The engine returns apperror.ErrValidation,
// apperror.ErrNotFound, etc.; the engine itself never knows about status
// codes.
//
// errors.Is() walks the entire error chain (via Unwrap()), so a sentinel
// wrapped twice — e.g. RemoteUnavailable wrapping a transport error — still
// matches.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError

	// errors.As() is like errors.Is() but extracts the error value.
	// It walks the chain and fills appErr if it finds an *AppError.
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrRemoteUnavailable):
			// A HARD remote failure (no cached data to fall back on).
			// Degraded reads never reach writeError — see writeMaybeDegraded.
			status = http.StatusBadGateway // 502
			errorType = "remote_unavailable"
		}

		writeJSON(w, status, ErrorResponse{
			Error:   errorType,
			Message: appErr.Message,
		})
		return
	}

	// Unknown error — return a generic 500.
	// NEVER expose internal error details to the client: the raw message
	// might contain file paths or other sensitive info.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// writeMaybeDegraded handles the engine's degraded-read contract: data and
// an ErrRemoteUnavailable returned TOGETHER. In that case the request
// succeeded from the caller's point of view — they get their data with a
// warning — so the response is a 200, not a 502. Any other error falls
// through to the normal mapping.
//
// The wrap callback builds the success body around the data so each
// endpoint keeps its own response shape.
func writeMaybeDegraded(w http.ResponseWriter, err error, wrap func(warning string) any) {
	if err == nil {
		writeJSON(w, http.StatusOK, wrap(""))
		return
	}
	if errors.Is(err, apperror.ErrRemoteUnavailable) {
		writeJSON(w, http.StatusOK, wrap(degradedWarning))
		return
	}
	writeError(w, err)
}
