// Package api provides the HTTP handlers and standardized error handling
// for the mapmeasure API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quaywood/mapmeasure/internal/calibration"
	"github.com/quaywood/mapmeasure/internal/imaging"
	"github.com/quaywood/mapmeasure/internal/middleware"
	"github.com/quaywood/mapmeasure/internal/session"
)

// Common error codes used throughout the API.
const (
	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeSessionNotFound indicates an unknown or expired session ID.
	ErrCodeSessionNotFound = "session_not_found"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeInvalidState indicates the input is not meaningful in the
	// session's current workflow state.
	ErrCodeInvalidState = "invalid_state"

	// ErrCodeNotCalibrated indicates the session has no scale or origin yet.
	ErrCodeNotCalibrated = "not_calibrated"

	// ErrCodeKnownDistanceNotSet indicates a calibration click arrived
	// before the reference distance.
	ErrCodeKnownDistanceNotSet = "known_distance_not_set"

	// ErrCodeDegenerateCalibration indicates the two reference clicks
	// coincide.
	ErrCodeDegenerateCalibration = "degenerate_calibration"

	// ErrCodeOutOfBounds indicates a click outside the attached image.
	ErrCodeOutOfBounds = "out_of_bounds"

	// ErrCodeEmptyName indicates a confirm with a blank name.
	ErrCodeEmptyName = "empty_name"

	// ErrCodeInsufficientVertices indicates finish-area with fewer than
	// three vertices.
	ErrCodeInsufficientVertices = "insufficient_vertices"

	// ErrCodeOriginLocked indicates an origin relocation after measurement
	// has begun.
	ErrCodeOriginLocked = "origin_locked"

	// ErrCodeInvalidImage indicates an upload that is not a usable raster.
	ErrCodeInvalidImage = "invalid_image"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// Format: {"error": {"code": "error_code", "message": "Error description"}}
//
// The error code is surfaced to the logging middleware by calling
// SetErrorCode on the context and passing the updated context here.
//
// Example:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Point not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeDomainError maps a workflow or calibration error onto its HTTP
// status and error code, then writes the standard error body.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, err.Error())
}

// classifyError maps domain sentinel errors to an HTTP status and a
// stable error code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, ErrCodeSessionNotFound
	case errors.Is(err, session.ErrPointNotFound),
		errors.Is(err, session.ErrAreaNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, session.ErrInvalidState),
		errors.Is(err, session.ErrImageAttached),
		errors.Is(err, calibration.ErrAlreadyCalibrated):
		return http.StatusConflict, ErrCodeInvalidState
	case errors.Is(err, session.ErrNotMeasurable),
		errors.Is(err, calibration.ErrNotCalibrated),
		errors.Is(err, calibration.ErrNoOrigin):
		return http.StatusConflict, ErrCodeNotCalibrated
	case errors.Is(err, calibration.ErrNoKnownDistance):
		return http.StatusConflict, ErrCodeKnownDistanceNotSet
	case errors.Is(err, calibration.ErrDegenerate):
		return http.StatusUnprocessableEntity, ErrCodeDegenerateCalibration
	case errors.Is(err, session.ErrOutOfBounds):
		return http.StatusUnprocessableEntity, ErrCodeOutOfBounds
	case errors.Is(err, session.ErrEmptyName):
		return http.StatusBadRequest, ErrCodeEmptyName
	case errors.Is(err, session.ErrInsufficientVertices):
		return http.StatusUnprocessableEntity, ErrCodeInsufficientVertices
	case errors.Is(err, session.ErrOriginLocked):
		return http.StatusConflict, ErrCodeOriginLocked
	case errors.Is(err, calibration.ErrNonPositiveDistance):
		return http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, session.ErrInvalidImage),
		errors.Is(err, imaging.ErrEmptyImage),
		errors.Is(err, imaging.ErrUnsupportedImage):
		return http.StatusUnprocessableEntity, ErrCodeInvalidImage
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}
