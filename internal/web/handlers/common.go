package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kozaktomas/frame-redactor/internal/constants"
	"github.com/kozaktomas/frame-redactor/internal/effect"
	"github.com/kozaktomas/frame-redactor/internal/frame"
	"github.com/kozaktomas/frame-redactor/internal/idmgmt"
	"github.com/kozaktomas/frame-redactor/internal/mask"
	"github.com/kozaktomas/frame-redactor/internal/media"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, effect.ErrUnknownKind):
		return http.StatusNotFound
	case errors.Is(err, frame.ErrInvalidMask),
		errors.Is(err, frame.ErrSizeMismatch),
		errors.Is(err, effect.ErrInvalidParameter),
		errors.Is(err, mask.ErrInvalidKernel),
		errors.Is(err, mask.ErrUnknownMethod),
		errors.Is(err, idmgmt.ErrInvalidRange),
		errors.Is(err, idmgmt.ErrUnknownTarget),
		errors.Is(err, idmgmt.ErrInvalidThreshold),
		errors.Is(err, media.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondErr sends err with the status its type maps to.
func respondErr(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// requireMask rejects a request without a valid mask.
func requireMask(w http.ResponseWriter, m *frame.Mask) bool {
	if m == nil {
		respondError(w, http.StatusBadRequest, "mask is required")
		return false
	}
	if err := m.Validate(); err != nil {
		respondErr(w, err)
		return false
	}
	return true
}

// requireFrame rejects a request without a valid frame.
func requireFrame(w http.ResponseWriter, f *frame.Frame) bool {
	if f == nil {
		respondError(w, http.StatusBadRequest, "frame is required")
		return false
	}
	if err := f.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid frame: %v", err))
		return false
	}
	return true
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
