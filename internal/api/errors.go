package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/facility-core/internal/auth"
	"github.com/nerrad567/facility-core/internal/hierarchy"
	"github.com/nerrad567/facility-core/internal/infrastructure/logging"
	"github.com/nerrad567/facility-core/internal/pagination"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUpstream     = "upstream_failure"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeDecodeError reports a body that failed to decode. A value of the
// wrong type is a validation failure like any other bad field.
func writeDecodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		writeError(w, http.StatusBadRequest, ErrCodeValidation,
			fmt.Sprintf("%s must be of type %s", field, typeErr.Type))
		return
	}
	writeBadRequest(w, err.Error())
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writePage writes a list envelope, filtering each result by proj.
func writePage[T any](w http.ResponseWriter, r *http.Request, logger *logging.Logger, page *pagination.Page[T], proj pagination.Projection) {
	if proj.Empty() {
		writeJSON(w, http.StatusOK, page)
		return
	}
	projected, err := page.Project(proj)
	if err != nil {
		writeServiceError(w, r, logger, err)
		return
	}
	writeJSON(w, http.StatusOK, projected)
}

// serviceStatuses maps domain errors to responses, first match wins.
var serviceStatuses = []struct {
	target error
	status int
	code   string
	// message replaces the error text when set.
	message string
}{
	{hierarchy.ErrNotFound, http.StatusNotFound, ErrCodeNotFound, "not found"},
	{auth.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound, "not found"},
	{hierarchy.ErrValidation, http.StatusBadRequest, ErrCodeValidation, ""},
	{auth.ErrInvalidSignup, http.StatusBadRequest, ErrCodeValidation, ""},
	{hierarchy.ErrConflict, http.StatusConflict, ErrCodeConflict, ""},
	{auth.ErrEmailExists, http.StatusConflict, ErrCodeConflict, ""},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials"},
	{auth.ErrTokenInvalid, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token"},
	{hierarchy.ErrUpstream, http.StatusBadGateway, ErrCodeUpstream, "image storage unavailable"},
}

// writeServiceError maps err to its HTTP status. Unclassified errors become
// a 500 with a generic message; the detail goes to the log only.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *logging.Logger, err error) {
	for _, m := range serviceStatuses {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.message
		if msg == "" {
			msg = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			logger.Warn("upstream failure", "path", r.URL.Path, "error", err)
		}
		writeError(w, m.status, m.code, msg)
		return
	}
	logger.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", requestID(r),
		"error", err,
	)
	writeInternalError(w, "internal server error")
}
