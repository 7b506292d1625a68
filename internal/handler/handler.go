// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ridesplit/ridesplit/internal/auth"
	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/service"
)

// Version is reported by the root endpoint.
const Version = "0.1.0"

// Handler serves the routes that need no dependencies.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Root identifies the service.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "ridesplit",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// decodeJSON reads a JSON request body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return false
	}
	return true
}

// riderID returns the signed-in rider. Routes behind Auth always have one;
// a missing rider is answered with 401.
func riderID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := auth.UserIDFromContext(r.Context())
	if id == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing session token")
		return "", false
	}
	return id, true
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(logger *slog.Logger, w http.ResponseWriter, err error) {
	var repoErr *service.RepositoryError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
	case errors.Is(err, service.ErrNotMember):
		writeError(w, http.StatusForbidden, "NOT_MEMBER", "not a member of this group")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "operation not allowed")
	case errors.Is(err, service.ErrGroupNotFound):
		writeError(w, http.StatusNotFound, "GROUP_NOT_FOUND", "group not found")
	case errors.Is(err, service.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "PROFILE_NOT_FOUND", "profile not found")
	case errors.Is(err, service.ErrSplitNotStarted):
		writeError(w, http.StatusNotFound, "SPLIT_NOT_STARTED", "split not started")
	case errors.Is(err, service.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "GROUP_FULL", "group is full")
	case errors.Is(err, service.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EMAIL_TAKEN", "email already registered")
	case errors.Is(err, service.ErrSplitExists):
		writeError(w, http.StatusConflict, "SPLIT_EXISTS", "split already started")
	case errors.Is(err, service.ErrGroupClosed):
		writeError(w, http.StatusConflict, "SPLIT_STARTED", "group is settling its fare and takes no new riders")
	case errors.Is(err, service.ErrMembersChanged):
		writeError(w, http.StatusConflict, "MEMBERS_CHANGED", "group members changed, review the split and try again")
	case errors.Is(err, service.ErrTooFewMembers):
		writeError(w, http.StatusUnprocessableEntity, "TOO_FEW_MEMBERS", "group needs at least two riders to split")
	case errors.As(err, &repoErr):
		logger.Error("repository_error", "op", repoErr.Op, "error", repoErr.Err)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "service temporarily unavailable")
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred")
	}
}
