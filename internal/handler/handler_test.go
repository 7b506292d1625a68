package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ridesplit/ridesplit/internal/auth"
	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asRider attaches a signed-in rider the way the Auth middleware does.
func asRider(r *http.Request, userID string) *http.Request {
	return r.WithContext(auth.ContextWithAuth(r.Context(), &model.AuthContext{UserID: userID}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func TestHandler_Root(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	h.Root(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["service"] != "ridesplit" {
		t.Errorf("unexpected service: %s", response["service"])
	}

	if response["version"] != Version {
		t.Errorf("unexpected version: %s", response["version"])
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/nonexistent", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "NOT_FOUND" {
		t.Errorf("unexpected code: %s", body.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New()

	rec := httptest.NewRecorder()
	h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("unexpected code: %s", body.Code)
	}
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid input", fmt.Errorf("%w: terminal too long", service.ErrInvalidInput), http.StatusBadRequest, "INVALID_INPUT"},
		{"bad credentials", service.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"not member", service.ErrNotMember, http.StatusForbidden, "NOT_MEMBER"},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"group missing", service.ErrGroupNotFound, http.StatusNotFound, "GROUP_NOT_FOUND"},
		{"profile missing", service.ErrProfileNotFound, http.StatusNotFound, "PROFILE_NOT_FOUND"},
		{"no split", service.ErrSplitNotStarted, http.StatusNotFound, "SPLIT_NOT_STARTED"},
		{"full", service.ErrCapacityExceeded, http.StatusConflict, "GROUP_FULL"},
		{"email taken", service.ErrEmailTaken, http.StatusConflict, "EMAIL_TAKEN"},
		{"split exists", service.ErrSplitExists, http.StatusConflict, "SPLIT_EXISTS"},
		{"join after split", service.ErrGroupClosed, http.StatusConflict, "SPLIT_STARTED"},
		{"members changed", service.ErrMembersChanged, http.StatusConflict, "MEMBERS_CHANGED"},
		{"too few", service.ErrTooFewMembers, http.StatusUnprocessableEntity, "TOO_FEW_MEMBERS"},
		{"repository", &service.RepositoryError{Op: "join", Err: errors.New("conn reset")}, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(testLogger(), rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decodeError(t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
			if strings.Contains(body.Error, "conn reset") || strings.Contains(body.Error, "boom") {
				t.Errorf("internal error leaked: %s", body.Error)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst dto.SignInRequest

	rec := httptest.NewRecorder()
	if decodeJSON(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), &dst) {
		t.Fatal("expected malformed JSON to fail")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"`+strings.Repeat("a", 64)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)
	if decodeJSON(rec, req, &dst) {
		t.Fatal("expected oversized body to fail")
	}
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}
