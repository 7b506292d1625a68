package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
)

type fakeAuthService struct {
	signUp  service.SignUpInput
	session *service.Session
	profile *model.Profile
	err     error
}

func (f *fakeAuthService) SignUp(_ context.Context, input service.SignUpInput) (*service.Session, error) {
	f.signUp = input
	return f.session, f.err
}

func (f *fakeAuthService) SignIn(_ context.Context, _, _ string) (*service.Session, error) {
	return f.session, f.err
}

func (f *fakeAuthService) Me(_ context.Context, userID string) (*model.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func testSession() *service.Session {
	active := "01HZXGROUP0000000000000000"
	return &service.Session{
		Token:     "signed.jwt.value",
		ExpiresAt: time.Date(2026, 10, 22, 0, 0, 0, 0, time.UTC),
		Profile: &model.Profile{
			ID:            "01HZXRIDER0000000000000000",
			Email:         "trojan@usc.edu",
			FullName:      "Tommy Trojan",
			ActiveGroupID: &active,
			PasswordHash:  "$argon2id$secret",
		},
	}
}

func TestAuthHandler_SignUp(t *testing.T) {
	svc := &fakeAuthService{session: testSession()}
	h := NewAuthHandler(svc, testLogger())

	body := `{"email":"trojan@usc.edu","password":"fighton","full_name":"Tommy Trojan","venmo_username":"tommy"}`
	rec := httptest.NewRecorder()
	h.SignUp(rec, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if svc.signUp.VenmoUsername != "tommy" || svc.signUp.FullName != "Tommy Trojan" {
		t.Errorf("unexpected sign-up input: %+v", svc.signUp)
	}

	raw := rec.Body.String()
	if strings.Contains(raw, "argon2id") {
		t.Error("password hash leaked into the response")
	}

	var resp dto.SessionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Token != "signed.jwt.value" || resp.TokenType != "Bearer" {
		t.Errorf("unexpected session: %+v", resp)
	}
	if resp.Profile == nil || resp.Profile.ActiveGroupID == nil || *resp.Profile.ActiveGroupID != "01HZXGROUP0000000000000000" {
		t.Errorf("active group not returned: %+v", resp.Profile)
	}
}

func TestAuthHandler_SignUpErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{"malformed body", "{", nil, http.StatusBadRequest},
		{"email taken", `{"email":"a@usc.edu"}`, service.ErrEmailTaken, http.StatusConflict},
		{"invalid", `{"email":"a@gmail.com"}`, service.ErrInvalidInput, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthHandler(&fakeAuthService{err: tt.err}, testLogger())

			rec := httptest.NewRecorder()
			h.SignUp(rec, httptest.NewRequest(http.MethodPost, "/auth/signup", strings.NewReader(tt.body)))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestAuthHandler_SignIn(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{session: testSession()}, testLogger())

	rec := httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{"email":"trojan@usc.edu","password":"fighton"}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	h = NewAuthHandler(&fakeAuthService{err: service.ErrInvalidCredentials}, testLogger())
	rec = httptest.NewRecorder()
	h.SignIn(rec, httptest.NewRequest(http.MethodPost, "/auth/signin", strings.NewReader(`{"email":"trojan@usc.edu","password":"nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rec.Code)
	}
}

func TestAuthHandler_Me(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{profile: testSession().Profile}, testLogger())

	rec := httptest.NewRecorder()
	h.Me(rec, asRider(httptest.NewRequest(http.MethodGet, "/api/v1/me", nil), "01HZXRIDER0000000000000000"))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var resp dto.ProfileResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Email != "trojan@usc.edu" {
		t.Errorf("unexpected email: %s", resp.Email)
	}

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/api/v1/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
}
