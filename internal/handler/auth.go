package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
)

// AuthService registers, signs in and describes riders.
type AuthService interface {
	SignUp(ctx context.Context, input service.SignUpInput) (*service.Session, error)
	SignIn(ctx context.Context, email, password string) (*service.Session, error)
	Me(ctx context.Context, userID string) (*model.Profile, error)
}

// AuthHandler handles sign-up, sign-in and the current profile.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// SignUp handles POST /auth/signup.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.SignUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.SignUp(r.Context(), service.SignUpInput{
		Email:         req.Email,
		Password:      req.Password,
		FullName:      req.FullName,
		VenmoUsername: req.VenmoUsername,
	})
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToSessionResponse(session))
}

// SignIn handles POST /auth/signin.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.svc.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSessionResponse(session))
}

// Me handles GET /api/v1/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	profile, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToProfileResponse(profile))
}
