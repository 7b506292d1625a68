package dto

import (
	"time"

	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
)

// SignUpRequest is the body of POST /auth/signup.
type SignUpRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	VenmoUsername string `json:"venmo_username,omitempty"`
}

// SignInRequest is the body of POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileResponse is a rider as the API shows it.
type ProfileResponse struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	VenmoUsername string    `json:"venmo_username,omitempty"`
	ActiveGroupID *string   `json:"active_group_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// SessionResponse is returned by sign-up and sign-in.
type SessionResponse struct {
	Token     string           `json:"token"`
	TokenType string           `json:"token_type"`
	ExpiresAt time.Time        `json:"expires_at"`
	Profile   *ProfileResponse `json:"profile"`
}

// ToProfileResponse converts a Profile model to its DTO.
func ToProfileResponse(p *model.Profile) *ProfileResponse {
	return &ProfileResponse{
		ID:            p.ID,
		Email:         p.Email,
		FullName:      p.FullName,
		VenmoUsername: p.VenmoUsername,
		ActiveGroupID: p.ActiveGroupID,
		CreatedAt:     p.CreatedAt,
	}
}

// ToSessionResponse converts a service Session to its DTO.
func ToSessionResponse(s *service.Session) *SessionResponse {
	return &SessionResponse{
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresAt: s.ExpiresAt,
		Profile:   ToProfileResponse(s.Profile),
	}
}
