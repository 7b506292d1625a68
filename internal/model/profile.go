package model

import "time"

// Profile is a registered rider.
type Profile struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	FullName      string    `json:"full_name"`
	VenmoUsername string    `json:"venmo_username,omitempty"`
	ActiveGroupID *string   `json:"active_group_id,omitempty"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// AuthContext holds the authenticated rider for a request.
type AuthContext struct {
	UserID string
	Email  string
}
