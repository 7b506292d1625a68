// Package model defines domain entities for the application.
package model

import (
	"slices"
	"time"
)

// DefaultCapacity is the number of seats in a car group.
const DefaultCapacity = 4

// Group is a car: a capacity-bounded set of riders leaving one
// airport terminal at one departure slot.
type Group struct {
	ID            string    `json:"id"`
	DepartureTime time.Time `json:"departure_time"`
	MemberIDs     []string  `json:"member_ids"`
	MaxCapacity   int       `json:"max_capacity"`
	AirportID     string    `json:"airport_id"`
	TerminalID    string    `json:"terminal_id"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewGroup returns an empty group for a slot.
func NewGroup(id, airportID, terminalID string, departure time.Time) *Group {
	return &Group{
		ID:            id,
		DepartureTime: departure.UTC(),
		MemberIDs:     []string{},
		MaxCapacity:   DefaultCapacity,
		AirportID:     airportID,
		TerminalID:    terminalID,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsFull reports whether no seat is left.
func (g *Group) IsFull() bool {
	return len(g.MemberIDs) >= g.MaxCapacity
}

// SeatsLeft returns the number of free seats.
func (g *Group) SeatsLeft() int {
	if n := g.MaxCapacity - len(g.MemberIDs); n > 0 {
		return n
	}
	return 0
}

// HasMember reports whether userID already rides in this group.
func (g *Group) HasMember(userID string) bool {
	return slices.Contains(g.MemberIDs, userID)
}
