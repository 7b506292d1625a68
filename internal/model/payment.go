package model

import "time"

// Payment tracks whether one member has paid back the rider who
// was charged for the ride.
type Payment struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"group_id"`
	PayerID   string    `json:"payer_id"`
	UserID    string    `json:"user_id"`
	Amount    float64   `json:"amount"`
	HasPaid   bool      `json:"has_paid"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Split is the fare split of a group: who paid, the fare they entered,
// and one payment per other rider. A group has at most one split, and
// its riders are fixed when it starts.
type Split struct {
	GroupID   string     `json:"group_id"`
	PayerID   string     `json:"payer_id"`
	Total     float64    `json:"total"`
	Share     float64    `json:"share"`
	CreatedAt time.Time  `json:"created_at"`
	Payments  []*Payment `json:"payments"`
}

// Participants returns the payer followed by every rider who owes a share.
func (s *Split) Participants() []string {
	ids := make([]string, 0, len(s.Payments)+1)
	ids = append(ids, s.PayerID)
	for _, p := range s.Payments {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Settled reports whether every share of the split has been paid.
func (s *Split) Settled() bool {
	return AllPaid(s.Payments)
}

// AllPaid reports whether every payment in the slice is settled.
// An empty slice is not considered settled.
func AllPaid(payments []*Payment) bool {
	if len(payments) == 0 {
		return false
	}
	for _, p := range payments {
		if !p.HasPaid {
			return false
		}
	}
	return true
}
