package dto

// FareResponse is the amount read off a receipt.
type FareResponse struct {
	Amount float64 `json:"amount"`
}

// StartSplitRequest is the body of POST /api/v1/groups/{id}/split.
type StartSplitRequest struct {
	Total float64 `json:"total"`
}

// SetPaidRequest is the body of PUT /api/v1/groups/{id}/split/{user_id}.
type SetPaidRequest struct {
	HasPaid *bool `json:"has_paid"`
}
