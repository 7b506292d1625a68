package dto

import (
	"errors"
	"time"

	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
)

// dateLayout is the optional calendar date on a search.
const dateLayout = "2006-01-02"

// SearchGroupsRequest is the body of POST /api/v1/groups/search.
type SearchGroupsRequest struct {
	Airport  string `json:"airport"`
	Terminal string `json:"terminal"`
	// Time is a picker label such as "2:30 PM".
	Time string `json:"time"`
	// Date is YYYY-MM-DD; empty means today.
	Date string `json:"date,omitempty"`
}

// ToSearchInput converts the request to service input. The date is
// anchored at noon UTC so it names the same calendar day in every
// American time zone.
func (r *SearchGroupsRequest) ToSearchInput() (service.SearchInput, error) {
	input := service.SearchInput{
		Airport:  r.Airport,
		Terminal: r.Terminal,
		Time:     r.Time,
	}
	if r.Date != "" {
		d, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			return input, errors.New("date must be YYYY-MM-DD")
		}
		input.Day = time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, time.UTC)
	}
	return input, nil
}

// GroupResponse represents a group in API responses.
type GroupResponse struct {
	ID            string    `json:"id"`
	DepartureTime time.Time `json:"departure_time"`
	MemberIDs     []string  `json:"member_ids"`
	MaxCapacity   int       `json:"max_capacity"`
	SeatsLeft     int       `json:"seats_left"`
	IsFull        bool      `json:"is_full"`
	AirportID     string    `json:"airport_id"`
	TerminalID    string    `json:"terminal_id"`
}

// GroupListResponse wraps a list of groups.
type GroupListResponse struct {
	Data []*GroupResponse `json:"data"`
}

// SearchGroupsResponse is returned by a search.
type SearchGroupsResponse struct {
	AirportID     string           `json:"airport_id"`
	TerminalID    string           `json:"terminal_id"`
	DepartureTime time.Time        `json:"departure_time"`
	Data          []*GroupResponse `json:"data"`
}

// SlotLabelsResponse lists the departure times a rider can pick.
type SlotLabelsResponse struct {
	Airports []string `json:"airports"`
	Times    []string `json:"times"`
}

// ToGroupResponse converts a Group model to GroupResponse DTO.
func ToGroupResponse(g *model.Group) *GroupResponse {
	members := g.MemberIDs
	if members == nil {
		members = []string{}
	}
	return &GroupResponse{
		ID:            g.ID,
		DepartureTime: g.DepartureTime,
		MemberIDs:     members,
		MaxCapacity:   g.MaxCapacity,
		SeatsLeft:     g.SeatsLeft(),
		IsFull:        g.IsFull(),
		AirportID:     g.AirportID,
		TerminalID:    g.TerminalID,
	}
}

// ToGroupList converts groups to DTOs, never returning nil.
func ToGroupList(groups []*model.Group) []*GroupResponse {
	out := make([]*GroupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, ToGroupResponse(g))
	}
	return out
}

// ToSearchGroupsResponse converts a search result.
func ToSearchGroupsResponse(r *service.SearchResult) *SearchGroupsResponse {
	return &SearchGroupsResponse{
		AirportID:     r.AirportID,
		TerminalID:    r.TerminalID,
		DepartureTime: r.DepartureTime,
		Data:          ToGroupList(r.Groups),
	}
}
