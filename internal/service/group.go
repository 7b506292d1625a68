// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/repository"
	"github.com/ridesplit/ridesplit/internal/slot"
)

const maxTerminalLength = 32

// GroupStore is the persistence GroupService needs for car groups.
type GroupStore interface {
	ListGroupsAtTimes(ctx context.Context, airportID, terminalID string, times []time.Time) ([]*model.Group, error)
	ListGroupsInWindow(ctx context.Context, airportID, terminalID string, from, to time.Time) ([]*model.Group, error)
	InsertGroups(ctx context.Context, groups []*model.Group) error
	// AppendMember atomically adds a rider. It returns repository.ErrGroupFull,
	// repository.ErrGroupNotFound or repository.ErrSplitStarted, and is a
	// no-op for existing members.
	AppendMember(ctx context.Context, groupID, userID string) (*model.Group, error)
	GetGroup(ctx context.Context, id string) (*model.Group, error)
}

// LocationStore resolves airport and terminal names to IDs.
type LocationStore interface {
	EnsureAirport(ctx context.Context, name string) (string, error)
	EnsureTerminal(ctx context.Context, airportID, name string) (string, error)
}

// GroupService forms car groups around requested departure times.
type GroupService struct {
	groups    GroupStore
	locations LocationStore
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewGroupService creates a new GroupService. loc is the zone picker
// times are interpreted in.
func NewGroupService(groups GroupStore, locations LocationStore, loc *time.Location, logger *slog.Logger, recorder metrics.Recorder) *GroupService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GroupService{
		groups:    groups,
		locations: locations,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With("component", "service.group"),
		metrics:   recorder,
	}
}

// EnsureSlots creates an empty group for each of the five slots around
// base that has none yet at the terminal. Calling it again is a no-op.
func (s *GroupService) EnsureSlots(ctx context.Context, airportID, terminalID string, base time.Time) error {
	if airportID == "" || terminalID == "" {
		return invalid("airport and terminal are required")
	}

	slots := slot.Generate(base)

	existing, err := s.groups.ListGroupsAtTimes(ctx, airportID, terminalID, slots)
	if err != nil {
		return repoErr("list slots", err)
	}

	taken := make(map[int64]struct{}, len(existing))
	for _, g := range existing {
		taken[g.DepartureTime.UTC().UnixNano()] = struct{}{}
	}

	var missing []*model.Group
	for _, t := range slots {
		if _, ok := taken[t.UTC().UnixNano()]; ok {
			continue
		}
		missing = append(missing, model.NewGroup(ulid.Make().String(), airportID, terminalID, t))
	}

	if len(missing) == 0 {
		return nil
	}

	if err := s.groups.InsertGroups(ctx, missing); err != nil {
		return repoErr("insert slots", err)
	}

	s.metrics.AddSlotsProvisioned(len(missing))
	s.logger.Debug("slots provisioned",
		"airport_id", airportID,
		"terminal_id", terminalID,
		"count", len(missing),
	)
	return nil
}

// FindGroups returns the terminal's groups departing within an hour of
// base, inclusive. No groups is not an error.
func (s *GroupService) FindGroups(ctx context.Context, airportID, terminalID string, base time.Time) ([]*model.Group, error) {
	if airportID == "" || terminalID == "" {
		return nil, invalid("airport and terminal are required")
	}

	from, to := slot.Window(base)
	groups, err := s.groups.ListGroupsInWindow(ctx, airportID, terminalID, from, to)
	if err != nil {
		return nil, repoErr("list window", err)
	}
	return groups, nil
}

// Join adds a rider to a group without ever exceeding its capacity.
// Joining a group the rider is already in succeeds without change.
func (s *GroupService) Join(ctx context.Context, groupID, userID string) (*model.Group, error) {
	if groupID == "" || userID == "" {
		return nil, invalid("group and user are required")
	}

	group, err := s.groups.AppendMember(ctx, groupID, userID)
	switch {
	case err == nil:
		s.metrics.IncJoin(metrics.JoinOK)
		s.logger.Info("rider joined group", "group_id", groupID, "user_id", userID)
		return group, nil
	case errors.Is(err, repository.ErrGroupFull):
		s.metrics.IncJoin(metrics.JoinFull)
		return nil, ErrCapacityExceeded
	case errors.Is(err, repository.ErrGroupNotFound):
		s.metrics.IncJoin(metrics.JoinNotFound)
		return nil, ErrGroupNotFound
	case errors.Is(err, repository.ErrSplitStarted):
		s.metrics.IncJoin(metrics.JoinSplitStarted)
		return nil, ErrGroupClosed
	default:
		s.metrics.IncJoin(metrics.JoinError)
		return nil, repoErr("join", err)
	}
}

// GetGroup returns a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	if id == "" {
		return nil, invalid("group id is required")
	}
	g, err := s.groups.GetGroup(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, repoErr("get group", err)
	}
	return g, nil
}

// SearchInput is a rider's request for groups.
type SearchInput struct {
	Airport  string
	Terminal string
	// Time is a picker label such as "2:30 PM".
	Time string
	// Day selects the date; the zero value means today.
	Day time.Time
}

// SearchResult is what a search returns to the rider.
type SearchResult struct {
	AirportID     string
	TerminalID    string
	DepartureTime time.Time
	Groups        []*model.Group
}

// Search validates a request, provisions the slots around it and returns
// the groups in its window.
func (s *GroupService) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	airport := strings.ToUpper(strings.TrimSpace(input.Airport))
	if !model.IsSupportedAirport(airport) {
		return nil, invalid("unsupported airport %q", input.Airport)
	}

	terminal := strings.TrimSpace(input.Terminal)
	if terminal == "" || len(terminal) > maxTerminalLength {
		return nil, invalid("terminal must be 1-%d characters", maxTerminalLength)
	}

	day := input.Day
	if day.IsZero() {
		day = s.now()
	}
	base, err := slot.ParsePickerTime(input.Time, day, s.loc)
	if err != nil {
		return nil, invalid("time %q: %v", input.Time, err)
	}

	airportID, err := s.locations.EnsureAirport(ctx, airport)
	if err != nil {
		return nil, repoErr("ensure airport", err)
	}
	terminalID, err := s.locations.EnsureTerminal(ctx, airportID, terminal)
	if err != nil {
		return nil, repoErr("ensure terminal", err)
	}

	if err := s.EnsureSlots(ctx, airportID, terminalID, base); err != nil {
		return nil, err
	}

	groups, err := s.FindGroups(ctx, airportID, terminalID, base)
	if err != nil {
		return nil, err
	}

	return &SearchResult{
		AirportID:     airportID,
		TerminalID:    terminalID,
		DepartureTime: base.UTC(),
		Groups:        groups,
	}, nil
}
