package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/repository"
)

// maxFare bounds the fare a rider may enter.
const maxFare = 10000.0

// SplitStore persists fare splits. SettlePayment retires the group in the
// same transaction as the update that settles its last share.
type SplitStore interface {
	CreateSplit(ctx context.Context, split *model.Split) error
	GetSplit(ctx context.Context, groupID string) (*model.Split, error)
	SettlePayment(ctx context.Context, groupID, userID string, paid bool) (*model.Split, bool, error)
}

// ProfileLister loads rider profiles by ID.
type ProfileLister interface {
	ListProfilesByIDs(ctx context.Context, ids []string) ([]*model.Profile, error)
}

// FareExtractor reads a fare off a receipt image.
type FareExtractor interface {
	ExtractFare(ctx context.Context, image []byte, contentType string) (float64, error)
}

// StreamDropper removes a group's realtime stream.
type StreamDropper interface {
	Drop(ctx context.Context, groupIDs ...string) error
}

// MemberShare is one rider's part of a split.
type MemberShare struct {
	UserID        string  `json:"user_id"`
	FullName      string  `json:"full_name"`
	VenmoUsername string  `json:"venmo_username,omitempty"`
	Amount        float64 `json:"amount"`
	HasPaid       bool    `json:"has_paid"`
	IsPayer       bool    `json:"is_payer"`
}

// SplitStatus summarizes a group's fare split.
type SplitStatus struct {
	GroupID string        `json:"group_id"`
	PayerID string        `json:"payer_id"`
	Total   float64       `json:"total"`
	Share   float64       `json:"share"`
	Members []MemberShare `json:"members"`
	Closed  bool          `json:"closed"`
}

// SplitService splits a ride fare between group members.
type SplitService struct {
	groups   GroupReader
	splits   SplitStore
	profiles ProfileLister
	fares    FareExtractor
	streams  StreamDropper
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewSplitService creates a new SplitService.
func NewSplitService(
	groups GroupReader,
	splits SplitStore,
	profiles ProfileLister,
	fares FareExtractor,
	streams StreamDropper,
	logger *slog.Logger,
	recorder metrics.Recorder,
) *SplitService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &SplitService{
		groups:   groups,
		splits:   splits,
		profiles: profiles,
		fares:    fares,
		streams:  streams,
		logger:   logger.With("component", "service.split"),
		metrics:  recorder,
	}
}

// ExtractFare reads the fare from a member's receipt screenshot.
func (s *SplitService) ExtractFare(ctx context.Context, groupID, userID string, image []byte, contentType string) (float64, error) {
	if _, err := requireMember(ctx, s.groups, groupID, userID); err != nil {
		return 0, err
	}
	return s.fares.ExtractFare(ctx, image, contentType)
}

// StartSplit divides total evenly between all members and records one
// unpaid payment for every member other than the payer. The riders are
// fixed from here on: the group takes no new members once a split exists.
func (s *SplitService) StartSplit(ctx context.Context, groupID, payerID string, total float64) (*SplitStatus, error) {
	if math.IsNaN(total) || total <= 0 || total > maxFare {
		return nil, invalid("total must be between 0 and %.2f", maxFare)
	}
	total = roundCents(total)

	group, err := requireMember(ctx, s.groups, groupID, payerID)
	if err != nil {
		return nil, err
	}
	if len(group.MemberIDs) < 2 {
		return nil, ErrTooFewMembers
	}

	now := time.Now().UTC()
	split := &model.Split{
		GroupID:   groupID,
		PayerID:   payerID,
		Total:     total,
		Share:     roundCents(total / float64(len(group.MemberIDs))),
		CreatedAt: now,
		Payments:  make([]*model.Payment, 0, len(group.MemberIDs)-1),
	}
	for _, memberID := range group.MemberIDs {
		if memberID == payerID {
			continue
		}
		split.Payments = append(split.Payments, &model.Payment{
			ID:        ulid.Make().String(),
			GroupID:   groupID,
			PayerID:   payerID,
			UserID:    memberID,
			Amount:    split.Share,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.splits.CreateSplit(ctx, split); err != nil {
		switch {
		case errors.Is(err, repository.ErrSplitExists):
			return nil, ErrSplitExists
		case errors.Is(err, repository.ErrMembersChanged):
			return nil, ErrMembersChanged
		case errors.Is(err, repository.ErrGroupNotFound):
			return nil, ErrGroupNotFound
		default:
			return nil, repoErr("create split", err)
		}
	}

	s.logger.Info("split started",
		"group_id", groupID,
		"payer_id", payerID,
		"members", len(group.MemberIDs),
	)
	return s.status(ctx, split)
}

// SetPaid lets the payer mark a member's share paid or unpaid. Once every
// share is paid the group is retired and the result reports Closed.
func (s *SplitService) SetPaid(ctx context.Context, groupID, callerID, memberID string, paid bool) (*SplitStatus, error) {
	if memberID == "" {
		return nil, invalid("member is required")
	}

	if _, err := requireMember(ctx, s.groups, groupID, callerID); err != nil {
		return nil, err
	}

	current, err := s.getSplit(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if current.PayerID != callerID {
		return nil, ErrForbidden
	}

	split, settled, err := s.splits.SettlePayment(ctx, groupID, memberID, paid)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
			return nil, ErrNotMember
		case errors.Is(err, repository.ErrSplitNotFound):
			return nil, ErrSplitNotStarted
		default:
			return nil, repoErr("settle payment", err)
		}
	}

	status, err := s.status(ctx, split)
	if err != nil {
		return nil, err
	}
	if settled {
		s.settled(ctx, groupID)
		status.Closed = true
	}
	return status, nil
}

// Status returns the split of a group to one of its members.
func (s *SplitService) Status(ctx context.Context, groupID, userID string) (*SplitStatus, error) {
	var split *model.Split

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := requireMember(gctx, s.groups, groupID, userID)
		return err
	})
	g.Go(func() error {
		var err error
		split, err = s.getSplit(gctx, groupID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return s.status(ctx, split)
}

func (s *SplitService) getSplit(ctx context.Context, groupID string) (*model.Split, error) {
	split, err := s.splits.GetSplit(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrSplitNotFound) {
			return nil, ErrSplitNotStarted
		}
		return nil, repoErr("get split", err)
	}
	return split, nil
}

// settled finishes a group whose split was fully paid. The rows are
// already gone; only the stream remains.
func (s *SplitService) settled(ctx context.Context, groupID string) {
	if err := s.streams.Drop(ctx, groupID); err != nil {
		s.logger.Warn("failed to drop group stream", "group_id", groupID, "error", err)
	}
	s.metrics.AddGroupsRetired(metrics.RetireSettled, 1)
	s.logger.Info("group settled and retired", "group_id", groupID)
}

// status reports a split as recorded. Riders are the payer plus every
// member who owes a share, and Total is the fare the payer entered.
func (s *SplitService) status(ctx context.Context, split *model.Split) (*SplitStatus, error) {
	riders := split.Participants()
	profiles, err := s.profiles.ListProfilesByIDs(ctx, riders)
	if err != nil {
		return nil, repoErr("list profiles", err)
	}
	byID := make(map[string]*model.Profile, len(profiles))
	for _, p := range profiles {
		byID[p.ID] = p
	}

	paymentByUser := make(map[string]*model.Payment, len(split.Payments))
	for _, p := range split.Payments {
		paymentByUser[p.UserID] = p
	}

	status := &SplitStatus{
		GroupID: split.GroupID,
		PayerID: split.PayerID,
		Total:   split.Total,
		Share:   split.Share,
		Members: make([]MemberShare, 0, len(riders)),
	}

	for _, id := range riders {
		m := MemberShare{UserID: id, Amount: split.Share}
		if p, ok := byID[id]; ok {
			m.FullName = p.FullName
			m.VenmoUsername = p.VenmoUsername
		}
		if id == split.PayerID {
			m.IsPayer = true
			m.HasPaid = true
		} else if p, ok := paymentByUser[id]; ok {
			m.HasPaid = p.HasPaid
		}
		status.Members = append(status.Members, m)
	}
	return status, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
