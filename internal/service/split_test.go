package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/ocr"
)

func newSplitService(t *testing.T, fares FareExtractor) (*SplitService, *memStore, *metrics.InMemoryRecorder) {
	t.Helper()
	store := newMemStore()
	rec := metrics.NewInMemory()
	for _, id := range []string{"alice", "bob", "carol"} {
		store.addProfile(id, id)
	}
	store.addGroup("car-1", "alice", "bob", "carol")
	store.addGroup("solo", "alice")
	return NewSplitService(store, store, store, fares, newFakeBroker(), testLogger(), rec), store, rec
}

func TestSplitService_FullFlow(t *testing.T) {
	svc, store, rec := newSplitService(t, fakeFares{amount: 45.00})
	ctx := context.Background()

	fare, err := svc.ExtractFare(ctx, "car-1", "alice", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.InDelta(t, 45.00, fare, 0.001)

	status, err := svc.StartSplit(ctx, "car-1", "alice", fare)
	require.NoError(t, err)
	assert.Equal(t, "alice", status.PayerID)
	assert.InDelta(t, 15.00, status.Share, 0.001)
	assert.InDelta(t, 45.00, status.Total, 0.001)
	require.Len(t, status.Members, 3)
	require.Contains(t, store.splits, "car-1")
	assert.Len(t, store.splits["car-1"].Payments, 2, "payer has no payment row")

	// Only the payer toggles.
	_, err = svc.SetPaid(ctx, "car-1", "bob", "carol", true)
	assert.ErrorIs(t, err, ErrForbidden)

	status, err = svc.SetPaid(ctx, "car-1", "alice", "bob", true)
	require.NoError(t, err)
	assert.False(t, status.Closed)

	status, err = svc.SetPaid(ctx, "car-1", "alice", "bob", false)
	require.NoError(t, err)
	assert.False(t, status.Closed)

	_, err = svc.SetPaid(ctx, "car-1", "alice", "bob", true)
	require.NoError(t, err)
	status, err = svc.SetPaid(ctx, "car-1", "alice", "carol", true)
	require.NoError(t, err)
	assert.True(t, status.Closed)

	_, err = store.GetGroup(ctx, "car-1")
	assert.Error(t, err, "settled group is retired")
	assert.Empty(t, store.splits)
	assert.Equal(t, uint64(1), rec.Snapshot().GroupsRetired[metrics.RetireSettled])
}

func TestSplitService_StartSplitRejects(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{})
	ctx := context.Background()

	tests := []struct {
		name    string
		groupID string
		payerID string
		total   float64
		wantErr error
	}{
		{"zero total", "car-1", "alice", 0, ErrInvalidInput},
		{"negative total", "car-1", "alice", -3, ErrInvalidInput},
		{"absurd total", "car-1", "alice", 1e9, ErrInvalidInput},
		{"not a member", "car-1", "mallory", 30, ErrNotMember},
		{"unknown group", "nope", "alice", 30, ErrGroupNotFound},
		{"alone", "solo", "alice", 30, ErrTooFewMembers},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartSplit(ctx, tt.groupID, tt.payerID, tt.total)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSplitService_StartSplitTwice(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{})
	ctx := context.Background()

	_, err := svc.StartSplit(ctx, "car-1", "alice", 30)
	require.NoError(t, err)
	_, err = svc.StartSplit(ctx, "car-1", "bob", 30)
	assert.ErrorIs(t, err, ErrSplitExists)
}

func TestSplitService_PairSplitsOnce(t *testing.T) {
	svc, store, _ := newSplitService(t, fakeFares{})
	store.addGroup("pair", "alice", "bob")
	ctx := context.Background()

	_, err := svc.StartSplit(ctx, "pair", "alice", 24)
	require.NoError(t, err)

	// Each rider would owe the other; only the first split counts.
	_, err = svc.StartSplit(ctx, "pair", "bob", 24)
	require.ErrorIs(t, err, ErrSplitExists)
	assert.Len(t, store.splits["pair"].Payments, 1)

	_, err = svc.SetPaid(ctx, "pair", "bob", "alice", true)
	assert.ErrorIs(t, err, ErrForbidden)

	status, err := svc.SetPaid(ctx, "pair", "alice", "bob", true)
	require.NoError(t, err)
	assert.True(t, status.Closed)

	_, err = store.GetGroup(ctx, "pair")
	assert.Error(t, err, "settled pair is retired")
}

func TestSplitService_TotalIsTheEnteredFare(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{})
	ctx := context.Background()

	status, err := svc.StartSplit(ctx, "car-1", "alice", 10.00)
	require.NoError(t, err)
	assert.InDelta(t, 10.00, status.Total, 0.0001)
	assert.InDelta(t, 3.33, status.Share, 0.0001)

	status, err = svc.Status(ctx, "car-1", "carol")
	require.NoError(t, err)
	assert.InDelta(t, 10.00, status.Total, 0.0001)
}

func TestSplitService_GroupClosedToNewRiders(t *testing.T) {
	svc, store, _ := newSplitService(t, fakeFares{})
	store.addProfile("dave", "dave")
	groups := NewGroupService(store, store, time.UTC, testLogger(), metrics.NewInMemory())
	ctx := context.Background()

	_, err := svc.StartSplit(ctx, "car-1", "alice", 30)
	require.NoError(t, err)

	_, err = groups.Join(ctx, "car-1", "dave")
	require.ErrorIs(t, err, ErrGroupClosed)

	// Riders already in the group may still re-join as a no-op.
	_, err = groups.Join(ctx, "car-1", "bob")
	require.NoError(t, err)

	status, err := svc.Status(ctx, "car-1", "bob")
	require.NoError(t, err)
	assert.InDelta(t, 30.00, status.Total, 0.0001)
	assert.Len(t, status.Members, 3)

	_, err = svc.SetPaid(ctx, "car-1", "alice", "bob", true)
	require.NoError(t, err)
	status, err = svc.SetPaid(ctx, "car-1", "alice", "carol", true)
	require.NoError(t, err)
	assert.True(t, status.Closed)
	for _, m := range status.Members {
		assert.True(t, m.HasPaid, "%s shown unpaid in a closed split", m.UserID)
	}
}

// staleGroups serves a group snapshot taken before a rider joined.
type staleGroups struct {
	*memStore
	snapshot *model.Group
}

func (s staleGroups) GetGroup(context.Context, string) (*model.Group, error) {
	return cloneGroup(s.snapshot), nil
}

func TestSplitService_MembersChangedWhileStarting(t *testing.T) {
	store := newMemStore()
	snapshot := store.addGroup("car-1", "alice", "bob")
	_, err := store.AppendMember(context.Background(), "car-1", "carol")
	require.NoError(t, err)

	svc := NewSplitService(staleGroups{store, snapshot}, store, store, fakeFares{}, newFakeBroker(), testLogger(), nil)

	_, err = svc.StartSplit(context.Background(), "car-1", "alice", 30)
	require.ErrorIs(t, err, ErrMembersChanged)
	assert.Empty(t, store.splits)
}

func TestSplitService_StatusBeforeStart(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{})

	_, err := svc.Status(context.Background(), "car-1", "bob")
	assert.ErrorIs(t, err, ErrSplitNotStarted)
}

func TestSplitService_Status(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{})
	ctx := context.Background()

	_, err := svc.StartSplit(ctx, "car-1", "carol", 20)
	require.NoError(t, err)

	status, err := svc.Status(ctx, "car-1", "bob")
	require.NoError(t, err)
	assert.InDelta(t, 6.67, status.Share, 0.001)
	for _, m := range status.Members {
		assert.Equal(t, m.UserID == "carol", m.IsPayer)
		assert.Equal(t, m.UserID == "carol", m.HasPaid)
		assert.Equal(t, "@"+m.UserID, m.VenmoUsername)
	}

	_, err = svc.Status(ctx, "car-1", "mallory")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSplitService_ExtractFareNoAmount(t *testing.T) {
	svc, _, _ := newSplitService(t, fakeFares{err: ocr.ErrNoAmount})

	_, err := svc.ExtractFare(context.Background(), "car-1", "bob", []byte("png"), "image/png")
	assert.ErrorIs(t, err, ocr.ErrNoAmount)

	_, err = svc.ExtractFare(context.Background(), "car-1", "mallory", []byte("png"), "image/png")
	assert.ErrorIs(t, err, ErrNotMember)
}
