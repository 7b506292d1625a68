package service

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/realtime"
	"github.com/ridesplit/ridesplit/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repository. Its
// AppendMember holds the lock for the whole check-and-append, like the
// stored procedure's row lock.
type memStore struct {
	mu        sync.Mutex
	groups    map[string]*model.Group
	airports  map[string]string
	terminals map[string]string
	profiles  map[string]*model.Profile
	messages  []*model.Message
	splits    map[string]*model.Split

	insertCalls int
	failNext    error
}

func newMemStore() *memStore {
	return &memStore{
		groups:    map[string]*model.Group{},
		airports:  map[string]string{},
		terminals: map[string]string{},
		profiles:  map[string]*model.Profile{},
		splits:    map[string]*model.Split{},
	}
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func cloneSplit(sp *model.Split) *model.Split {
	c := *sp
	c.Payments = make([]*model.Payment, len(sp.Payments))
	for i, p := range sp.Payments {
		pc := *p
		c.Payments[i] = &pc
	}
	return &c
}

func cloneGroup(g *model.Group) *model.Group {
	c := *g
	c.MemberIDs = slices.Clone(g.MemberIDs)
	return &c
}

func (m *memStore) ListGroupsAtTimes(_ context.Context, airportID, terminalID string, times []time.Time) ([]*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var out []*model.Group
	for _, g := range m.groups {
		if g.AirportID != airportID || g.TerminalID != terminalID {
			continue
		}
		for _, t := range times {
			if g.DepartureTime.Equal(t) {
				out = append(out, cloneGroup(g))
				break
			}
		}
	}
	return out, nil
}

func (m *memStore) ListGroupsInWindow(_ context.Context, airportID, terminalID string, from, to time.Time) ([]*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	out := []*model.Group{}
	for _, g := range m.groups {
		if g.AirportID != airportID || g.TerminalID != terminalID {
			continue
		}
		if g.DepartureTime.Before(from) || g.DepartureTime.After(to) {
			continue
		}
		out = append(out, cloneGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureTime.Before(out[j].DepartureTime) })
	return out, nil
}

func (m *memStore) InsertGroups(_ context.Context, groups []*model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if err := m.takeFailure(); err != nil {
		return err
	}

	for _, g := range groups {
		dup := false
		for _, existing := range m.groups {
			if existing.AirportID == g.AirportID && existing.TerminalID == g.TerminalID && existing.DepartureTime.Equal(g.DepartureTime) {
				dup = true
				break
			}
		}
		if !dup {
			m.groups[g.ID] = cloneGroup(g)
		}
	}
	return nil
}

func (m *memStore) AppendMember(_ context.Context, groupID, userID string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	g, ok := m.groups[groupID]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	if g.HasMember(userID) {
		return cloneGroup(g), nil
	}
	if _, ok := m.splits[groupID]; ok {
		return nil, repository.ErrSplitStarted
	}
	if g.IsFull() {
		return nil, repository.ErrGroupFull
	}
	g.MemberIDs = append(g.MemberIDs, userID)
	if p, ok := m.profiles[userID]; ok {
		id := groupID
		p.ActiveGroupID = &id
	}
	return cloneGroup(g), nil
}

func (m *memStore) GetGroup(_ context.Context, id string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	g, ok := m.groups[id]
	if !ok {
		return nil, repository.ErrGroupNotFound
	}
	return cloneGroup(g), nil
}

func (m *memStore) RetireGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retireLocked(id)
}

func (m *memStore) retireLocked(id string) error {
	if _, ok := m.groups[id]; !ok {
		return repository.ErrGroupNotFound
	}
	delete(m.groups, id)
	delete(m.splits, id)
	m.messages = slices.DeleteFunc(m.messages, func(msg *model.Message) bool { return msg.GroupID == id })
	for _, p := range m.profiles {
		if p.ActiveGroupID != nil && *p.ActiveGroupID == id {
			p.ActiveGroupID = nil
		}
	}
	return nil
}

func (m *memStore) EnsureAirport(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.airports[name]; ok {
		return id, nil
	}
	id := "airport-" + name
	m.airports[name] = id
	return id, nil
}

func (m *memStore) EnsureTerminal(_ context.Context, airportID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := airportID + "/" + name
	if id, ok := m.terminals[key]; ok {
		return id, nil
	}
	id := "terminal-" + key
	m.terminals[key] = id
	return id, nil
}

func (m *memStore) CreateProfile(_ context.Context, p *model.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.profiles {
		if strings.EqualFold(existing.Email, p.Email) {
			return repository.ErrEmailExists
		}
	}
	c := *p
	m.profiles[p.ID] = &c
	return nil
}

func (m *memStore) GetProfileByID(_ context.Context, id string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, repository.ErrProfileNotFound
	}
	c := *p
	return &c, nil
}

func (m *memStore) GetProfileByEmail(_ context.Context, email string) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if strings.EqualFold(p.Email, email) {
			c := *p
			return &c, nil
		}
	}
	return nil, repository.ErrProfileNotFound
}

func (m *memStore) ListProfilesByIDs(_ context.Context, ids []string) ([]*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Profile{}
	for _, id := range ids {
		if p, ok := m.profiles[id]; ok {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memStore) CreateMessage(_ context.Context, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *memStore) ListMessages(_ context.Context, groupID string, limit int) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.Message{}
	for _, msg := range m.messages {
		if msg.GroupID == groupID {
			out = append(out, msg)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// CreateSplit keys splits by group, like the splits primary key, and
// requires the split to cover the group's current members.
func (m *memStore) CreateSplit(_ context.Context, sp *model.Split) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	g, ok := m.groups[sp.GroupID]
	if !ok {
		return repository.ErrGroupNotFound
	}
	riders := sp.Participants()
	if len(riders) != len(g.MemberIDs) {
		return repository.ErrMembersChanged
	}
	for _, id := range riders {
		if !g.HasMember(id) {
			return repository.ErrMembersChanged
		}
	}
	if _, ok := m.splits[sp.GroupID]; ok {
		return repository.ErrSplitExists
	}
	m.splits[sp.GroupID] = cloneSplit(sp)
	return nil
}

func (m *memStore) GetSplit(_ context.Context, groupID string) (*model.Split, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.splits[groupID]
	if !ok {
		return nil, repository.ErrSplitNotFound
	}
	return cloneSplit(sp), nil
}

func (m *memStore) SettlePayment(_ context.Context, groupID, userID string, paid bool) (*model.Split, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sp, ok := m.splits[groupID]
	if !ok {
		return nil, false, repository.ErrSplitNotFound
	}
	found := false
	for _, p := range sp.Payments {
		if p.UserID == userID {
			p.HasPaid = paid
			found = true
		}
	}
	if !found {
		return nil, false, repository.ErrPaymentNotFound
	}

	out := cloneSplit(sp)
	if !sp.Settled() {
		return out, false, nil
	}
	if err := m.retireLocked(groupID); err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// addGroup seeds a group with members.
func (m *memStore) addGroup(id string, members ...string) *model.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := model.NewGroup(id, "airport-LAX", "terminal-B", time.Date(2026, 5, 1, 21, 0, 0, 0, time.UTC))
	g.MemberIDs = append(g.MemberIDs, members...)
	m.groups[id] = g
	return cloneGroup(g)
}

// addProfile seeds a rider.
func (m *memStore) addProfile(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[id] = &model.Profile{ID: id, Email: id + "@usc.edu", FullName: name, VenmoUsername: "@" + name}
}

// fakeBroker records publishes and serves queued events to Read.
type fakeBroker struct {
	mu        sync.Mutex
	published []*model.Message
	events    chan realtime.Event
	failNext  error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{events: make(chan realtime.Event, 16)}
}

func (b *fakeBroker) Publish(_ context.Context, msg *model.Message) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failNext; err != nil {
		b.failNext = nil
		return "", err
	}
	b.published = append(b.published, msg)
	return "1-0", nil
}

func (b *fakeBroker) Read(ctx context.Context, _, _ string) ([]realtime.Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case ev := <-b.events:
		return []realtime.Event{ev}, nil
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (b *fakeBroker) LatestID(context.Context, string) (string, error) {
	return "0", nil
}

func (b *fakeBroker) Drop(context.Context, ...string) error {
	return nil
}

type fakeFares struct {
	amount float64
	err    error
}

func (f fakeFares) ExtractFare(context.Context, []byte, string) (float64, error) {
	return f.amount, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
