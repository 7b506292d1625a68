package metrics

import (
	"sync"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	SlotsProvisioned   uint64
	Joins              map[string]uint64
	MessagesSent       uint64
	StreamPublishes    map[string]uint64
	OCRRequests        map[string]uint64
	OCRDurationCount   uint64
	OCRDurationTotalNs int64
	GroupsRetired      map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu   sync.Mutex
	snap Snapshot
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		snap: Snapshot{
			Joins:           map[string]uint64{},
			StreamPublishes: map[string]uint64{},
			OCRRequests:     map[string]uint64{},
			GroupsRetired:   map[string]uint64{},
		},
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.snap
	out.Joins = copyCounts(m.snap.Joins)
	out.StreamPublishes = copyCounts(m.snap.StreamPublishes)
	out.OCRRequests = copyCounts(m.snap.OCRRequests)
	out.GroupsRetired = copyCounts(m.snap.GroupsRetired)
	return out
}

// AddSlotsProvisioned adds to the provisioned slot counter.
func (m *InMemoryRecorder) AddSlotsProvisioned(n int) {
	m.mu.Lock()
	m.snap.SlotsProvisioned += uint64(n)
	m.mu.Unlock()
}

// IncJoin counts a join attempt by outcome.
func (m *InMemoryRecorder) IncJoin(outcome string) {
	m.mu.Lock()
	m.snap.Joins[outcome]++
	m.mu.Unlock()
}

// IncMessageSent increments the message counter.
func (m *InMemoryRecorder) IncMessageSent() {
	m.mu.Lock()
	m.snap.MessagesSent++
	m.mu.Unlock()
}

// IncStreamPublish counts a realtime publish by status.
func (m *InMemoryRecorder) IncStreamPublish(status string) {
	m.mu.Lock()
	m.snap.StreamPublishes[status]++
	m.mu.Unlock()
}

// IncOCRRequest counts an OCR call by outcome.
func (m *InMemoryRecorder) IncOCRRequest(outcome string) {
	m.mu.Lock()
	m.snap.OCRRequests[outcome]++
	m.mu.Unlock()
}

// ObserveOCRDuration records OCR latency.
func (m *InMemoryRecorder) ObserveOCRDuration(duration time.Duration) {
	m.mu.Lock()
	m.snap.OCRDurationCount++
	m.snap.OCRDurationTotalNs += duration.Nanoseconds()
	m.mu.Unlock()
}

// AddGroupsRetired counts retired groups by reason.
func (m *InMemoryRecorder) AddGroupsRetired(reason string, n int) {
	m.mu.Lock()
	m.snap.GroupsRetired[reason] += uint64(n)
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
