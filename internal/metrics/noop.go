package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) AddSlotsProvisioned(int) {}
func (n *NoopRecorder) IncJoin(string) {}
func (n *NoopRecorder) IncMessageSent() {}
func (n *NoopRecorder) IncStreamPublish(string) {}
func (n *NoopRecorder) IncOCRRequest(string) {}
func (n *NoopRecorder) ObserveOCRDuration(time.Duration) {}
func (n *NoopRecorder) AddGroupsRetired(string, int) {}
