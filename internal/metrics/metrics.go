// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Join outcomes.
const (
	JoinOK           = "ok"
	JoinFull         = "full"
	JoinNotFound     = "not_found"
	JoinSplitStarted = "split_started"
	JoinError        = "error"
)

// OCR outcomes.
const (
	OCRSuccess  = "success"
	OCRNoAmount = "no_amount"
	OCRFailed   = "failed"
)

// Retire reasons.
const (
	RetireSettled = "settled"
	RetireExpired = "expired"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Group formation
	AddSlotsProvisioned(n int)
	IncJoin(outcome string)

	// Chat
	IncMessageSent()
	IncStreamPublish(status string) // status: "success" or "dropped"

	// Fare split
	IncOCRRequest(outcome string)
	ObserveOCRDuration(duration time.Duration)
	AddGroupsRetired(reason string, n int)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
