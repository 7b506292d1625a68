// Package cleanup retires car groups whose departure is long past.
// Messages and payments go with the group through cascading deletes.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ridesplit/ridesplit/internal/metrics"
)

const (
	// DefaultInterval is how often the worker sweeps.
	DefaultInterval = 15 * time.Minute

	// DefaultRetention is how long after departure a group is kept.
	DefaultRetention = 24 * time.Hour

	// DefaultBatchSize bounds the groups deleted per statement.
	DefaultBatchSize = 500
)

// Retirer deletes departed groups and returns their IDs.
type Retirer interface {
	RetireDepartedGroups(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// StreamDropper removes the realtime streams of retired groups.
type StreamDropper interface {
	Drop(ctx context.Context, groupIDs ...string) error
}

// Worker periodically retires departed groups.
type Worker struct {
	repo      Retirer
	streams   StreamDropper
	logger    *slog.Logger
	metrics   metrics.Recorder
	interval  time.Duration
	retention time.Duration
	batchSize int
	now       func() time.Time

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewWorker creates a new cleanup worker.
func NewWorker(repo Retirer, streams StreamDropper, logger *slog.Logger, recorder metrics.Recorder, interval, retention time.Duration) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Worker{
		repo:      repo,
		streams:   streams,
		logger:    logger.With("component", "cleanup.worker"),
		metrics:   recorder,
		interval:  interval,
		retention: retention,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
}

// Run sweeps once immediately and then on every tick. Blocks until ctx is
// cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	defer close(w.done)

	w.logger.Info("cleanup worker started",
		"interval", w.interval,
		"retention", w.retention,
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("cleanup sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("cleanup worker stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce retires every group that departed before now minus the
// retention and returns how many were removed.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := w.now().Add(-w.retention)

	total := 0
	for {
		ids, err := w.repo.RetireDepartedGroups(ctx, cutoff, w.batchSize)
		if err != nil {
			return total, fmt.Errorf("retire departed groups: %w", err)
		}
		total += len(ids)

		if len(ids) > 0 {
			w.metrics.AddGroupsRetired(metrics.RetireExpired, len(ids))
			if err := w.streams.Drop(ctx, ids...); err != nil {
				w.logger.Warn("failed to drop group streams", "count", len(ids), "error", err)
			}
		}

		if len(ids) < w.batchSize {
			break
		}
	}

	w.logger.Info("cleanup sweep complete",
		"retired", total,
		"cutoff", cutoff,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return total, nil
}

// Shutdown stops the worker, waiting for an in-flight sweep.
// It implements server.ShutdownFunc for integration with graceful shutdown.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()

	select {
	case <-done:
		w.logger.Info("cleanup worker shutdown complete")
		return nil
	case <-ctx.Done():
		w.logger.Warn("cleanup worker shutdown timed out")
		return ctx.Err()
	}
}
