package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetentionWorker periodically removes audit events past the retention
// window.
type RetentionWorker struct {
	store     *Store
	retention time.Duration
	interval  time.Duration
	log       *zap.Logger
}

// NewRetentionWorker creates a retention worker. retentionDays controls how
// many days of events to keep; the worker sweeps daily.
func NewRetentionWorker(store *Store, retentionDays int, log *zap.Logger) *RetentionWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetentionWorker{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		interval:  24 * time.Hour,
		log:       log,
	}
}

// Run sweeps until the context is cancelled.
func (w *RetentionWorker) Run(ctx context.Context) {
	if w.store == nil || w.retention <= 0 {
		w.log.Info("audit retention worker disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("audit retention worker started",
		zap.Int("retention_days", int(w.retention.Hours()/24)))

	for {
		select {
		case <-ctx.Done():
			w.log.Info("audit retention worker stopped")
			return
		case <-ticker.C:
			w.Sweep()
		}
	}
}

// Sweep performs a single retention pass.
func (w *RetentionWorker) Sweep() {
	cutoff := time.Now().Add(-w.retention)
	deleted, err := w.store.DeleteOlderThan(cutoff)
	if err != nil {
		w.log.Error("audit retention sweep failed", zap.Error(err))
	} else if deleted > 0 {
		w.log.Info("audit retention sweep completed",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}
}
