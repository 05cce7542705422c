package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/infrastructure/metrics"
	"github.com/bnema/tubeaudit/internal/port"
)

// Watchdog fails jobs that stay running past the timeout, typically because
// the worker executing them died.
type Watchdog struct {
	jobs    port.JobStore
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewWatchdog(jobs port.JobStore, timeout time.Duration, m *metrics.Metrics) *Watchdog {
	return &Watchdog{jobs: jobs, timeout: timeout, metrics: m}
}

// Reconcile returns the number of jobs it moved to failed.
func (w *Watchdog) Reconcile(ctx context.Context, now time.Time) (int, error) {
	stale, err := w.jobs.ListStale(ctx, now.Add(-w.timeout))
	if err != nil {
		return 0, fmt.Errorf("list stale jobs: %w", err)
	}

	msg := fmt.Sprintf("job exceeded maximum run time of %s", w.timeout)
	reconciled := 0
	for _, job := range stale {
		_, err := w.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, domain.ProgressFailed, msg)
		switch {
		case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrNotFound):
			// Finished or deleted since the listing.
			continue
		case err != nil:
			return reconciled, fmt.Errorf("fail stale job %s: %w", job.ID, err)
		}

		if err := w.jobs.AppendLog(ctx, job.ID, "Job failed: "+msg); err != nil {
			logger.Warn.Printf("job %s: append log: %v", job.ID, err)
		}
		w.metrics.JobFinished(string(domain.JobStatusFailed))
		logger.Warn.Printf("job %s: %s", job.ID, msg)
		reconciled++
	}
	return reconciled, nil
}
