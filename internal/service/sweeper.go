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

// RetentionSweeper deletes jobs past their retention window together with
// their artifact blobs.
type RetentionSweeper struct {
	jobs      port.JobStore
	artifacts port.ArtifactStore
	blobs     port.BlobStore
	metrics   *metrics.Metrics
}

func NewRetentionSweeper(jobs port.JobStore, artifacts port.ArtifactStore, blobs port.BlobStore, m *metrics.Metrics) *RetentionSweeper {
	return &RetentionSweeper{jobs: jobs, artifacts: artifacts, blobs: blobs, metrics: m}
}

// Sweep is idempotent. Running jobs are never listed as expired. A job whose
// blobs cannot all be removed is kept for the next sweep and counted in
// Failed.
func (s *RetentionSweeper) Sweep(ctx context.Context, now time.Time) (domain.SweepResult, error) {
	var result domain.SweepResult

	expired, err := s.jobs.ListExpired(ctx, now)
	if err != nil {
		return result, fmt.Errorf("list expired jobs: %w", err)
	}

	for _, job := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		n, err := s.sweepJob(ctx, job)
		if err != nil {
			logger.Warn.Printf("sweep: job %s kept: %v", job.ID, err)
			result.Failed++
			continue
		}
		result.DeletedJobs++
		result.DeletedArtifacts += n
	}

	s.metrics.SweepDeleted("job", result.DeletedJobs)
	s.metrics.SweepDeleted("artifact", result.DeletedArtifacts)
	if len(expired) > 0 {
		logger.Info.Printf("sweep: deleted %d jobs, %d artifacts, %d failed",
			result.DeletedJobs, result.DeletedArtifacts, result.Failed)
	}
	return result, nil
}

func (s *RetentionSweeper) sweepJob(ctx context.Context, job *domain.Job) (int, error) {
	artifacts, err := s.artifacts.ListArtifacts(ctx, job.ID)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}

	for _, a := range artifacts {
		if err := s.blobs.Delete(ctx, a.Location); err != nil {
			return 0, fmt.Errorf("delete blob %s: %w", a.Location, err)
		}
	}

	if err := s.jobs.DeleteJob(ctx, job.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("delete job: %w", err)
	}
	return len(artifacts), nil
}
