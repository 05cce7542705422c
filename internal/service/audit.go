package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/infrastructure/metrics"
	"github.com/bnema/tubeaudit/internal/port"
)

// statsWindow bounds the "completed recently" dashboard counter.
const statsWindow = 7 * 24 * time.Hour

type AuditDeps struct {
	Jobs          port.JobStore
	Artifacts     port.ArtifactStore
	Clients       port.ClientStore
	Blobs         port.BlobStore
	Dispatcher    port.Dispatcher
	Metrics       *metrics.Metrics
	RetentionDays int
	LinkTTL       time.Duration
}

// AuditService is the submission and tracking surface used by the HTTP layer.
type AuditService struct {
	deps AuditDeps
	now  func() time.Time
}

func NewAuditService(deps AuditDeps) *AuditService {
	return &AuditService{deps: deps, now: time.Now}
}

// Create validates and persists a job, then hands it to the dispatcher. If
// dispatch fails the job is failed on the spot and the *domain.DispatchError
// is returned.
func (s *AuditService) Create(ctx context.Context, req domain.CreateAuditRequest) (*domain.Job, error) {
	now := s.now()

	// Validate before touching the client table.
	job, err := domain.NewJob(req, "", s.deps.RetentionDays, now)
	if err != nil {
		return nil, err
	}

	client, err := s.deps.Clients.EnsureClient(ctx, job.ClientName, strings.TrimSpace(req.ClientContact), req.RequestedBy)
	if err != nil {
		return nil, fmt.Errorf("ensure client: %w", err)
	}
	job.ClientID = client.ID
	job.ClientName = client.Name
	job.ProgressStep = fmt.Sprintf("%s (%s)", domain.ProgressQueued, job.CrawlMode)

	if err := s.deps.Jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	s.deps.Metrics.JobCreated(s.deps.Dispatcher.Mode())
	logger.Info.Printf("job %s: created for client=%s channel=%s",
		job.ID, logger.SanitizeForLog(job.ClientName), logger.SanitizeForLog(job.ChannelURL))
	s.appendLog(ctx, job.ID, "Job queued (%s mode, dispatch: %s)", job.CrawlMode, s.deps.Dispatcher.Mode())

	if err := s.deps.Dispatcher.Dispatch(ctx, job.ID); err != nil {
		return nil, s.failDispatch(ctx, job.ID, err)
	}
	return job, nil
}

func (s *AuditService) failDispatch(ctx context.Context, jobID string, err error) error {
	var dispatchErr *domain.DispatchError
	if !errors.As(err, &dispatchErr) {
		dispatchErr = &domain.DispatchError{Mode: s.deps.Dispatcher.Mode(), Err: err}
	}
	s.deps.Metrics.DispatchError(dispatchErr.Mode)
	logger.Error.Printf("job %s: %v", jobID, dispatchErr)

	// The caller's context may be what failed the dispatch.
	ctx = context.WithoutCancel(ctx)
	s.appendLog(ctx, jobID, "Job failed: %v", dispatchErr)
	if _, uerr := s.deps.Jobs.UpdateStatus(ctx, jobID, domain.JobStatusFailed, domain.ProgressFailed, dispatchErr.Error()); uerr != nil {
		logger.Error.Printf("job %s: mark failed after dispatch error: %v", jobID, uerr)
	} else {
		s.deps.Metrics.JobFinished(string(domain.JobStatusFailed))
	}
	return dispatchErr
}

func (s *AuditService) Get(ctx context.Context, id string) (*domain.Job, error) {
	return s.deps.Jobs.GetJob(ctx, id)
}

func (s *AuditService) List(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error) {
	return s.deps.Jobs.ListJobs(ctx, filter)
}

func (s *AuditService) Stats(ctx context.Context) (domain.JobStats, error) {
	return s.deps.Jobs.CountByStatus(ctx, s.now().Add(-statsWindow))
}

func (s *AuditService) Artifacts(ctx context.Context, jobID string) ([]*domain.Artifact, error) {
	return s.deps.Artifacts.ListArtifacts(ctx, jobID)
}

func (s *AuditService) Artifact(ctx context.Context, id string) (*domain.Artifact, error) {
	return s.deps.Artifacts.GetArtifact(ctx, id)
}

// Status is the polling view, read straight from the store.
func (s *AuditService) Status(ctx context.Context, id string) (domain.StatusView, error) {
	job, err := s.deps.Jobs.GetJob(ctx, id)
	if err != nil {
		return domain.StatusView{}, err
	}
	artifacts, err := s.deps.Artifacts.ListArtifacts(ctx, id)
	if err != nil {
		return domain.StatusView{}, fmt.Errorf("list artifacts: %w", err)
	}
	return domain.NewStatusView(job, artifacts), nil
}

// ArtifactLink returns a short-lived URL for one artifact of a job, or
// domain.ErrNotAvailable when the pipeline has not produced it.
func (s *AuditService) ArtifactLink(ctx context.Context, jobID string, t domain.ArtifactType) (domain.ArtifactLink, error) {
	if _, err := s.deps.Jobs.GetJob(ctx, jobID); err != nil {
		return domain.ArtifactLink{}, err
	}

	a, err := s.deps.Artifacts.GetArtifactByType(ctx, jobID, t)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ArtifactLink{}, fmt.Errorf("%w: %s", domain.ErrNotAvailable, t)
	}
	if err != nil {
		return domain.ArtifactLink{}, err
	}

	url, err := s.deps.Blobs.SignedURL(ctx, a, s.deps.LinkTTL)
	if err != nil {
		return domain.ArtifactLink{}, fmt.Errorf("sign %s: %w", t, err)
	}
	return domain.ArtifactLink{URL: url, ExpiresInSeconds: int(s.deps.LinkTTL.Seconds())}, nil
}

// Delete removes a job's blobs and then the job. Running jobs are refused.
func (s *AuditService) Delete(ctx context.Context, id string) error {
	job, err := s.deps.Jobs.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job.Status == domain.JobStatusRunning {
		return domain.ErrJobRunning
	}

	artifacts, err := s.deps.Artifacts.ListArtifacts(ctx, id)
	if err != nil {
		return fmt.Errorf("list artifacts: %w", err)
	}
	for _, a := range artifacts {
		if err := s.deps.Blobs.Delete(ctx, a.Location); err != nil {
			return fmt.Errorf("delete %s: %w", a.Type, err)
		}
	}

	if err := s.deps.Jobs.DeleteJob(ctx, id); err != nil {
		return err
	}
	logger.Info.Printf("job %s: deleted with %d artifacts", id, len(artifacts))
	return nil
}

func (s *AuditService) appendLog(ctx context.Context, jobID, format string, args ...any) {
	if err := s.deps.Jobs.AppendLog(ctx, jobID, fmt.Sprintf(format, args...)); err != nil {
		logger.Warn.Printf("job %s: append log: %v", jobID, err)
	}
}
