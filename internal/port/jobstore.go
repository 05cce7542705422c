package port

import (
	"context"
	"time"

	"github.com/bnema/tubeaudit/internal/domain"
)

type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter domain.JobFilter) ([]*domain.Job, error)
	CountByStatus(ctx context.Context, completedSince time.Time) (domain.JobStats, error)

	// ClaimJob moves a queued job to running. It returns
	// domain.ErrAlreadyClaimed when the job has left queued.
	ClaimJob(ctx context.Context, id, progress string) (*domain.Job, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, progress, errMsg string) (*domain.Job, error)
	AppendLog(ctx context.Context, id, text string) error
	RecordChannel(ctx context.Context, id, channelID, channelName string) error
	RecordSummary(ctx context.Context, id string, summary domain.Summary) error
	DeleteJob(ctx context.Context, id string) error

	ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error)
	ListStale(ctx context.Context, startedBefore time.Time) ([]*domain.Job, error)
}

type ArtifactStore interface {
	CreateArtifact(ctx context.Context, a *domain.Artifact) error
	GetArtifact(ctx context.Context, id string) (*domain.Artifact, error)
	GetArtifactByType(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, jobID string) ([]*domain.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error
}

type ClientStore interface {
	EnsureClient(ctx context.Context, name, contact, createdBy string) (*domain.Client, error)
}
