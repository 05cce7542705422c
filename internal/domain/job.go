package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type CrawlMode string

const (
	CrawlModeAll     CrawlMode = "all"
	CrawlModeLimited CrawlMode = "limited"
)

const (
	DefaultLimitedVideos = 50
	MaxVideosOverride    = 5000
)

// Progress labels shown while a job moves through the pipeline.
const (
	ProgressQueued    = "Queued"
	ProgressCompleted = "Completed"
	ProgressFailed    = "Failed"
)

type Summary struct {
	HealthScore    *int `json:"health_score"`
	HighPriority   *int `json:"high_priority"`
	MediumPriority *int `json:"medium_priority"`
	LowPriority    *int `json:"low_priority"`
	VideosAnalyzed *int `json:"videos_analyzed"`
}

func (s Summary) Complete() bool {
	return s.HealthScore != nil && s.HighPriority != nil && s.MediumPriority != nil &&
		s.LowPriority != nil && s.VideosAnalyzed != nil
}

type Job struct {
	ID                string
	ClientID          string
	ClientName        string
	RequestedBy       string
	ChannelURL        string
	ChannelID         string
	ChannelName       string
	CrawlMode         CrawlMode
	MaxVideosOverride *int
	Status            JobStatus
	ProgressStep      string
	ErrorMessage      string
	Notes             string
	LogText           string
	Summary           Summary
	CreatedAt         time.Time
	StartedAt         *time.Time
	FinishedAt        *time.Time
	ExpiresAt         time.Time
	Version           int64
}

// CreateAuditRequest is the user-facing submission.
type CreateAuditRequest struct {
	ClientName    string
	ClientContact string
	RequestedBy   string
	ChannelURL    string
	CrawlMode     CrawlMode
	MaxVideos     *int
	Notes         string
}

// NewJob validates req and builds a queued job that expires retentionDays
// after now. The client must already be resolved to clientID.
func NewJob(req CreateAuditRequest, clientID string, retentionDays int, now time.Time) (*Job, error) {
	if strings.TrimSpace(req.ClientName) == "" {
		return nil, &ValidationError{Field: "client_name", Message: "is required"}
	}

	channelURL, err := ValidateChannelURL(req.ChannelURL)
	if err != nil {
		return nil, err
	}

	mode := req.CrawlMode
	if mode == "" {
		mode = CrawlModeAll
	}

	var override *int
	switch mode {
	case CrawlModeAll:
	case CrawlModeLimited:
		n := DefaultLimitedVideos
		if req.MaxVideos != nil {
			n = *req.MaxVideos
		}
		if n < 1 || n > MaxVideosOverride {
			return nil, &ValidationError{
				Field:   "max_videos",
				Message: fmt.Sprintf("must be between 1 and %d", MaxVideosOverride),
			}
		}
		override = &n
	default:
		return nil, &ValidationError{Field: "crawl_mode", Message: "must be all or limited"}
	}

	if retentionDays < 1 {
		return nil, fmt.Errorf("retention window must be at least one day, got %d", retentionDays)
	}

	now = now.UTC()
	return &Job{
		ID:                uuid.NewString(),
		ClientID:          clientID,
		ClientName:        strings.TrimSpace(req.ClientName),
		RequestedBy:       req.RequestedBy,
		ChannelURL:        channelURL,
		CrawlMode:         mode,
		MaxVideosOverride: override,
		Status:            JobStatusQueued,
		ProgressStep:      ProgressQueued,
		Notes:             strings.TrimSpace(req.Notes),
		CreatedAt:         now,
		ExpiresAt:         now.AddDate(0, 0, retentionDays),
	}, nil
}

// CanTransition reports whether a job may move from one status to another.
// Running to running is a progress update.
func CanTransition(from, to JobStatus) bool {
	switch from {
	case JobStatusQueued:
		return to == JobStatusQueued || to == JobStatusRunning || to == JobStatusFailed
	case JobStatusRunning:
		return to == JobStatusRunning || to == JobStatusCompleted || to == JobStatusFailed
	}
	return false
}

// Transition applies a status change in memory, keeping the timestamp
// invariants: started_at is set once the job leaves queued and finished_at
// once it becomes terminal.
func (j *Job) Transition(to JobStatus, progress, errMsg string, now time.Time) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !CanTransition(j.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
	}

	now = now.UTC()
	if to != JobStatusQueued && j.StartedAt == nil {
		j.StartedAt = &now
	}
	if to.IsTerminal() {
		j.FinishedAt = &now
	}
	if to == JobStatusFailed {
		j.ErrorMessage = errMsg
	}

	j.Status = to
	j.ProgressStep = progress
	return nil
}

func (j *Job) IsExpired(now time.Time) bool {
	return !now.Before(j.ExpiresAt)
}

// MaxVideos resolves the crawl cap for this job, falling back to the
// configured default when the job is not limited.
func (j *Job) MaxVideos(configured int) int {
	if j.CrawlMode == CrawlModeLimited && j.MaxVideosOverride != nil {
		return *j.MaxVideosOverride
	}
	return configured
}

type JobFilter struct {
	Status      JobStatus
	Client      string
	Query       string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

const (
	DefaultListLimit = 200
	MaxListLimit     = 500
)

func (f JobFilter) EffectiveLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}

// JobStats are the dashboard counters.
type JobStats struct {
	Queued          int `json:"queued"`
	Running         int `json:"running"`
	Failed          int `json:"failed"`
	CompletedRecent int `json:"completed_recent"`
}
