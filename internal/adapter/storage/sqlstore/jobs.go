package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/port"
)

var jobColumns = []string{
	"j.id", "j.client_id", "COALESCE(c.name, '') AS client_name", "j.requested_by",
	"j.channel_url", "j.channel_id", "j.channel_name", "j.crawl_mode", "j.max_videos_override",
	"j.status", "j.progress_step", "j.error_message", "j.notes", "j.log_text",
	"j.summary_health_score", "j.summary_high_priority", "j.summary_medium_priority",
	"j.summary_low_priority", "j.videos_analyzed",
	"j.created_at", "j.started_at", "j.finished_at", "j.expires_at", "j.version",
}

type jobRow struct {
	ID                string         `db:"id"`
	ClientID          string         `db:"client_id"`
	ClientName        string         `db:"client_name"`
	RequestedBy       string         `db:"requested_by"`
	ChannelURL        string         `db:"channel_url"`
	ChannelID         string         `db:"channel_id"`
	ChannelName       string         `db:"channel_name"`
	CrawlMode         string         `db:"crawl_mode"`
	MaxVideosOverride sql.NullInt64  `db:"max_videos_override"`
	Status            string         `db:"status"`
	ProgressStep      string         `db:"progress_step"`
	ErrorMessage      string         `db:"error_message"`
	Notes             string         `db:"notes"`
	LogText           string         `db:"log_text"`
	HealthScore       sql.NullInt64  `db:"summary_health_score"`
	HighPriority      sql.NullInt64  `db:"summary_high_priority"`
	MediumPriority    sql.NullInt64  `db:"summary_medium_priority"`
	LowPriority       sql.NullInt64  `db:"summary_low_priority"`
	VideosAnalyzed    sql.NullInt64  `db:"videos_analyzed"`
	CreatedAt         time.Time      `db:"created_at"`
	StartedAt         sql.NullTime   `db:"started_at"`
	FinishedAt        sql.NullTime   `db:"finished_at"`
	ExpiresAt         time.Time      `db:"expires_at"`
	Version           int64          `db:"version"`
}

func (s *Store) jobSelect() sq.SelectBuilder {
	return s.sb.Select(jobColumns...).
		From("audit_jobs j").
		LeftJoin("clients c ON c.id = j.client_id")
}

func (s *Store) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := s.exec(ctx, `
		INSERT INTO audit_jobs (
			id, client_id, requested_by, channel_url, channel_id, channel_name, crawl_mode,
			max_videos_override, status, progress_step, error_message, notes, log_text,
			created_at, started_at, finished_at, expires_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		job.ID, job.ClientID, job.RequestedBy, job.ChannelURL, job.ChannelID, job.ChannelName,
		string(job.CrawlMode), nullInt(job.MaxVideosOverride), string(job.Status), job.ProgressStep,
		job.ErrorMessage, job.Notes, job.LogText,
		job.CreatedAt.UTC(), nullTime(job.StartedAt), nullTime(job.FinishedAt), job.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Version = 0
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*domain.Job, error) {
	query, args, err := s.jobSelect().Where(sq.Eq{"j.id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return jobFromRow(row), nil
}

func (s *Store) ListJobs(ctx context.Context, f domain.JobFilter) ([]*domain.Job, error) {
	b := s.jobSelect().
		OrderBy("j.created_at DESC", "j.id DESC").
		Limit(uint64(f.EffectiveLimit()))
	if f.Offset > 0 {
		b = b.Offset(uint64(f.Offset))
	}

	if f.Status != "" {
		b = b.Where(sq.Eq{"j.status": string(f.Status)})
	}
	if client := strings.TrimSpace(f.Client); client != "" {
		b = b.Where(sq.Like{"LOWER(c.name)": likePattern(client)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := likePattern(q)
		b = b.Where(sq.Or{
			sq.Like{"LOWER(j.channel_url)": like},
			sq.Like{"LOWER(j.channel_name)": like},
			sq.Like{"LOWER(c.name)": like},
		})
	}
	if f.CreatedFrom != nil {
		b = b.Where(sq.GtOrEq{"j.created_at": f.CreatedFrom.UTC()})
	}
	if f.CreatedTo != nil {
		b = b.Where(sq.Lt{"j.created_at": f.CreatedTo.UTC()})
	}

	var rows []jobRow
	if err := s.selectBuilt(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func (s *Store) CountByStatus(ctx context.Context, completedSince time.Time) (domain.JobStats, error) {
	var stats domain.JobStats

	query, args, err := s.sb.Select("status", "COUNT(*) AS n").
		From("audit_jobs").
		Where(sq.Eq{"status": []string{
			string(domain.JobStatusQueued),
			string(domain.JobStatusRunning),
			string(domain.JobStatusFailed),
		}}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build query: %w", err)
	}

	var counts []struct {
		Status string `db:"status"`
		N      int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return stats, fmt.Errorf("count jobs: %w", err)
	}
	for _, c := range counts {
		switch domain.JobStatus(c.Status) {
		case domain.JobStatusQueued:
			stats.Queued = c.N
		case domain.JobStatusRunning:
			stats.Running = c.N
		case domain.JobStatusFailed:
			stats.Failed = c.N
		}
	}

	query, args, err = s.sb.Select("COUNT(*)").
		From("audit_jobs").
		Where(sq.Eq{"status": string(domain.JobStatusCompleted)}).
		Where(sq.GtOrEq{"finished_at": completedSince.UTC()}).
		ToSql()
	if err != nil {
		return stats, fmt.Errorf("build query: %w", err)
	}
	if err := s.db.GetContext(ctx, &stats.CompletedRecent, query, args...); err != nil {
		return stats, fmt.Errorf("count completed jobs: %w", err)
	}
	return stats, nil
}

func (s *Store) ClaimJob(ctx context.Context, id, progress string) (*domain.Job, error) {
	n, err := s.exec(ctx, `
		UPDATE audit_jobs
		SET status = ?, progress_step = ?, started_at = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(domain.JobStatusRunning), progress, s.clock(), id, string(domain.JobStatusQueued),
	)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return job, domain.ErrAlreadyClaimed
	}
	return job, nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, progress, errMsg string) (*domain.Job, error) {
	for range maxCASAttempts {
		job, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := job.Transition(status, progress, errMsg, s.clock()); err != nil {
			return nil, err
		}

		n, err := s.exec(ctx, `
			UPDATE audit_jobs
			SET status = ?, progress_step = ?, error_message = ?, started_at = ?, finished_at = ?,
			    version = version + 1
			WHERE id = ? AND version = ?`,
			string(job.Status), job.ProgressStep, job.ErrorMessage,
			nullTime(job.StartedAt), nullTime(job.FinishedAt), id, job.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("update job status: %w", err)
		}
		if n == 1 {
			job.Version++
			return job, nil
		}
	}
	return nil, fmt.Errorf("update job %s status: %w", id, errConflict)
}

func (s *Store) AppendLog(ctx context.Context, id, text string) error {
	line := domain.FormatLogLine(s.clock(), text)

	for range maxCASAttempts {
		var cur struct {
			LogText string `db:"log_text"`
			Version int64  `db:"version"`
		}
		err := s.get(ctx, &cur, `SELECT log_text, version FROM audit_jobs WHERE id = ?`, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrNotFound
			}
			return fmt.Errorf("read job log: %w", err)
		}

		next := domain.AppendLog(cur.LogText, line, s.maxLogBytes)
		n, err := s.exec(ctx, `
			UPDATE audit_jobs SET log_text = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			next, id, cur.Version,
		)
		if err != nil {
			return fmt.Errorf("append job log: %w", err)
		}
		if n == 1 {
			return nil
		}
	}
	return fmt.Errorf("append log for job %s: %w", id, errConflict)
}

func (s *Store) RecordChannel(ctx context.Context, id, channelID, channelName string) error {
	n, err := s.exec(ctx, `
		UPDATE audit_jobs SET channel_id = ?, channel_name = ?, version = version + 1
		WHERE id = ?`,
		channelID, channelName, id,
	)
	if err != nil {
		return fmt.Errorf("record channel: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) RecordSummary(ctx context.Context, id string, m domain.Summary) error {
	n, err := s.exec(ctx, `
		UPDATE audit_jobs
		SET summary_health_score = ?, summary_high_priority = ?, summary_medium_priority = ?,
		    summary_low_priority = ?, videos_analyzed = ?, version = version + 1
		WHERE id = ? AND summary_health_score IS NULL`,
		nullInt(m.HealthScore), nullInt(m.HighPriority), nullInt(m.MediumPriority),
		nullInt(m.LowPriority), nullInt(m.VideosAnalyzed), id,
	)
	if err != nil {
		return fmt.Errorf("record summary: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetJob(ctx, id); err != nil {
		return err
	}
	return domain.ErrSummaryRecorded
}

func (s *Store) DeleteJob(ctx context.Context, id string) error {
	n, err := s.exec(ctx, `DELETE FROM audit_jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	b := s.jobSelect().
		Where(sq.LtOrEq{"j.expires_at": now.UTC()}).
		Where(sq.NotEq{"j.status": string(domain.JobStatusRunning)}).
		OrderBy("j.expires_at ASC")

	var rows []jobRow
	if err := s.selectBuilt(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list expired jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func (s *Store) ListStale(ctx context.Context, startedBefore time.Time) ([]*domain.Job, error) {
	b := s.jobSelect().
		Where(sq.Eq{"j.status": string(domain.JobStatusRunning)}).
		Where(sq.Lt{"j.started_at": startedBefore.UTC()}).
		OrderBy("j.started_at ASC")

	var rows []jobRow
	if err := s.selectBuilt(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return jobsFromRows(rows), nil
}

func likePattern(s string) string {
	return "%" + strings.ToLower(s) + "%"
}

func jobFromRow(row jobRow) *domain.Job {
	return &domain.Job{
		ID:                row.ID,
		ClientID:          row.ClientID,
		ClientName:        row.ClientName,
		RequestedBy:       row.RequestedBy,
		ChannelURL:        row.ChannelURL,
		ChannelID:         row.ChannelID,
		ChannelName:       row.ChannelName,
		CrawlMode:         domain.CrawlMode(row.CrawlMode),
		MaxVideosOverride: intPtr(row.MaxVideosOverride),
		Status:            domain.JobStatus(row.Status),
		ProgressStep:      row.ProgressStep,
		ErrorMessage:      row.ErrorMessage,
		Notes:             row.Notes,
		LogText:           row.LogText,
		Summary: domain.Summary{
			HealthScore:    intPtr(row.HealthScore),
			HighPriority:   intPtr(row.HighPriority),
			MediumPriority: intPtr(row.MediumPriority),
			LowPriority:    intPtr(row.LowPriority),
			VideosAnalyzed: intPtr(row.VideosAnalyzed),
		},
		CreatedAt:  row.CreatedAt.UTC(),
		StartedAt:  timePtr(row.StartedAt),
		FinishedAt: timePtr(row.FinishedAt),
		ExpiresAt:  row.ExpiresAt.UTC(),
		Version:    row.Version,
	}
}

func jobsFromRows(rows []jobRow) []*domain.Job {
	result := make([]*domain.Job, len(rows))
	for i, row := range rows {
		result[i] = jobFromRow(row)
	}
	return result
}

var (
	_ port.JobStore      = (*Store)(nil)
	_ port.ArtifactStore = (*Store)(nil)
	_ port.ClientStore   = (*Store)(nil)
	_ port.UserStore     = (*Store)(nil)
)
