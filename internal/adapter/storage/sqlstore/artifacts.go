package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/bnema/tubeaudit/internal/domain"
)

type artifactRow struct {
	ID        string    `db:"id"`
	JobID     string    `db:"job_id"`
	Type      string    `db:"artifact_type"`
	Location  string    `db:"location"`
	SizeBytes int64     `db:"size_bytes"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) artifactSelect() sq.SelectBuilder {
	return s.sb.Select("id", "job_id", "artifact_type", "location", "size_bytes", "created_at").
		From("audit_artifacts")
}

func (s *Store) CreateArtifact(ctx context.Context, a *domain.Artifact) error {
	_, err := s.exec(ctx, `
		INSERT INTO audit_artifacts (id, job_id, artifact_type, location, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.JobID, string(a.Type), a.Location, a.SizeBytes, a.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, id string) (*domain.Artifact, error) {
	return s.getArtifact(ctx, s.artifactSelect().Where(sq.Eq{"id": id}))
}

func (s *Store) GetArtifactByType(ctx context.Context, jobID string, t domain.ArtifactType) (*domain.Artifact, error) {
	return s.getArtifact(ctx, s.artifactSelect().
		Where(sq.Eq{"job_id": jobID, "artifact_type": string(t)}).
		OrderBy("created_at DESC").
		Limit(1))
}

func (s *Store) getArtifact(ctx context.Context, b sq.SelectBuilder) (*domain.Artifact, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row artifactRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return artifactFromRow(row), nil
}

func (s *Store) ListArtifacts(ctx context.Context, jobID string) ([]*domain.Artifact, error) {
	var rows []artifactRow
	b := s.artifactSelect().Where(sq.Eq{"job_id": jobID}).OrderBy("created_at ASC", "id ASC")
	if err := s.selectBuilt(ctx, &rows, b); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	result := make([]*domain.Artifact, len(rows))
	for i, row := range rows {
		result[i] = artifactFromRow(row)
	}
	return result, nil
}

func (s *Store) DeleteArtifact(ctx context.Context, id string) error {
	n, err := s.exec(ctx, `DELETE FROM audit_artifacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func artifactFromRow(row artifactRow) *domain.Artifact {
	return &domain.Artifact{
		ID:        row.ID,
		JobID:     row.JobID,
		Type:      domain.ArtifactType(row.Type),
		Location:  row.Location,
		SizeBytes: row.SizeBytes,
		CreatedAt: row.CreatedAt.UTC(),
	}
}
