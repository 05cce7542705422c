package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bnema/tubeaudit/internal/domain"
)

type clientRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Contact   string    `db:"contact"`
	CreatedBy string    `db:"created_by"`
	CreatedAt time.Time `db:"created_at"`
}

// EnsureClient returns the client whose name matches case-insensitively,
// creating it when none exists.
func (s *Store) EnsureClient(ctx context.Context, name, contact, createdBy string) (*domain.Client, error) {
	name = strings.TrimSpace(name)
	if c, err := s.clientByName(ctx, name); err == nil || !errors.Is(err, domain.ErrNotFound) {
		return c, err
	}

	c := &domain.Client{
		ID:        uuid.NewString(),
		Name:      name,
		Contact:   strings.TrimSpace(contact),
		CreatedBy: createdBy,
		CreatedAt: s.clock(),
	}
	_, err := s.exec(ctx, `
		INSERT INTO clients (id, name, contact, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Contact, c.CreatedBy, c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return s.clientByName(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("insert client: %w", err)
	}
	return c, nil
}

func (s *Store) clientByName(ctx context.Context, name string) (*domain.Client, error) {
	var row clientRow
	err := s.get(ctx, &row, `
		SELECT id, name, contact, created_by, created_at FROM clients WHERE LOWER(name) = ?`,
		strings.ToLower(name),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &domain.Client{
		ID:        row.ID,
		Name:      row.Name,
		Contact:   row.Contact,
		CreatedBy: row.CreatedBy,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}
