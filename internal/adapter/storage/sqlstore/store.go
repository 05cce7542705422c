package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"

	defaultMaxLogBytes = 256 * 1024
	maxCASAttempts     = 5
)

var errConflict = errors.New("concurrent update conflict")

type Store struct {
	db          *sqlx.DB
	sb          sq.StatementBuilderType
	dialect     string
	now         func() time.Time
	maxLogBytes int
}

type Option func(*Store)

// WithClock overrides the time source used for status timestamps and log lines.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxLogBytes bounds the per-job log.
func WithMaxLogBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxLogBytes = n
		}
	}
}

var hookOnce sync.Once

func registerHook() {
	hookOnce.Do(func() {
		sqlite.RegisterConnectionHook(func(conn sqlite.ExecQuerierContext, dsn string) error {
			pragmas := []string{
				"PRAGMA journal_mode = WAL",
				"PRAGMA busy_timeout = 5000",
				"PRAGMA synchronous = NORMAL",
				"PRAGMA foreign_keys = ON",
			}
			for _, p := range pragmas {
				if _, err := conn.ExecContext(context.Background(), p, nil); err != nil {
					return fmt.Errorf("execute %s: %w", p, err)
				}
			}
			return nil
		})
	})
}

// Open connects to databaseURL and applies migrations. postgres:// and
// postgresql:// URLs use lib/pq; sqlite://path or a bare path use SQLite.
func Open(databaseURL string, opts ...Option) (*Store, error) {
	driver, dsn, dialect := parseDatabaseURL(databaseURL)
	if dialect == dialectSQLite {
		registerHook()
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dialect == dialectSQLite {
		// Single connection for SQLite (WAL allows concurrent reads but only one writer)
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		db:          db,
		sb:          sq.StatementBuilder.PlaceholderFormat(placeholderFor(dialect)),
		dialect:     dialect,
		now:         time.Now,
		maxLogBytes: defaultMaxLogBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func parseDatabaseURL(raw string) (driver, dsn, dialect string) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "postgres", raw, dialectPostgres
	case strings.HasPrefix(raw, "sqlite://"):
		raw = strings.TrimPrefix(raw, "sqlite://")
	}
	// Times are written in the SQLite layout so they compare lexically.
	return "sqlite", raw + "?_time_format=sqlite", dialectSQLite
}

func placeholderFor(dialect string) sq.PlaceholderFormat {
	if dialect == dialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) selectBuilt(ctx context.Context, dest any, b sq.SelectBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
