package lesson

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// SessionRepository persists lessons.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Update(ctx context.Context, s *Session) error
	// FindActive returns the active lesson, or (nil, nil) if there is none.
	FindActive(ctx context.Context) (*Session, error)
	FindLatest(ctx context.Context) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
}

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a SQLite-backed lesson repository.
func NewSessionRepository(db *sql.DB) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{db: db}
}

const sessionColumns = "id, status, started_at, ended_at"

// Create inserts a lesson. The ID is generated if empty. Inserting a second
// ACTIVE lesson violates idx_lessons_single_active and returns
// ErrSessionActive.
func (r *SQLiteSessionRepository) Create(ctx context.Context, s *Session) error {
	if s.ID == "" {
		s.ID = "les-" + uuid.NewString()[:8]
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lessons (`+sessionColumns+`) VALUES (?, ?, ?, ?)`,
		s.ID, string(s.Status), telemetry.FormatTime(s.StartedAt), nullTime(s.EndedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionActive
		}
		return fmt.Errorf("%w: creating lesson: %w", telemetry.ErrStore, err)
	}
	return nil
}

// Update writes the status and end time of an existing lesson.
func (r *SQLiteSessionRepository) Update(ctx context.Context, s *Session) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lessons SET status = ?, ended_at = ? WHERE id = ?`,
		string(s.Status), nullTime(s.EndedAt), s.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSessionActive
		}
		return fmt.Errorf("%w: updating lesson %s: %w", telemetry.ErrStore, s.ID, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// FindActive returns the ACTIVE lesson, or (nil, nil).
func (r *SQLiteSessionRepository) FindActive(ctx context.Context) (*Session, error) {
	s, err := r.getSession(ctx, `SELECT `+sessionColumns+` FROM lessons WHERE status = 'ACTIVE' LIMIT 1`)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, nil
	}
	return s, err
}

// FindLatest returns the most recently started lesson.
func (r *SQLiteSessionRepository) FindLatest(ctx context.Context) (*Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM lessons ORDER BY started_at DESC, rowid DESC LIMIT 1`)
}

// Get returns a lesson by id.
func (r *SQLiteSessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM lessons WHERE id = ?`, id)
}

func (r *SQLiteSessionRepository) getSession(ctx context.Context, query string, args ...any) (*Session, error) {
	var s Session
	var status, startedAt string
	var endedAt sql.NullString

	err := r.db.QueryRowContext(ctx, query, args...).Scan(&s.ID, &status, &startedAt, &endedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: reading lesson: %w", telemetry.ErrStore, err)
	}

	s.Status = Status(status)
	if s.StartedAt, err = telemetry.ParseTime(startedAt); err != nil {
		return nil, fmt.Errorf("%w: lesson %s: %w", telemetry.ErrStore, s.ID, err)
	}
	if endedAt.Valid {
		t, err := telemetry.ParseTime(endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("%w: lesson %s: %w", telemetry.ErrStore, s.ID, err)
		}
		s.EndedAt = &t
	}
	return &s, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: telemetry.FormatTime(*t), Valid: true}
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
