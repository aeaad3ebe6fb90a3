package lesson

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// ResultRepository persists lesson results. Results are immutable.
type ResultRepository interface {
	Create(ctx context.Context, res *scoring.SessionResult) error
	GetBySession(ctx context.Context, sessionID string) (*scoring.SessionResult, error)
	Latest(ctx context.Context) (*scoring.SessionResult, error)
}

// SQLiteResultRepository implements ResultRepository using SQLite.
// Device results are stored as a JSON array.
type SQLiteResultRepository struct {
	db *sql.DB
}

// NewResultRepository creates a SQLite-backed result repository.
func NewResultRepository(db *sql.DB) *SQLiteResultRepository {
	return &SQLiteResultRepository{db: db}
}

const resultColumns = "id, lesson_id, total_devices, total_points, duration_minutes, device_results, created_at"

// Create inserts a result. ID and CreatedAt are filled in if empty.
func (r *SQLiteResultRepository) Create(ctx context.Context, res *scoring.SessionResult) error {
	if res.ID == "" {
		res.ID = "res-" + uuid.NewString()[:8]
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	if res.DeviceResults == nil {
		res.DeviceResults = []scoring.DeviceResult{}
	}

	devices, err := json.Marshal(res.DeviceResults)
	if err != nil {
		return fmt.Errorf("marshalling device results: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO lesson_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.SessionID, res.TotalDevices, res.TotalPoints, res.Duration,
		string(devices), telemetry.FormatTime(res.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: creating result for lesson %s: %w", telemetry.ErrStore, res.SessionID, err)
	}
	return nil
}

// GetBySession returns the result of a lesson.
func (r *SQLiteResultRepository) GetBySession(ctx context.Context, sessionID string) (*scoring.SessionResult, error) {
	return r.getResult(ctx, `SELECT `+resultColumns+` FROM lesson_results WHERE lesson_id = ?`, sessionID)
}

// Latest returns the most recently created result.
func (r *SQLiteResultRepository) Latest(ctx context.Context) (*scoring.SessionResult, error) {
	return r.getResult(ctx, `SELECT `+resultColumns+` FROM lesson_results ORDER BY created_at DESC, rowid DESC LIMIT 1`)
}

func (r *SQLiteResultRepository) getResult(ctx context.Context, query string, args ...any) (*scoring.SessionResult, error) {
	var res scoring.SessionResult
	var devices, createdAt string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&res.ID, &res.SessionID, &res.TotalDevices, &res.TotalPoints, &res.Duration, &devices, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("%w: reading result: %w", telemetry.ErrStore, err)
	}

	if err := json.Unmarshal([]byte(devices), &res.DeviceResults); err != nil {
		return nil, fmt.Errorf("%w: decoding device results of %s: %w", telemetry.ErrStore, res.ID, err)
	}
	if res.CreatedAt, err = telemetry.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("%w: result %s: %w", telemetry.ErrStore, res.ID, err)
	}
	return &res, nil
}
