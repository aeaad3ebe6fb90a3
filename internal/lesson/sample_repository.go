package lesson

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/pulse-core/internal/ingest"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// SampleRepository stores the heart-rate history of lessons.
type SampleRepository interface {
	AppendSample(ctx context.Context, sessionID string, r telemetry.Reading) error
	// ReadSamples returns a lesson's history ordered by received_at.
	ReadSamples(ctx context.Context, sessionID string) ([]telemetry.Reading, error)
	// ClearSamples removes the history of every lesson.
	ClearSamples(ctx context.Context) error
}

// SQLiteSampleRepository implements SampleRepository on lesson_samples.
type SQLiteSampleRepository struct {
	db *sql.DB
}

// NewSampleRepository creates a SQLite-backed sample repository.
func NewSampleRepository(db *sql.DB) *SQLiteSampleRepository {
	return &SQLiteSampleRepository{db: db}
}

// AppendSample inserts one reading under sessionID.
func (r *SQLiteSampleRepository) AppendSample(ctx context.Context, sessionID string, rd telemetry.Reading) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lesson_samples
			(lesson_id, device_id, heart_rate, beat_time, beat_count, manufacturer_id, serial_number, stick, slot, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, int64(rd.DeviceID), int64(rd.HeartRate), int64(rd.BeatTime), int64(rd.BeatCount),
		nullU16(rd.ManufacturerID), nullU32(rd.SerialNumber),
		int64(rd.Channel.Stick), int64(rd.Channel.Slot),
		telemetry.FormatTime(rd.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: appending sample for device %d: %w", telemetry.ErrStore, rd.DeviceID, err)
	}
	return nil
}

// ReadSamples returns every reading appended under sessionID, oldest first.
func (r *SQLiteSampleRepository) ReadSamples(ctx context.Context, sessionID string) ([]telemetry.Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, heart_rate, beat_time, beat_count, manufacturer_id, serial_number, stick, slot, received_at
		FROM lesson_samples
		WHERE lesson_id = ?
		ORDER BY received_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: reading samples of %s: %w", telemetry.ErrStore, sessionID, err)
	}
	defer rows.Close()

	readings := []telemetry.Reading{}
	for rows.Next() {
		rd, err := ingest.ScanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating samples of %s: %w", telemetry.ErrStore, sessionID, err)
	}
	return readings, nil
}

// ClearSamples deletes all history.
func (r *SQLiteSampleRepository) ClearSamples(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM lesson_samples"); err != nil {
		return fmt.Errorf("%w: clearing samples: %w", telemetry.ErrStore, err)
	}
	return nil
}

func nullU16(v *uint16) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullU32(v *uint32) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
