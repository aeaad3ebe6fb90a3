package ingest

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// CurrentRepository persists the latest reading per device.
type CurrentRepository interface {
	UpsertCurrent(ctx context.Context, r telemetry.Reading) error
	ListCurrent(ctx context.Context) ([]telemetry.Reading, error)
}

// SQLiteCurrentRepository implements CurrentRepository on the
// current_readings table.
type SQLiteCurrentRepository struct {
	db *sql.DB
}

// NewCurrentRepository creates a SQLite-backed current readings repository.
func NewCurrentRepository(db *sql.DB) *SQLiteCurrentRepository {
	return &SQLiteCurrentRepository{db: db}
}

// UpsertCurrent replaces the stored reading for r.DeviceID.
func (r *SQLiteCurrentRepository) UpsertCurrent(ctx context.Context, rd telemetry.Reading) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO current_readings
			(device_id, heart_rate, beat_time, beat_count, manufacturer_id, serial_number, stick, slot, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			heart_rate = excluded.heart_rate,
			beat_time = excluded.beat_time,
			beat_count = excluded.beat_count,
			manufacturer_id = excluded.manufacturer_id,
			serial_number = excluded.serial_number,
			stick = excluded.stick,
			slot = excluded.slot,
			received_at = excluded.received_at`,
		int64(rd.DeviceID), int64(rd.HeartRate), int64(rd.BeatTime), int64(rd.BeatCount),
		nullU16(rd.ManufacturerID), nullU32(rd.SerialNumber),
		int64(rd.Channel.Stick), int64(rd.Channel.Slot),
		telemetry.FormatTime(rd.ReceivedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting current reading for device %d: %w", telemetry.ErrStore, rd.DeviceID, err)
	}
	return nil
}

// ListCurrent returns every stored reading ordered by device id.
func (r *SQLiteCurrentRepository) ListCurrent(ctx context.Context) ([]telemetry.Reading, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_id, heart_rate, beat_time, beat_count, manufacturer_id, serial_number, stick, slot, received_at
		FROM current_readings
		ORDER BY device_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing current readings: %w", telemetry.ErrStore, err)
	}
	defer rows.Close()

	readings := []telemetry.Reading{}
	for rows.Next() {
		rd, err := ScanReading(rows)
		if err != nil {
			return nil, err
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating current readings: %w", telemetry.ErrStore, err)
	}
	return readings, nil
}

// ScanReading scans the column list
// device_id, heart_rate, beat_time, beat_count, manufacturer_id,
// serial_number, stick, slot, received_at.
func ScanReading(rows *sql.Rows) (telemetry.Reading, error) {
	var rd telemetry.Reading
	var deviceID, hr, beatTime, beatCount, stick, slot int64
	var manufacturer, serial sql.NullInt64
	var receivedAt string

	if err := rows.Scan(&deviceID, &hr, &beatTime, &beatCount, &manufacturer, &serial,
		&stick, &slot, &receivedAt); err != nil {
		return rd, fmt.Errorf("%w: scanning reading: %w", telemetry.ErrStore, err)
	}

	at, err := telemetry.ParseTime(receivedAt)
	if err != nil {
		return rd, fmt.Errorf("%w: reading for device %d: %w", telemetry.ErrStore, deviceID, err)
	}

	// #nosec G115 -- columns are written from the same unsigned widths
	rd = telemetry.Reading{
		DeviceID:   uint32(deviceID),
		HeartRate:  uint16(hr),
		BeatTime:   uint16(beatTime),
		BeatCount:  uint8(beatCount),
		Channel:    telemetry.ChannelID{Stick: uint8(stick), Slot: uint8(slot)},
		ReceivedAt: at,
	}
	if manufacturer.Valid {
		v := uint16(manufacturer.Int64) // #nosec G115
		rd.ManufacturerID = &v
	}
	if serial.Valid {
		v := uint32(serial.Int64) // #nosec G115
		rd.SerialNumber = &v
	}
	return rd, nil
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
