package lesson

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/database"
	"github.com/nerrad567/pulse-core/internal/telemetry"
	"github.com/nerrad567/pulse-core/migrations"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "lesson.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

func sample(deviceID uint32, hr uint16, at time.Time) telemetry.Reading {
	return telemetry.Reading{
		DeviceID:   deviceID,
		HeartRate:  hr,
		Channel:    telemetry.ChannelID{Stick: 1, Slot: 3},
		ReceivedAt: at,
	}
}
