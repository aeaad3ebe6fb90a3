package roster

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

// testDB opens a temporary database with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "roster.db"),
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

func newUser(name string, g telemetry.Gender, birthYear int) *User {
	return &User{
		Name:      name,
		Gender:    g,
		BirthDate: time.Date(birthYear, time.June, 15, 0, 0, 0, 0, time.UTC),
		Weight:    70,
		Height:    175,
	}
}
