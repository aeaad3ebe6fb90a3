package lesson

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

func TestSessionRepository_Lifecycle(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	if s, err := repo.FindActive(ctx); err != nil || s != nil {
		t.Fatalf("FindActive() on empty store = %v, %v", s, err)
	}
	if _, err := repo.FindLatest(ctx); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("FindLatest() on empty store error = %v", err)
	}

	started := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	s := &Session{Status: StatusActive, StartedAt: started}
	if err := repo.Create(ctx, s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(s.ID, "les-") || len(s.ID) != 12 {
		t.Errorf("ID = %q", s.ID)
	}

	active, err := repo.FindActive(ctx)
	if err != nil || active == nil || active.ID != s.ID {
		t.Fatalf("FindActive() = %+v, %v", active, err)
	}
	if active.EndedAt != nil {
		t.Error("active lesson has EndedAt")
	}

	ended := started.Add(45 * time.Minute)
	s.Status = StatusEnded
	s.EndedAt = &ended
	if err := repo.Update(ctx, s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusEnded || got.EndedAt == nil || !got.EndedAt.Equal(ended) {
		t.Errorf("Get() = %+v", got)
	}
	if got.DurationMinutes(time.Now()) != 45 {
		t.Errorf("DurationMinutes() = %d, want 45", got.DurationMinutes(time.Now()))
	}

	if active, _ := repo.FindActive(ctx); active != nil {
		t.Error("FindActive() returned an ended lesson")
	}
}

func TestSessionRepository_SingleActiveIndex(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &Session{Status: StatusActive}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err := repo.Create(ctx, &Session{Status: StatusActive})
	if !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second active Create() error = %v, want ErrSessionActive", err)
	}
	if !errors.Is(err, telemetry.ErrConflict) {
		t.Error("error should wrap telemetry.ErrConflict")
	}

	// Any number of ended lessons may exist.
	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, &Session{Status: StatusEnded, EndedAt: &now}); err != nil {
			t.Fatalf("ended Create() error = %v", err)
		}
	}
}

func TestSessionRepository_FindLatest(t *testing.T) {
	repo := NewSessionRepository(testDB(t))
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	var last string
	for i := 0; i < 3; i++ {
		end := base.Add(time.Duration(i)*time.Hour + 30*time.Minute)
		s := &Session{Status: StatusEnded, StartedAt: base.Add(time.Duration(i) * time.Hour), EndedAt: &end}
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		last = s.ID
	}

	latest, err := repo.FindLatest(ctx)
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if latest.ID != last {
		t.Errorf("FindLatest() = %s, want %s", latest.ID, last)
	}

	if err := repo.Update(ctx, &Session{ID: "les-missing", Status: StatusEnded}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrSessionNotFound", err)
	}
}

func TestResultRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	sessions := NewSessionRepository(db)
	results := NewResultRepository(db)
	ctx := context.Background()

	s := &Session{Status: StatusActive}
	if err := sessions.Create(ctx, s); err != nil {
		t.Fatalf("Create(session) error = %v", err)
	}

	if _, err := results.GetBySession(ctx, s.ID); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("GetBySession() before create error = %v", err)
	}
	if _, err := results.Latest(ctx); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("Latest() on empty store error = %v", err)
	}

	res := &scoring.SessionResult{
		SessionID:    s.ID,
		TotalDevices: 1,
		DeviceResults: []scoring.DeviceResult{{
			DeviceID: 100, UserID: "usr-1", UserName: "Ana", TotalSamples: 3,
			Zones: scoring.ZoneStats{Zone2: 10, Zone3: 60}, Points: 130, AvgHeartRate: 146,
		}},
		TotalPoints: 130,
		Duration:    45,
	}
	if err := results.Create(ctx, res); err != nil {
		t.Fatalf("Create(result) error = %v", err)
	}
	if !strings.HasPrefix(res.ID, "res-") || res.CreatedAt.IsZero() {
		t.Errorf("Create() did not fill ID/CreatedAt: %+v", res)
	}

	got, err := results.GetBySession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetBySession() error = %v", err)
	}
	if got.ID != res.ID || got.TotalPoints != 130 || got.Duration != 45 || got.TotalDevices != 1 {
		t.Errorf("GetBySession() = %+v", got)
	}
	if len(got.DeviceResults) != 1 || got.DeviceResults[0] != res.DeviceResults[0] {
		t.Errorf("DeviceResults = %+v", got.DeviceResults)
	}

	latest, err := results.Latest(ctx)
	if err != nil || latest.ID != res.ID {
		t.Errorf("Latest() = %+v, %v", latest, err)
	}

	// One result per lesson.
	if err := results.Create(ctx, &scoring.SessionResult{SessionID: s.ID}); !errors.Is(err, telemetry.ErrStore) {
		t.Errorf("duplicate Create() error = %v, want ErrStore", err)
	}
}

func TestSampleRepository_AppendReadClear(t *testing.T) {
	repo := NewSampleRepository(testDB(t))
	ctx := context.Background()
	t0 := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

	// Appended out of order; read back sorted by receive time.
	for _, r := range []telemetry.Reading{
		sample(100, 90, t0.Add(70*time.Second)),
		sample(100, 120, t0),
		sample(200, 80, t0.Add(500*time.Millisecond)),
		sample(100, 150, t0.Add(10*time.Second)),
	} {
		if err := repo.AppendSample(ctx, "les-a", r); err != nil {
			t.Fatalf("AppendSample() error = %v", err)
		}
	}
	if err := repo.AppendSample(ctx, "les-b", sample(100, 60, t0)); err != nil {
		t.Fatalf("AppendSample() error = %v", err)
	}

	got, err := repo.ReadSamples(ctx, "les-a")
	if err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}
	want := []uint16{120, 80, 150, 90}
	if len(got) != len(want) {
		t.Fatalf("ReadSamples() = %d readings, want %d", len(got), len(want))
	}
	for i, hr := range want {
		if got[i].HeartRate != hr {
			t.Errorf("reading %d heart rate = %d, want %d", i, got[i].HeartRate, hr)
		}
	}
	if !got[1].ReceivedAt.Equal(t0.Add(500 * time.Millisecond)) {
		t.Errorf("sub-second timestamp lost: %v", got[1].ReceivedAt)
	}

	if err := repo.ClearSamples(ctx); err != nil {
		t.Fatalf("ClearSamples() error = %v", err)
	}
	for _, id := range []string{"les-a", "les-b"} {
		got, err := repo.ReadSamples(ctx, id)
		if err != nil || len(got) != 0 {
			t.Errorf("ReadSamples(%s) after clear = %d, %v", id, len(got), err)
		}
	}
}

func TestSampleRepository_AppendFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_samples")).
		WillReturnError(errors.New("database is locked"))

	repo := NewSampleRepository(db)
	err = repo.AppendSample(context.Background(), "les-x", sample(1, 100, time.Now()))
	if !errors.Is(err, telemetry.ErrStore) {
		t.Fatalf("AppendSample() error = %v, want ErrStore", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestResultRepository_WriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lesson_results")).
		WithArgs(sqlmock.AnyArg(), "les-x", 0, int64(0), 0, "[]", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	repo := NewResultRepository(db)
	err = repo.Create(context.Background(), &scoring.SessionResult{SessionID: "les-x"})
	if !errors.Is(err, telemetry.ErrStore) {
		t.Fatalf("Create() error = %v, want ErrStore", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_UpdateFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE lessons SET status = ?, ended_at = ? WHERE id = ?")).
		WithArgs("ENDED", sqlmock.AnyArg(), "les-x").
		WillReturnError(errors.New("disk I/O error"))

	repo := NewSessionRepository(db)
	now := time.Now()
	err = repo.Update(context.Background(), &Session{ID: "les-x", Status: StatusEnded, EndedAt: &now})
	if !errors.Is(err, telemetry.ErrStore) {
		t.Fatalf("Update() error = %v, want ErrStore", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
