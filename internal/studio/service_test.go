package studio

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/database"
	"github.com/nerrad567/pulse-core/internal/ingest"
	"github.com/nerrad567/pulse-core/internal/lesson"
	"github.com/nerrad567/pulse-core/internal/roster"
	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
	"github.com/nerrad567/pulse-core/migrations"
)

var t0 = time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)

type testEnv struct {
	svc      *Service
	pipeline *ingest.Pipeline
	current  *ingest.SQLiteCurrentRepository
	registry *roster.Registry
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{
		Path:        filepath.Join(t.TempDir(), "studio.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}

	env := &testEnv{
		current:  ingest.NewCurrentRepository(db.DB),
		registry: roster.NewRegistry(roster.NewRepository(db.DB)),
		now:      t0,
	}
	clock := func() time.Time { return env.now }

	sessions := lesson.NewSessionRepository(db.DB)
	results := lesson.NewResultRepository(db.DB)
	samples := lesson.NewSampleRepository(db.DB)

	env.pipeline = ingest.NewPipeline(ingest.Options{
		Identities: env.registry,
		History:    samples,
	})
	gate := lesson.NewGate(lesson.GateOptions{
		Sessions: sessions,
		Results:  results,
		Samples:  samples,
		Links:    env.registry,
		Engine:   scoring.NewEngine(scoring.DefaultPolicy()),
		Drainer:  env.pipeline,
		Cache:    env.pipeline.Cache(),
		Now:      clock,
	})
	env.pipeline.SetSessionState(gate)
	env.pipeline.Start(ctx)
	t.Cleanup(env.pipeline.Stop)

	env.svc, err = New(Deps{
		Cache:    env.pipeline.Cache(),
		Current:  env.current,
		Gate:     gate,
		Sessions: sessions,
		Results:  results,
		Roster:   env.registry,
		Now:      clock,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return env
}

func (e *testEnv) createUser(t *testing.T, name string) *roster.User {
	t.Helper()
	u := &roster.User{
		Name:      name,
		Gender:    telemetry.GenderMale,
		BirthDate: time.Date(1995, time.June, 15, 0, 0, 0, 0, time.UTC), // fcMax 187 in 2026
		Weight:    80,
		Height:    180,
	}
	if err := e.svc.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return u
}

func reading(deviceID uint32, hr uint16, at time.Time) telemetry.Reading {
	return telemetry.Reading{
		DeviceID:   deviceID,
		HeartRate:  hr,
		Channel:    telemetry.ChannelID{Stick: 1, Slot: 2},
		ReceivedAt: at,
	}
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New(Deps{}) expected error")
	}
}

func TestService_Cache(t *testing.T) {
	env := newTestEnv(t)
	u := env.createUser(t, "Ana")
	if _, err := env.svc.LinkDevice(context.Background(), u.ID, 7); err != nil {
		t.Fatalf("LinkDevice() error = %v", err)
	}

	env.pipeline.Forward(reading(9, 100, t0))
	env.pipeline.Forward(reading(7, 140, t0))
	env.pipeline.Forward(reading(7, 141, t0.Add(time.Second)))

	all := env.svc.GetAllCached()
	if len(all) != 2 || all[0].Reading.DeviceID != 7 || all[1].Reading.DeviceID != 9 {
		t.Fatalf("GetAllCached() = %+v", all)
	}

	e, err := env.svc.GetCachedByDevice(7)
	if err != nil {
		t.Fatalf("GetCachedByDevice() error = %v", err)
	}
	if e.Reading.HeartRate != 141 || e.Identity == nil || e.Identity.UserID != u.ID || e.Zones == nil {
		t.Errorf("entry = %+v", e)
	}
	if e.Zones.Zone5.Max != 187 {
		t.Errorf("Zone5.Max = %d, want 187", e.Zones.Zone5.Max)
	}

	if _, err := env.svc.GetCachedByDevice(404); !errors.Is(err, telemetry.ErrNotFound) {
		t.Errorf("GetCachedByDevice(404) error = %v, want NotFound", err)
	}
}

func TestService_ListAvailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Ben")
	if _, err := env.svc.LinkDevice(ctx, u.ID, 21); err != nil {
		t.Fatalf("LinkDevice() error = %v", err)
	}

	for _, r := range []telemetry.Reading{reading(22, 90, t0), reading(21, 130, t0)} {
		if err := env.current.UpsertCurrent(ctx, r); err != nil {
			t.Fatalf("UpsertCurrent() error = %v", err)
		}
	}

	got, err := env.svc.ListAvailable(ctx)
	if err != nil {
		t.Fatalf("ListAvailable() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListAvailable() len = %d, want 2", len(got))
	}
	if got[0].Reading.DeviceID != 21 || got[0].Identity == nil || got[0].Identity.Name != "Ben" || got[0].Zones == nil {
		t.Errorf("linked device = %+v", got[0])
	}
	if got[1].Identity != nil || got[1].Zones != nil {
		t.Errorf("unlinked device = %+v", got[1])
	}
}

func TestService_SessionLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	st, err := env.svc.GetSessionStatus(ctx)
	if err != nil {
		t.Fatalf("GetSessionStatus() error = %v", err)
	}
	if st.Session != nil || st.Active {
		t.Errorf("status before any lesson = %+v", st)
	}
	if _, err := env.svc.EndSession(ctx); !errors.Is(err, lesson.ErrNoActiveSession) {
		t.Errorf("EndSession() while idle error = %v", err)
	}

	s, err := env.svc.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if _, err := env.svc.StartSession(ctx); !errors.Is(err, telemetry.ErrConflict) {
		t.Errorf("second StartSession() error = %v, want Conflict", err)
	}

	u := env.createUser(t, "Cy")
	if _, err := env.svc.LinkDevice(ctx, u.ID, 100); err != nil {
		t.Fatalf("LinkDevice() error = %v", err)
	}
	env.pipeline.Forward(reading(100, 120, t0))
	env.pipeline.Forward(reading(100, 150, t0.Add(10*time.Second)))
	env.pipeline.Forward(reading(100, 90, t0.Add(70*time.Second)))

	env.now = t0.Add(12*time.Minute + 10*time.Second)
	st, err = env.svc.GetSessionStatus(ctx)
	if err != nil {
		t.Fatalf("GetSessionStatus() error = %v", err)
	}
	if !st.Active || st.Session.ID != s.ID || st.DurationMinutes != 12 {
		t.Errorf("active status = %+v", st)
	}

	env.now = t0.Add(45 * time.Minute)
	res, err := env.svc.EndSession(ctx)
	if err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}
	if res.TotalDevices != 1 || res.TotalPoints != 190 || res.Duration != 45 {
		t.Errorf("result = %+v", res)
	}

	env.now = t0.Add(2 * time.Hour)
	st, err = env.svc.GetSessionStatus(ctx)
	if err != nil {
		t.Fatalf("GetSessionStatus() error = %v", err)
	}
	if st.Active || st.Session.Status != lesson.StatusEnded || st.DurationMinutes != 45 {
		t.Errorf("ended status = %+v", st)
	}

	byID, err := env.svc.GetSessionResult(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSessionResult() error = %v", err)
	}
	latest, err := env.svc.GetLatestResult(ctx)
	if err != nil {
		t.Fatalf("GetLatestResult() error = %v", err)
	}
	if byID.ID != res.ID || latest.ID != res.ID {
		t.Errorf("result ids = %q, %q; want %q", byID.ID, latest.ID, res.ID)
	}
	if _, err := env.svc.GetSessionResult(ctx, "les-missing"); !errors.Is(err, telemetry.ErrNotFound) {
		t.Errorf("GetSessionResult(missing) error = %v, want NotFound", err)
	}

	// Ending clears the live cache and the links.
	if len(env.svc.GetAllCached()) != 0 {
		t.Error("cache not cleared after EndSession")
	}
	linked, err := env.svc.ListLinked(ctx)
	if err != nil {
		t.Fatalf("ListLinked() error = %v", err)
	}
	if len(linked) != 0 {
		t.Errorf("links after EndSession = %d, want 0", len(linked))
	}
}

func TestService_Links(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.createUser(t, "Di")

	if _, err := env.svc.LinkDevice(ctx, u.ID, 0); !errors.Is(err, telemetry.ErrInvalid) {
		t.Errorf("LinkDevice(0) error = %v, want Invalid", err)
	}
	if _, err := env.svc.LinkDevice(ctx, "usr-missing", 5); !errors.Is(err, roster.ErrUserNotFound) {
		t.Errorf("LinkDevice(unknown user) error = %v, want ErrUserNotFound", err)
	}

	link, err := env.svc.LinkDevice(ctx, u.ID, 5)
	if err != nil {
		t.Fatalf("LinkDevice() error = %v", err)
	}
	if link.DeviceID != 5 || link.UserID != u.ID {
		t.Errorf("link = %+v", link)
	}

	linked, err := env.svc.ListLinked(ctx)
	if err != nil {
		t.Fatalf("ListLinked() error = %v", err)
	}
	if len(linked) != 1 || linked[0].DeviceID != 5 || linked[0].User.ID != u.ID {
		t.Fatalf("ListLinked() = %+v", linked)
	}
	want := scoring.ComputeZoneRanges(187)
	if linked[0].Zones == nil || *linked[0].Zones != want {
		t.Errorf("zones = %+v, want %+v", linked[0].Zones, want)
	}

	if err := env.svc.UnlinkDevice(ctx, 5); err != nil {
		t.Fatalf("UnlinkDevice() error = %v", err)
	}
	if err := env.svc.UnlinkDevice(ctx, 5); !errors.Is(err, roster.ErrLinkNotFound) {
		t.Errorf("second UnlinkDevice() error = %v, want ErrLinkNotFound", err)
	}
}

func TestService_Users(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "Zed")
	env.createUser(t, "Amy")

	if err := env.svc.CreateUser(ctx, &roster.User{Name: ""}); !errors.Is(err, telemetry.ErrInvalid) {
		t.Errorf("CreateUser(invalid) error = %v, want Invalid", err)
	}

	users, err := env.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers() error = %v", err)
	}
	if len(users) != 2 || users[0].Name != "Amy" || users[1].Name != "Zed" {
		t.Errorf("ListUsers() = %+v", users)
	}
}
