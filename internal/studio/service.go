package studio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nerrad567/pulse-core/internal/ingest"
	"github.com/nerrad567/pulse-core/internal/lesson"
	"github.com/nerrad567/pulse-core/internal/roster"
	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// CacheReader reads the live cache. *ingest.Cache satisfies it.
type CacheReader interface {
	Get(deviceID uint32) (ingest.CacheEntry, bool)
	All() []ingest.CacheEntry
}

// CurrentLister lists the persisted latest readings. *ingest.SQLiteCurrentRepository satisfies it.
type CurrentLister interface {
	ListCurrent(ctx context.Context) ([]telemetry.Reading, error)
}

// SessionController starts and ends lessons. *lesson.Gate satisfies it.
type SessionController interface {
	Start(ctx context.Context) (*lesson.Session, error)
	End(ctx context.Context) (*scoring.SessionResult, error)
	Active() *lesson.Session
}

// Roster manages users and device links. *roster.Registry satisfies it.
type Roster interface {
	Lookup(deviceID uint32) (*telemetry.Identity, bool)
	Link(ctx context.Context, deviceID uint32, userID string) (*roster.DeviceLink, error)
	Unlink(ctx context.Context, deviceID uint32) error
	ListLinks(ctx context.Context) ([]roster.LinkedUser, error)
	CreateUser(ctx context.Context, u *roster.User) error
	ListUsers(ctx context.Context) ([]roster.User, error)
}

// Deps holds the collaborators of a Service. All but Now are required.
type Deps struct {
	Cache    CacheReader
	Current  CurrentLister
	Gate     SessionController
	Sessions lesson.SessionRepository
	Results  lesson.ResultRepository
	Roster   Roster
	Now      func() time.Time
}

// SessionStatus describes the latest lesson. Session is nil if no lesson
// was ever started.
type SessionStatus struct {
	Session         *lesson.Session `json:"session"`
	Active          bool            `json:"active"`
	DurationMinutes int             `json:"duration_minutes"`
}

// LinkedDevice is a device link with its user and zone bands.
type LinkedDevice struct {
	DeviceID uint32              `json:"device_id"`
	User     roster.User         `json:"user"`
	LinkedAt time.Time           `json:"linked_at"`
	Zones    *scoring.ZoneRanges `json:"zones,omitempty"`
}

// Service implements the query and control operations.
type Service struct {
	deps Deps
}

// New checks deps and returns a Service.
func New(deps Deps) (*Service, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("studio: cache is required")
	case deps.Current == nil:
		return nil, errors.New("studio: current readings store is required")
	case deps.Gate == nil:
		return nil, errors.New("studio: lesson gate is required")
	case deps.Sessions == nil:
		return nil, errors.New("studio: session repository is required")
	case deps.Results == nil:
		return nil, errors.New("studio: result repository is required")
	case deps.Roster == nil:
		return nil, errors.New("studio: roster is required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps}, nil
}

// GetAllCached returns every live cache entry ordered by device id.
func (s *Service) GetAllCached() []ingest.CacheEntry {
	entries := s.deps.Cache.All()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Reading.DeviceID < entries[j].Reading.DeviceID
	})
	return entries
}

// GetCachedByDevice returns the live entry of one device.
func (s *Service) GetCachedByDevice(deviceID uint32) (ingest.CacheEntry, error) {
	e, ok := s.deps.Cache.Get(deviceID)
	if !ok {
		return ingest.CacheEntry{}, ErrDeviceNotCached
	}
	return e, nil
}

// ListAvailable returns the persisted latest reading of every device seen,
// with the linked identity and zone bands where known.
func (s *Service) ListAvailable(ctx context.Context) ([]ingest.CacheEntry, error) {
	readings, err := s.deps.Current.ListCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing current readings: %w", err)
	}

	now := s.deps.Now()
	out := make([]ingest.CacheEntry, 0, len(readings))
	for _, r := range readings {
		e := ingest.CacheEntry{Reading: r}
		if id, ok := s.deps.Roster.Lookup(r.DeviceID); ok {
			e.Identity = id
			e.Zones = scoring.IdentityZoneRanges(id, now)
		}
		out = append(out, e)
	}
	return out, nil
}

// StartSession begins a lesson. It returns lesson.ErrSessionActive if one
// is already running.
func (s *Service) StartSession(ctx context.Context) (*lesson.Session, error) {
	return s.deps.Gate.Start(ctx)
}

// EndSession ends the active lesson and returns its result. It returns
// lesson.ErrNoActiveSession if no lesson is running.
func (s *Service) EndSession(ctx context.Context) (*scoring.SessionResult, error) {
	return s.deps.Gate.End(ctx)
}

// GetSessionStatus reports the latest lesson and its duration in minutes.
func (s *Service) GetSessionStatus(ctx context.Context) (*SessionStatus, error) {
	now := s.deps.Now()
	if active := s.deps.Gate.Active(); active != nil {
		return &SessionStatus{Session: active, Active: true, DurationMinutes: active.DurationMinutes(now)}, nil
	}

	latest, err := s.deps.Sessions.FindLatest(ctx)
	if errors.Is(err, lesson.ErrSessionNotFound) {
		return &SessionStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SessionStatus{
		Session:         latest,
		Active:          latest.Status == lesson.StatusActive,
		DurationMinutes: latest.DurationMinutes(now),
	}, nil
}

// GetSessionResult returns the result of one lesson.
func (s *Service) GetSessionResult(ctx context.Context, sessionID string) (*scoring.SessionResult, error) {
	return s.deps.Results.GetBySession(ctx, sessionID)
}

// GetLatestResult returns the most recent lesson result.
func (s *Service) GetLatestResult(ctx context.Context) (*scoring.SessionResult, error) {
	return s.deps.Results.Latest(ctx)
}

// LinkDevice assigns deviceID to userID, replacing any previous link.
func (s *Service) LinkDevice(ctx context.Context, userID string, deviceID uint32) (*roster.DeviceLink, error) {
	if deviceID == 0 {
		return nil, ErrInvalidDevice
	}
	return s.deps.Roster.Link(ctx, deviceID, userID)
}

// UnlinkDevice removes the link of deviceID.
func (s *Service) UnlinkDevice(ctx context.Context, deviceID uint32) error {
	return s.deps.Roster.Unlink(ctx, deviceID)
}

// ListLinked returns every linked device with its user's zone bands.
func (s *Service) ListLinked(ctx context.Context) ([]LinkedDevice, error) {
	links, err := s.deps.Roster.ListLinks(ctx)
	if err != nil {
		return nil, err
	}

	now := s.deps.Now()
	out := make([]LinkedDevice, 0, len(links))
	for _, l := range links {
		out = append(out, LinkedDevice{
			DeviceID: l.Link.DeviceID,
			User:     l.User,
			LinkedAt: l.Link.LinkedAt,
			Zones:    scoring.IdentityZoneRanges(l.User.Identity(), now),
		})
	}
	return out, nil
}

// CreateUser validates and stores u, filling its id and timestamps.
func (s *Service) CreateUser(ctx context.Context, u *roster.User) error {
	return s.deps.Roster.CreateUser(ctx, u)
}

// ListUsers returns every user ordered by name.
func (s *Service) ListUsers(ctx context.Context) ([]roster.User, error) {
	return s.deps.Roster.ListUsers(ctx)
}
