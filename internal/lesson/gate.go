package lesson

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/pulse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pulse-core/internal/scoring"
)

const defaultDrainTimeout = 5 * time.Second

// Logger is the logging interface used by the Gate.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Drainer waits for in-flight history writes. *ingest.Pipeline satisfies it.
type Drainer interface {
	Drain(ctx context.Context) error
}

// CacheClearer empties the live reading cache. *ingest.Cache satisfies it.
type CacheClearer interface {
	Clear()
}

// LinkStore clears device links and resolves identities for scoring.
// *roster.Registry satisfies it.
type LinkStore interface {
	scoring.IdentityResolver
	ClearLinks(ctx context.Context) error
}

// EventPublisher publishes lesson events. *mqtt.Client satisfies it.
type EventPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// ResultWriter mirrors results to a time-series store.
// *influxdb.Client satisfies it.
type ResultWriter interface {
	WriteLessonResult(res *scoring.SessionResult)
}

// GateOptions wires a Gate. Sessions, Results, Samples, Links and Engine are
// required; the rest are optional.
type GateOptions struct {
	Sessions SessionRepository
	Results  ResultRepository
	Samples  SampleRepository
	Links    LinkStore
	Engine   *scoring.Engine

	Drainer    Drainer
	Cache      CacheClearer
	Publisher  EventPublisher
	TimeSeries ResultWriter
	Metrics    *metrics.Metrics

	// DrainTimeout bounds the wait for in-flight history writes in End.
	DrainTimeout time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Event is the payload published on pulse/lesson/event/{type}.
type Event struct {
	Type    string                 `json:"type"`
	Session *Session               `json:"session"`
	Result  *scoring.SessionResult `json:"result,omitempty"`
}

// Gate enforces the single active lesson and decides whether samples are
// recorded.
type Gate struct {
	opts   GateOptions
	logger Logger
	topics mqtt.Topics

	mu     sync.Mutex // serializes Start, End and Restore
	active atomic.Pointer[Session]
}

// NewGate creates a gate with no active lesson. Call Restore on startup.
func NewGate(opts GateOptions) *Gate {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{opts: opts, logger: noopLogger{}}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// IsAccepting reports whether samples are currently recorded.
func (g *Gate) IsAccepting() bool {
	return g.active.Load() != nil
}

// ActiveSessionID returns the id of the active lesson.
func (g *Gate) ActiveSessionID() (string, bool) {
	s := g.active.Load()
	if s == nil {
		return "", false
	}
	return s.ID, true
}

// Active returns a copy of the active lesson, or nil.
func (g *Gate) Active() *Session {
	s := g.active.Load()
	if s == nil {
		return nil
	}
	return s.Clone()
}

// Restore adopts an ACTIVE lesson left in the store by a previous run.
func (g *Gate) Restore(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, err := g.opts.Sessions.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding active lesson: %w", err)
	}
	if s == nil {
		return nil, nil
	}

	g.active.Store(s.Clone())
	g.opts.Metrics.SetSessionActive(true)
	g.logger.Info("active lesson restored", "session_id", s.ID, "started_at", s.StartedAt)
	return s, nil
}

// Start begins a new lesson. It clears the previous history and all device
// links first. It returns ErrSessionActive if a lesson is already active.
func (g *Gate) Start(ctx context.Context) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active.Load() != nil {
		return nil, ErrSessionActive
	}
	existing, err := g.opts.Sessions.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking for active lesson: %w", err)
	}
	if existing != nil {
		return nil, ErrSessionActive
	}

	if err := g.opts.Samples.ClearSamples(ctx); err != nil {
		return nil, err
	}
	if err := g.opts.Links.ClearLinks(ctx); err != nil {
		return nil, err
	}

	s := &Session{Status: StatusActive, StartedAt: g.opts.Now().UTC()}
	if err := g.opts.Sessions.Create(ctx, s); err != nil {
		return nil, err
	}

	g.active.Store(s.Clone())
	g.opts.Metrics.SetSessionActive(true)
	g.logger.Info("lesson started", "session_id", s.ID)
	g.publish("started", s, nil)
	return s, nil
}

// End stops recording, scores the lesson and stores its result.
// It returns ErrNoActiveSession if no lesson is active.
//
// If reading the history or marking the lesson ENDED fails, the lesson
// stays active and End can be retried. If only the result write fails, the
// lesson stays ENDED, the live cache and links are still cleared, and the
// error is returned.
func (g *Gate) End(ctx context.Context) (*scoring.SessionResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := g.active.Load()
	if s == nil {
		return nil, ErrNoActiveSession
	}

	// Stop accepting before draining so no new history write can start.
	g.active.Store(nil)
	g.drain(ctx, s.ID)

	began := time.Now()
	readings, err := g.opts.Samples.ReadSamples(ctx, s.ID)
	if err != nil {
		g.active.Store(s)
		return nil, err
	}

	ended := s.Clone()
	endedAt := g.opts.Now().UTC()
	ended.Status = StatusEnded
	ended.EndedAt = &endedAt

	devices := g.opts.Engine.Score(ctx, readings, g.opts.Links, endedAt)
	result := scoring.Aggregate(s.ID, s.StartedAt, endedAt, devices)
	result.CreatedAt = endedAt

	if err := g.opts.Sessions.Update(ctx, ended); err != nil {
		g.active.Store(s)
		return nil, err
	}
	g.opts.Metrics.SetSessionActive(false)

	if err := g.opts.Results.Create(ctx, result); err != nil {
		g.logger.Error("storing lesson result failed", "session_id", s.ID, "error", err)
		g.resetLive(ctx, s.ID)
		return nil, err
	}
	g.opts.Metrics.ObserveSessionEnded(time.Since(began))
	g.resetLive(ctx, s.ID)

	g.logger.Info("lesson ended",
		"session_id", s.ID,
		"samples", len(readings),
		"devices", result.TotalDevices,
		"total_points", result.TotalPoints,
		"duration_minutes", result.Duration,
	)
	g.publish("ended", ended, result)
	if g.opts.TimeSeries != nil {
		g.opts.TimeSeries.WriteLessonResult(result)
	}
	return result, nil
}

// resetLive clears the live cache and the device links of an ended lesson.
func (g *Gate) resetLive(ctx context.Context, sessionID string) {
	if g.opts.Cache != nil {
		g.opts.Cache.Clear()
	}
	if err := g.opts.Links.ClearLinks(ctx); err != nil {
		g.logger.Warn("clearing device links failed", "session_id", sessionID, "error", err)
	}
}

func (g *Gate) drain(ctx context.Context, sessionID string) {
	if g.opts.Drainer == nil {
		return
	}
	drainCtx, cancel := context.WithTimeout(ctx, g.opts.DrainTimeout)
	defer cancel()

	if err := g.opts.Drainer.Drain(drainCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.Warn("history drain timed out, scoring persisted samples", "session_id", sessionID)
			return
		}
		g.logger.Warn("history drain failed", "session_id", sessionID, "error", err)
	}
}

func (g *Gate) publish(eventType string, s *Session, res *scoring.SessionResult) {
	if g.opts.Publisher == nil {
		return
	}
	ev := Event{Type: eventType, Session: s, Result: res}
	if err := g.opts.Publisher.PublishJSON(g.topics.LessonEvent(eventType), ev, false); err != nil {
		g.logger.Debug("lesson event publish failed", "type", eventType, "error", err)
	}
}
