package scoring

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Logger is the logging interface used by the Engine.
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

// IdentityResolver finds the user linked to a device.
// It returns (nil, nil) when the device is not linked.
type IdentityResolver interface {
	FindUserForDevice(ctx context.Context, deviceID uint32) (*telemetry.Identity, error)
}

// Engine scores lesson histories under a Policy.
type Engine struct {
	policy Policy
	logger Logger
}

// NewEngine creates an Engine with the given policy.
func NewEngine(p Policy) *Engine {
	return &Engine{policy: p, logger: noopLogger{}}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// Policy returns the engine's policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ScoreDevice scores the readings of one device against fcMax.
// Readings may be in any order; the input slice is not modified.
func (e *Engine) ScoreDevice(deviceID uint32, readings []telemetry.Reading, fcMax float64) DeviceResult {
	res := DeviceResult{DeviceID: deviceID, TotalSamples: len(readings)}
	if len(readings) < 2 || fcMax <= 0 {
		return res
	}

	sorted := make([]telemetry.Reading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt)
	})

	var total, weighted int64
	for i := 0; i < len(sorted)-1; i++ {
		cur, next := sorted[i], sorted[i+1]

		delta := int64(math.Round(next.ReceivedAt.Sub(cur.ReceivedAt).Seconds()))
		if delta < 1 {
			delta = 1
		}

		res.Zones.add(e.policy.Classify(cur.HeartRate, fcMax), delta)
		total += delta
		weighted += int64(cur.HeartRate) * delta
	}

	var points float64
	for z := Zone1; z <= Zone5; z++ {
		points += float64(res.Zones.Seconds(z)) * e.policy.Weight(z)
	}
	res.Points = int64(math.Round(points))
	res.AvgHeartRate = int(math.Round(float64(weighted) / float64(total)))
	return res
}

// Score groups readings by device and scores every device whose linked
// user yields an fcMax at time at. Unlinked devices, devices with an
// unknown gender and devices whose lookup fails are left out.
// Results are ordered by device id.
func (e *Engine) Score(ctx context.Context, readings []telemetry.Reading, resolver IdentityResolver, at time.Time) []DeviceResult {
	byDevice := make(map[uint32][]telemetry.Reading)
	for _, r := range readings {
		byDevice[r.DeviceID] = append(byDevice[r.DeviceID], r)
	}

	ids := make([]uint32, 0, len(byDevice))
	for id := range byDevice {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	results := make([]DeviceResult, 0, len(ids))
	for _, id := range ids {
		identity, err := resolver.FindUserForDevice(ctx, id)
		if err != nil {
			e.logger.Warn("identity lookup failed, device not scored", "device_id", id, "error", err)
			continue
		}
		fcMax, ok := IdentityFcMax(identity, at)
		if !ok || fcMax <= 0 {
			e.logger.Debug("device has no linked user, not scored", "device_id", id)
			continue
		}

		res := e.ScoreDevice(id, byDevice[id], fcMax)
		res.UserID = identity.UserID
		res.UserName = identity.Name
		results = append(results, res)
	}
	return results
}

// Aggregate assembles the lesson-level result from device results.
func Aggregate(sessionID string, startedAt, endedAt time.Time, devices []DeviceResult) *SessionResult {
	var total int64
	for _, d := range devices {
		total += d.Points
	}
	if devices == nil {
		devices = []DeviceResult{}
	}
	return &SessionResult{
		SessionID:     sessionID,
		TotalDevices:  len(devices),
		DeviceResults: devices,
		TotalPoints:   total,
		Duration:      DurationMinutes(startedAt, endedAt),
	}
}

// DurationMinutes rounds the span between start and end to whole minutes.
func DurationMinutes(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}
