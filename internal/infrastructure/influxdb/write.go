package influxdb

import (
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/pulse-core/internal/scoring"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Measurement names.
const (
	MeasurementHeartRate    = "heart_rate"
	MeasurementLessonResult = "lesson_result"
)

// WriteHeartRate queues one reading, stamped with its receive time.
// identity may be nil for an unlinked device.
func (c *Client) WriteHeartRate(r telemetry.Reading, identity *telemetry.Identity) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(HeartRatePoint(r, identity))
}

// WriteLessonResult queues one point per scored device of a lesson.
func (c *Client) WriteLessonResult(res *scoring.SessionResult) {
	if !c.IsConnected() || res == nil {
		return
	}
	for _, p := range LessonResultPoints(res) {
		c.writeAPI.WritePoint(p)
	}
}

// HeartRatePoint builds the heart_rate point for a reading.
// Tags: device_id, channel and, when linked, user_id.
func HeartRatePoint(r telemetry.Reading, identity *telemetry.Identity) *write.Point {
	tags := map[string]string{
		"device_id": strconv.FormatUint(uint64(r.DeviceID), 10),
		"channel":   r.Channel.String(),
	}
	if identity != nil && identity.UserID != "" {
		tags["user_id"] = identity.UserID
	}

	fields := map[string]interface{}{
		"bpm":        int64(r.HeartRate),
		"beat_time":  int64(r.BeatTime),
		"beat_count": int64(r.BeatCount),
	}
	return write.NewPoint(MeasurementHeartRate, tags, fields, r.ReceivedAt)
}

// LessonResultPoints builds one lesson_result point per device, timestamped
// at the result's creation.
func LessonResultPoints(res *scoring.SessionResult) []*write.Point {
	points := make([]*write.Point, 0, len(res.DeviceResults))
	for _, d := range res.DeviceResults {
		tags := map[string]string{
			"lesson_id": res.SessionID,
			"device_id": strconv.FormatUint(uint64(d.DeviceID), 10),
		}
		if d.UserID != "" {
			tags["user_id"] = d.UserID
		}
		fields := map[string]interface{}{
			"points":         d.Points,
			"avg_heart_rate": int64(d.AvgHeartRate),
			"samples":        int64(d.TotalSamples),
			"zone1_s":        d.Zones.Zone1,
			"zone2_s":        d.Zones.Zone2,
			"zone3_s":        d.Zones.Zone3,
			"zone4_s":        d.Zones.Zone4,
			"zone5_s":        d.Zones.Zone5,
		}
		points = append(points, write.NewPoint(MeasurementLessonResult, tags, fields, res.CreatedAt))
	}
	return points
}
