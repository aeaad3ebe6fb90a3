package scoring

import "time"

// ZoneStats holds dwell seconds per zone.
type ZoneStats struct {
	Zone1 int64 `json:"zone1"`
	Zone2 int64 `json:"zone2"`
	Zone3 int64 `json:"zone3"`
	Zone4 int64 `json:"zone4"`
	Zone5 int64 `json:"zone5"`
}

// Total is the sum of all zones.
func (z ZoneStats) Total() int64 {
	return z.Zone1 + z.Zone2 + z.Zone3 + z.Zone4 + z.Zone5
}

// Seconds returns the dwell for one zone.
func (z ZoneStats) Seconds(zone Zone) int64 {
	switch zone {
	case Zone1:
		return z.Zone1
	case Zone2:
		return z.Zone2
	case Zone3:
		return z.Zone3
	case Zone4:
		return z.Zone4
	case Zone5:
		return z.Zone5
	}
	return 0
}

func (z *ZoneStats) add(zone Zone, secs int64) {
	switch zone {
	case Zone1:
		z.Zone1 += secs
	case Zone2:
		z.Zone2 += secs
	case Zone3:
		z.Zone3 += secs
	case Zone4:
		z.Zone4 += secs
	case Zone5:
		z.Zone5 += secs
	}
}

// DeviceResult is one device's score for a lesson.
type DeviceResult struct {
	DeviceID     uint32    `json:"device_id"`
	UserID       string    `json:"user_id,omitempty"`
	UserName     string    `json:"user_name,omitempty"`
	TotalSamples int       `json:"total_samples"`
	Zones        ZoneStats `json:"zones"`
	Points       int64     `json:"points"`
	AvgHeartRate int       `json:"avg_heart_rate"`
}

// SessionResult is the immutable outcome of one lesson.
type SessionResult struct {
	ID            string         `json:"id"`
	SessionID     string         `json:"session_id"`
	TotalDevices  int            `json:"total_devices"`
	DeviceResults []DeviceResult `json:"device_results"`
	TotalPoints   int64          `json:"total_points"`
	// Duration is the lesson length in whole minutes.
	Duration  int       `json:"duration"`
	CreatedAt time.Time `json:"created_at"`
}
