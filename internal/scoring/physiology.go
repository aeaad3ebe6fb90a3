package scoring

import (
	"math"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// yearLength is the mean Julian year used for age.
const yearLength = time.Duration(365.25 * 24 * float64(time.Hour))

// Age returns whole years between birth and at, counting 365.25-day years.
// Negative spans yield 0.
func Age(birth, at time.Time) int {
	elapsed := at.Sub(birth)
	if elapsed <= 0 {
		return 0
	}
	return int(elapsed / yearLength)
}

// FcMax estimates maximum heart rate: 208 − 0.7·age for men and
// 206 − 0.88·age for women. It reports false for an unknown gender.
func FcMax(g telemetry.Gender, age int) (float64, bool) {
	switch g {
	case telemetry.GenderMale:
		return 208 - 0.7*float64(age), true
	case telemetry.GenderFemale:
		return 206 - 0.88*float64(age), true
	default:
		return 0, false
	}
}

// IdentityFcMax is FcMax for id at time at.
func IdentityFcMax(id *telemetry.Identity, at time.Time) (float64, bool) {
	if id == nil || id.BirthDate.IsZero() {
		return 0, false
	}
	return FcMax(id.Gender, Age(id.BirthDate, at))
}

// ZoneRange is an inclusive bpm band.
type ZoneRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// ZoneRanges lists the bpm band of every zone for one fcMax.
type ZoneRanges struct {
	Zone1 ZoneRange `json:"zone1"`
	Zone2 ZoneRange `json:"zone2"`
	Zone3 ZoneRange `json:"zone3"`
	Zone4 ZoneRange `json:"zone4"`
	Zone5 ZoneRange `json:"zone5"`
}

// ComputeZoneRanges splits 50% to 100% of fcMax into five 10% bands,
// each bound rounded to the nearest bpm.
func ComputeZoneRanges(fcMax float64) ZoneRanges {
	band := func(lo, hi float64) ZoneRange {
		return ZoneRange{
			Min: int(math.Round(fcMax * lo)),
			Max: int(math.Round(fcMax * hi)),
		}
	}
	return ZoneRanges{
		Zone1: band(0.5, 0.6),
		Zone2: band(0.6, 0.7),
		Zone3: band(0.7, 0.8),
		Zone4: band(0.8, 0.9),
		Zone5: band(0.9, 1.0),
	}
}

// IdentityZoneRanges returns the zone bands for id, or nil when no fcMax
// can be derived.
func IdentityZoneRanges(id *telemetry.Identity, at time.Time) *ZoneRanges {
	fc, ok := IdentityFcMax(id, at)
	if !ok {
		return nil
	}
	zr := ComputeZoneRanges(fc)
	return &zr
}
