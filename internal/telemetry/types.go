package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChannelID identifies one hardware radio slot on one stick.
type ChannelID struct {
	Stick uint8 `json:"stick"`
	Slot  uint8 `json:"slot"`
}

// String renders the channel as "stick.slot" (e.g. "1.0").
func (c ChannelID) String() string {
	return fmt.Sprintf("%d.%d", c.Stick, c.Slot)
}

// ParseChannelID parses the "stick.slot" form produced by String.
func ParseChannelID(s string) (ChannelID, error) {
	stick, slot, ok := strings.Cut(s, ".")
	if !ok {
		return ChannelID{}, fmt.Errorf("%w: channel %q", ErrInvalid, s)
	}
	st, err := strconv.ParseUint(stick, 10, 8)
	if err != nil {
		return ChannelID{}, fmt.Errorf("%w: channel stick %q", ErrInvalid, stick)
	}
	sl, err := strconv.ParseUint(slot, 10, 8)
	if err != nil {
		return ChannelID{}, fmt.Errorf("%w: channel slot %q", ErrInvalid, slot)
	}
	return ChannelID{Stick: uint8(st), Slot: uint8(sl)}, nil
}

// RawSample is a heart-rate event exactly as a driver delivers it.
//
// DeviceID 0 means the sensor has not reported its identity yet; such
// samples are discarded by the channel manager.
type RawSample struct {
	DeviceID       uint32  `json:"device_id"`
	HeartRate      uint16  `json:"heart_rate"`
	BeatTime       uint16  `json:"beat_time"`
	BeatCount      uint8   `json:"beat_count"`
	ManufacturerID *uint16 `json:"manufacturer_id,omitempty"`
	SerialNumber   *uint32 `json:"serial_number,omitempty"`
}

// Reading is a normalized sample: a RawSample with a known device identity,
// stamped with the channel it arrived on and the time it was received.
//
// Readings are values and are never mutated after creation.
type Reading struct {
	DeviceID       uint32    `json:"device_id"`
	HeartRate      uint16    `json:"heart_rate"`
	BeatTime       uint16    `json:"beat_time"`
	BeatCount      uint8     `json:"beat_count"`
	ManufacturerID *uint16   `json:"manufacturer_id,omitempty"`
	SerialNumber   *uint32   `json:"serial_number,omitempty"`
	Channel        ChannelID `json:"channel"`
	ReceivedAt     time.Time `json:"received_at"`
}

// Normalize converts a raw sample into a Reading.
// It reports false for samples without a device identity.
func Normalize(raw RawSample, ch ChannelID, receivedAt time.Time) (Reading, bool) {
	if raw.DeviceID == 0 {
		return Reading{}, false
	}
	return Reading{
		DeviceID:       raw.DeviceID,
		HeartRate:      raw.HeartRate,
		BeatTime:       raw.BeatTime,
		BeatCount:      raw.BeatCount,
		ManufacturerID: copyU16(raw.ManufacturerID),
		SerialNumber:   copyU32(raw.SerialNumber),
		Channel:        ch,
		ReceivedAt:     receivedAt.UTC(),
	}, true
}

// Gender selects the maximum heart rate formula.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid reports whether g is a known gender code.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// Identity is the user snapshot attached to a device for caching and scoring.
type Identity struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Gender    Gender    `json:"gender"`
	BirthDate time.Time `json:"birth_date"`
	Weight    float64   `json:"weight"`
	Height    float64   `json:"height"`
}

func copyU16(v *uint16) *uint16 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyU32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
