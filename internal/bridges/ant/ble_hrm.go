package ant

import (
	"encoding/binary"
	"errors"
	"hash/fnv"
	"strings"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Heart Rate Measurement (0x2A37) flag bits.
const (
	hrmFlag16Bit          = 0x01
	hrmFlagEnergyExpended = 0x08
	hrmFlagRRIntervals    = 0x10
)

var errShortMeasurement = errors.New("ant: heart rate measurement too short")

// DeviceIDForAddress derives a stable non-zero device id from a Bluetooth
// address using FNV-1a 32.
func DeviceIDForAddress(addr string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToUpper(addr)))
	if id := h.Sum32(); id != 0 {
		return id
	}
	return 1
}

// hrmDecoder turns Heart Rate Measurement notifications into RawSamples.
// BeatTime accumulates RR intervals in 1/1024 s and BeatCount counts beats,
// both wrapping like their ANT+ counterparts.
type hrmDecoder struct {
	deviceID  uint32
	beatTime  uint16
	beatCount uint8
}

func (d *hrmDecoder) decode(buf []byte) (telemetry.RawSample, error) {
	if len(buf) < 2 {
		return telemetry.RawSample{}, errShortMeasurement
	}
	flags := buf[0]
	i := 1

	var hr uint16
	if flags&hrmFlag16Bit != 0 {
		if len(buf) < 3 {
			return telemetry.RawSample{}, errShortMeasurement
		}
		hr = binary.LittleEndian.Uint16(buf[1:3])
		i = 3
	} else {
		hr = uint16(buf[1])
		i = 2
	}

	if flags&hrmFlagEnergyExpended != 0 {
		i += 2
	}

	beats := 0
	if flags&hrmFlagRRIntervals != 0 {
		for ; i+1 < len(buf); i += 2 {
			d.beatTime += binary.LittleEndian.Uint16(buf[i : i+2])
			beats++
		}
	}
	if beats == 0 {
		beats = 1
	}
	d.beatCount += uint8(beats) // #nosec G115 -- a notification carries at most a few intervals

	return telemetry.RawSample{
		DeviceID:  d.deviceID,
		HeartRate: hr,
		BeatTime:  d.beatTime,
		BeatCount: d.beatCount,
	}, nil
}
