package mqtt

import (
	"fmt"
	"strconv"
	"strings"
)

// TopicPrefix is the root of every Pulse topic.
const TopicPrefix = "pulse"

// Topics builds Pulse MQTT topic names.
//
//	topics := mqtt.Topics{}
//	topics.RadioSample(1, 3) // "pulse/radio/1/3/sample"
//
// Radio topics address one channel slot on one stick and carry traffic
// between the core and an external radio agent:
//
//	pulse/radio/{stick}/{slot}/command   core → agent (open, attach, detach)
//	pulse/radio/{stick}/{slot}/sample    agent → core (heart-rate sample)
//	pulse/radio/{stick}/{slot}/detached  agent → core (sensor lost)
//	pulse/radio/{stick}/{slot}/status    agent → core (open result)
type Topics struct{}

// RadioCommand is where the core sends channel commands.
func (Topics) RadioCommand(stick, slot uint8) string {
	return fmt.Sprintf("%s/radio/%d/%d/command", TopicPrefix, stick, slot)
}

// RadioSample is where the agent publishes samples received on a channel.
func (Topics) RadioSample(stick, slot uint8) string {
	return fmt.Sprintf("%s/radio/%d/%d/sample", TopicPrefix, stick, slot)
}

// RadioDetached is where the agent reports a lost sensor.
func (Topics) RadioDetached(stick, slot uint8) string {
	return fmt.Sprintf("%s/radio/%d/%d/detached", TopicPrefix, stick, slot)
}

// RadioStatus is where the agent answers open commands.
func (Topics) RadioStatus(stick, slot uint8) string {
	return fmt.Sprintf("%s/radio/%d/%d/status", TopicPrefix, stick, slot)
}

// AllRadioSamples matches samples from every channel.
func (Topics) AllRadioSamples() string {
	return TopicPrefix + "/radio/+/+/sample"
}

// AllRadioDetached matches detach notices from every channel.
func (Topics) AllRadioDetached() string {
	return TopicPrefix + "/radio/+/+/detached"
}

// AllRadioStatus matches open results from every channel.
func (Topics) AllRadioStatus() string {
	return TopicPrefix + "/radio/+/+/status"
}

// RadioHealth carries the retained channel health snapshot.
func (Topics) RadioHealth() string {
	return TopicPrefix + "/health/radio"
}

// Reading is the retained latest reading of one device.
//
// Example: pulse/reading/3377
func (Topics) Reading(deviceID uint32) string {
	return fmt.Sprintf("%s/reading/%d", TopicPrefix, deviceID)
}

// AllReadings matches the latest reading of every device.
func (Topics) AllReadings() string {
	return TopicPrefix + "/reading/+"
}

// LessonEvent carries lesson lifecycle events ("started", "ended").
//
// Example: pulse/lesson/event/ended
func (Topics) LessonEvent(eventType string) string {
	return fmt.Sprintf("%s/lesson/event/%s", TopicPrefix, eventType)
}

// SystemStatus carries the core's online/offline status (LWT).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// ParseRadioTopic splits pulse/radio/{stick}/{slot}/{kind} into its parts.
func ParseRadioTopic(topic string) (stick, slot uint8, kind string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != TopicPrefix || parts[1] != "radio" {
		return 0, 0, "", fmt.Errorf("%w: %q is not a radio topic", ErrInvalidTopic, topic)
	}
	st, err := strconv.ParseUint(parts[2], 10, 8)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: stick in %q", ErrInvalidTopic, topic)
	}
	sl, err := strconv.ParseUint(parts[3], 10, 8)
	if err != nil {
		return 0, 0, "", fmt.Errorf("%w: slot in %q", ErrInvalidTopic, topic)
	}
	return uint8(st), uint8(sl), parts[4], nil
}
