package ant

import (
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Lifecycle is the state of one channel.
type Lifecycle string

const (
	LifecycleIdle          Lifecycle = "IDLE"
	LifecycleSearching     Lifecycle = "SEARCHING"
	LifecycleBound         Lifecycle = "BOUND"
	LifecycleDetached      Lifecycle = "DETACHED"
	LifecycleReconnectWait Lifecycle = "RECONNECT_WAIT"
)

// ChannelState is a read-only snapshot of one channel.
type ChannelState struct {
	Channel telemetry.ChannelID `json:"channel"`
	// BoundDeviceID is 0 while the channel still searches by wildcard.
	BoundDeviceID uint32    `json:"bound_device_id"`
	Lifecycle     Lifecycle `json:"lifecycle"`
	RetryCount    int       `json:"retry_count"`
	// Usable is false once the driver failed to open the channel.
	Usable        bool       `json:"usable"`
	LastReadingAt *time.Time `json:"last_reading_at,omitempty"`
}

func (s ChannelState) clone() ChannelState {
	if s.LastReadingAt != nil {
		t := *s.LastReadingAt
		s.LastReadingAt = &t
	}
	return s
}
