package ant

import (
	"context"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// WildcardDevice asks a driver to attach to any strap in range.
const WildcardDevice uint32 = 0

// ReadingHandler receives samples from a driver. It must not block.
type ReadingHandler func(ch telemetry.ChannelID, s telemetry.RawSample)

// DetachHandler receives lost-strap notices from a driver. It must not block.
type DetachHandler func(ch telemetry.ChannelID)

// Driver is the radio hardware capability used by the Manager.
//
// Attach with WildcardDevice searches for any strap; attaching with a
// specific id searches for that strap only. A Detach is answered by a
// detach notification once the channel is released.
type Driver interface {
	OpenChannel(ctx context.Context, ch telemetry.ChannelID) error
	Attach(ch telemetry.ChannelID, deviceID uint32) error
	Detach(ch telemetry.ChannelID) error
	SetOnReading(h ReadingHandler)
	SetOnDetached(h DetachHandler)
	Close() error
}
