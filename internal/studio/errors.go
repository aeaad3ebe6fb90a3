package studio

import (
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Domain errors returned by Service.
var (
	ErrDeviceNotCached = fmt.Errorf("studio: device not in live cache: %w", telemetry.ErrNotFound)
	ErrInvalidDevice   = fmt.Errorf("studio: device id must be non-zero: %w", telemetry.ErrInvalid)
)
