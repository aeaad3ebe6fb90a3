package scoring

import (
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// ErrInvalidPolicy is returned when zone thresholds or weights are malformed.
var ErrInvalidPolicy = fmt.Errorf("scoring: invalid policy: %w", telemetry.ErrInvalid)
