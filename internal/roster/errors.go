package roster

import (
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Domain errors.
var (
	// ErrUserNotFound is returned when a user id does not exist.
	ErrUserNotFound = fmt.Errorf("roster: user %w", telemetry.ErrNotFound)

	// ErrLinkNotFound is returned when a device has no link.
	ErrLinkNotFound = fmt.Errorf("roster: device link %w", telemetry.ErrNotFound)

	// ErrInvalidUser is returned when user fields fail validation.
	ErrInvalidUser = fmt.Errorf("roster: %w", telemetry.ErrInvalid)
)
