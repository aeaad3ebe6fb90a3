package lesson

import (
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Domain errors.
var (
	// ErrSessionActive is returned by Start while another lesson is active.
	ErrSessionActive = fmt.Errorf("lesson: a lesson is already active: %w", telemetry.ErrConflict)

	// ErrNoActiveSession is returned by End when no lesson is active.
	ErrNoActiveSession = fmt.Errorf("lesson: no active lesson: %w", telemetry.ErrNotFound)

	// ErrSessionNotFound is returned when a lesson id does not exist.
	ErrSessionNotFound = fmt.Errorf("lesson: lesson %w", telemetry.ErrNotFound)

	// ErrResultNotFound is returned when no result exists for a lesson.
	ErrResultNotFound = fmt.Errorf("lesson: result %w", telemetry.ErrNotFound)
)
