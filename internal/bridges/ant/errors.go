package ant

import (
	"errors"
	"fmt"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Domain errors.
var (
	// ErrUnknownChannel is returned by drivers for a channel never opened.
	ErrUnknownChannel = errors.New("ant: unknown channel")

	// ErrDriverClosed is returned by drivers after Close.
	ErrDriverClosed = errors.New("ant: driver closed")

	// ErrOpenTimeout is returned when the radio agent does not answer an open.
	ErrOpenTimeout = errors.New("ant: timed out waiting for channel open")

	// ErrAlreadyStarted is returned by Manager.Start when called twice.
	ErrAlreadyStarted = errors.New("ant: manager already started")
)

// DriverError describes a failed driver operation on one channel.
type DriverError struct {
	Op      string
	Channel telemetry.ChannelID
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("ant: %s channel %s: %v", e.Op, e.Channel, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// Is reports true for telemetry.ErrDriver.
func (e *DriverError) Is(target error) bool {
	return target == telemetry.ErrDriver
}
