// Package telemetry defines the value types shared by the radio bridge,
// the ingest pipeline, the session gate and the scoring engine.
//
// The types carry no behaviour beyond formatting and copying. A RawSample is
// what a driver delivers; a Reading is what the rest of Pulse Core consumes.
// Only samples that carry a device identity are ever turned into readings.
//
// # Error Kinds
//
// Every package reports failures by wrapping one of the kinds declared here,
// so callers at the edge can classify an error without importing every
// package:
//
//	if errors.Is(err, telemetry.ErrConflict) {
//	    // a session is already running
//	}
package telemetry
