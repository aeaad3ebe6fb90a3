// Package ant manages the pool of radio channels that receive heart-rate
// straps.
//
// Each configured channel (stick × slot) is driven by its own goroutine
// that consumes driver events in arrival order and walks the lifecycle
//
//	IDLE → SEARCHING → BOUND → DETACHED → RECONNECT_WAIT → SEARCHING …
//
// A channel opened with a wildcard target binds to the first strap it hears
// and is then pinned to that strap's device id: it never returns to
// wildcard search. A lost strap is re-attached after ReconnectDelay; an
// attempt that fails to bind waits ReconnectBackoff before the next one.
//
// Drivers adapt the hardware behind the Driver interface:
//
//   - FakeDriver for tests and demos;
//   - MQTTDriver, which talks to an external radio agent over
//     pulse/radio/{stick}/{slot}/…;
//   - BLEDriver, which connects Bluetooth LE heart-rate straps directly.
//
// Driver callbacks never block. Readings are queued per channel and dropped,
// with a metric, when a queue is full. Detach notices are counted outside
// the queue and are never dropped.
package ant
