// Package mqtt connects Pulse Core to the MQTT broker.
//
// The broker carries three kinds of traffic:
//   - radio traffic between the core and an external radio agent
//     (pulse/radio/{stick}/{slot}/...), used by the mqtt radio driver;
//   - retained state: the latest reading per device (pulse/reading/{id}),
//     radio channel health (pulse/health/radio) and core status
//     (pulse/system/status, with a Last Will for crashes);
//   - lesson events (pulse/lesson/event/{started|ended}).
//
// Use Topics to build topic names.
package mqtt
