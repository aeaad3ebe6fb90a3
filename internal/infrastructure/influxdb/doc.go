// Package influxdb mirrors Pulse telemetry into InfluxDB v2.
//
// Two measurements are written:
//   - heart_rate: every reading (bpm, beat_time, beat_count), tagged by
//     device, channel and linked user;
//   - lesson_result: one point per scored device when a lesson ends.
//
// InfluxDB is optional. Connect returns ErrDisabled when it is switched off,
// and all write methods are no-ops on a closed client.
package influxdb
