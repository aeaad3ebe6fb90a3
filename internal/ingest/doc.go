// Package ingest fans normalized heart-rate readings out to their sinks.
//
// Every Reading handed to Pipeline.Forward is written synchronously into the
// in-memory Cache (latest reading per device, enriched with the linked
// identity and heart-rate zones). The remaining sinks run on sharded worker
// goroutines so the radio callback never blocks:
//
//   - lesson history, only while a lesson is accepting samples;
//   - the current_readings table, for readers in other processes;
//   - MQTT, as a retained message on pulse/reading/{device_id};
//   - InfluxDB, as a heart_rate point.
//
// Workers are selected by device id, so each device's writes stay in order.
// A full worker queue drops the job and counts it; sink failures are logged
// and counted, never returned to the caller.
package ingest
