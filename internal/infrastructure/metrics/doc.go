// Package metrics exposes Pulse Core's Prometheus instrumentation.
//
// A single Metrics value is created in main and handed to the radio
// manager, the ingest pipeline and the lesson gate. The ops server mounts
// Handler at /metrics.
package metrics
