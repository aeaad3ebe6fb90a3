// Package scoring turns a lesson's heart-rate history into per-device
// results using a time-weighted zone model.
//
// Each interval between two consecutive readings of a device is charged to
// the zone of the earlier reading. Dwell seconds per zone are multiplied by
// the zone weight and summed; rounding happens once per device. A device
// with fewer than two readings scores zero. A device with no linked user
// has no fcMax and is left out of the result.
//
// Zone thresholds and weights are a Policy, built from configuration.
package scoring
