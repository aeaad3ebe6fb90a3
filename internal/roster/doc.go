// Package roster manages the people who wear sensors and the links between
// sensors and people.
//
// A DeviceLink ties a radio device id to a User for the duration of a lesson.
// Scoring and the live cache only need a small Identity snapshot of the user,
// which FindUserForDevice returns. Registry keeps the links in memory so the
// ingest path can resolve identities without touching SQLite.
//
// Links are cleared whenever a lesson starts or ends.
package roster
