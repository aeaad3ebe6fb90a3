// Package lesson owns the lifecycle of a lesson: the timed window during
// which heart-rate samples are recorded and at whose end they are scored.
//
// At most one lesson is ACTIVE at a time. The Gate enforces this with a
// mutex-guarded check-then-create, and the lessons table backs it with a
// partial unique index on status = 'ACTIVE'.
//
// While a lesson is active the ingest pipeline appends every reading to
// lesson_samples under its id. End stops accepting samples, waits for
// in-flight writes, scores the history and stores one LessonResult.
package lesson
