package lesson

import (
	"time"

	"github.com/nerrad567/pulse-core/internal/scoring"
)

// Status is the lifecycle state of a lesson.
type Status string

const (
	StatusActive Status = "ACTIVE"
	StatusEnded  Status = "ENDED"
)

// Session is one lesson. EndedAt is nil while the lesson is active.
type Session struct {
	ID        string     `json:"id"`
	Status    Status     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// DurationMinutes is the lesson length in whole minutes: the final length
// once ended, the time so far (relative to now) while active.
func (s *Session) DurationMinutes(now time.Time) int {
	end := now
	if s.EndedAt != nil {
		end = *s.EndedAt
	}
	return scoring.DurationMinutes(s.StartedAt, end)
}
