package api

import (
	"context"
	"net/http"
	"time"

	"github.com/nerrad567/pulse-core/internal/bridges/ant"
	"github.com/nerrad567/pulse-core/internal/process"
)

// checkTimeout bounds each component check.
const checkTimeout = 2 * time.Second

// Health status values.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusDown     = "down"
)

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
	Radio         *RadioSummary     `json:"radio,omitempty"`
	Lesson        LessonSummary     `json:"lesson"`
	Agent         *process.Stats    `json:"agent,omitempty"`
}

// RadioSummary counts channels by state.
type RadioSummary struct {
	Channels  int            `json:"channels"`
	Unusable  int            `json:"unusable"`
	Lifecycle map[string]int `json:"lifecycle"`
}

// LessonSummary reports whether a lesson is recording.
type LessonSummary struct {
	Active    bool   `json:"active"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        StatusOK,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Checks:        make(map[string]string, len(s.checks)),
	}

	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Checker.HealthCheck(ctx)
		cancel()

		if err == nil {
			resp.Checks[c.Name] = StatusOK
			continue
		}
		resp.Checks[c.Name] = err.Error()
		switch {
		case c.Required:
			resp.Status = StatusDown
		case resp.Status == StatusOK:
			resp.Status = StatusDegraded
		}
	}

	if s.radio != nil {
		resp.Radio = summarizeRadio(s.radio.States())
		if resp.Radio.Unusable > 0 && resp.Status == StatusOK {
			resp.Status = StatusDegraded
		}
	}

	if s.lessons != nil {
		id, ok := s.lessons.ActiveSessionID()
		resp.Lesson = LessonSummary{Active: ok, SessionID: id}
	}

	if s.agent != nil {
		st := s.agent.Stats()
		resp.Agent = &st
		if st.Status != process.StatusRunning && resp.Status == StatusOK {
			resp.Status = StatusDegraded
		}
	}

	code := http.StatusOK
	if resp.Status == StatusDown {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func summarizeRadio(states []ant.ChannelState) *RadioSummary {
	sum := &RadioSummary{Channels: len(states), Lifecycle: make(map[string]int)}
	for _, st := range states {
		if !st.Usable {
			sum.Unusable++
		}
		sum.Lifecycle[string(st.Lifecycle)]++
	}
	return sum
}
