package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncReading()
	m.IncReading()
	m.IncDiscarded()
	m.IncChannelEventDropped()
	m.IncIngestDropped()
	m.IncSinkError(SinkHistory)
	m.IncSinkError(SinkHistory)
	m.IncSinkError(SinkMQTT)

	if got := testutil.ToFloat64(m.readings); got != 2 {
		t.Fatalf("readings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.discarded); got != 1 {
		t.Fatalf("discarded = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.eventsDropped); got != 1 {
		t.Fatalf("events dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ingestDropped); got != 1 {
		t.Fatalf("ingest dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sinkErrors.WithLabelValues(SinkHistory)); got != 2 {
		t.Fatalf("history errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sinkErrors.WithLabelValues(SinkMQTT)); got != 1 {
		t.Fatalf("mqtt errors = %v, want 1", got)
	}
}

func TestMetrics_Gauges(t *testing.T) {
	m := New()

	m.SetChannelStates(map[string]int{"BOUND": 3, "SEARCHING": 1})
	if got := testutil.ToFloat64(m.channelStates.WithLabelValues("BOUND")); got != 3 {
		t.Fatalf("BOUND = %v, want 3", got)
	}

	// A state absent from the next snapshot disappears.
	m.SetChannelStates(map[string]int{"BOUND": 4})
	if n := testutil.CollectAndCount(m.channelStates); n != 1 {
		t.Fatalf("channel state series = %d, want 1", n)
	}

	m.SetCacheDevices(7)
	if got := testutil.ToFloat64(m.cacheDevices); got != 7 {
		t.Fatalf("cache devices = %v, want 7", got)
	}

	m.SetSessionActive(true)
	if got := testutil.ToFloat64(m.sessionActive); got != 1 {
		t.Fatalf("lesson active = %v, want 1", got)
	}
	m.SetSessionActive(false)
	if got := testutil.ToFloat64(m.sessionActive); got != 0 {
		t.Fatalf("lesson active = %v, want 0", got)
	}

	m.ObserveSessionEnded(20 * time.Millisecond)
	if got := testutil.ToFloat64(m.sessionsEnded); got != 1 {
		t.Fatalf("lessons ended = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.scoringDuration); n != 1 {
		t.Fatalf("scoring histogram series = %d, want 1", n)
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.IncReading()
	m.IncSinkError(SinkInflux)
	m.SetChannelStates(map[string]int{"IDLE": 1})
	m.SetSessionActive(true)
	m.ObserveSessionEnded(time.Second)

	if m.Registry() != nil {
		t.Error("nil Metrics Registry() should be nil")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncReading()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body error = %v", err)
	}
	if !strings.Contains(string(body), "pulse_readings_total 1") {
		t.Errorf("exposition missing pulse_readings_total:\n%s", body)
	}
}
