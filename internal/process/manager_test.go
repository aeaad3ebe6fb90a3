package process

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/config"
)

func waitStatus(t *testing.T, s *Supervisor, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Status() = %q, want %q", s.Status(), want)
}

func TestNewSupervisor_Defaults(t *testing.T) {
	s := NewSupervisor(Config{Name: "agent", Binary: "/usr/bin/agent"})

	if s.cfg.RestartDelay != 5*time.Second {
		t.Errorf("RestartDelay = %v, want 5s", s.cfg.RestartDelay)
	}
	if s.cfg.MaxRestartDelay != 5*time.Minute {
		t.Errorf("MaxRestartDelay = %v, want 5m", s.cfg.MaxRestartDelay)
	}
	if s.cfg.StableThreshold != 2*time.Minute {
		t.Errorf("StableThreshold = %v, want 2m", s.cfg.StableThreshold)
	}
	if s.cfg.GracefulTimeout != 10*time.Second {
		t.Errorf("GracefulTimeout = %v, want 10s", s.cfg.GracefulTimeout)
	}
	if s.Status() != StatusStopped {
		t.Errorf("initial Status() = %q, want stopped", s.Status())
	}

	capped := NewSupervisor(Config{RestartDelay: time.Hour, MaxRestartDelay: time.Minute})
	if capped.cfg.MaxRestartDelay != time.Hour {
		t.Errorf("MaxRestartDelay below RestartDelay = %v, want raised to 1h", capped.cfg.MaxRestartDelay)
	}
}

func TestConfigFromAgent(t *testing.T) {
	cfg := ConfigFromAgent(config.AgentConfig{
		Managed:            true,
		Binary:             "/opt/pulse/radio-agent",
		Args:               []string{"--broker", "tcp://localhost:1883"},
		RestartDelay:       3 * time.Second,
		MaxRestartAttempts: 7,
	})

	if cfg.Name != "radio-agent" || cfg.Binary != "/opt/pulse/radio-agent" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Args) != 2 || cfg.RestartDelay != 3*time.Second || cfg.MaxRestartAttempts != 7 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestSupervisor_Backoff(t *testing.T) {
	s := NewSupervisor(Config{RestartDelay: time.Second, MaxRestartDelay: 30 * time.Second})

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{20, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := s.backoff(tt.failures); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestSupervisor_StartAndStop(t *testing.T) {
	var exits []error
	var mu sync.Mutex
	s := NewSupervisor(Config{
		Name:            "sleeper",
		Binary:          "/bin/sleep",
		Args:            []string{"60"},
		GracefulTimeout: 2 * time.Second,
		OnExit: func(err error) {
			mu.Lock()
			exits = append(exits, err)
			mu.Unlock()
		},
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if s.Status() != StatusRunning || s.Stats().PID == 0 {
		t.Errorf("after Start: %+v", s.Stats())
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() after Stop = %q", s.Status())
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(exits) != 1 || exits[0] != nil {
		t.Errorf("OnExit calls = %v, want one clean exit", exits)
	}
}

func TestSupervisor_StopBeforeStart(t *testing.T) {
	s := NewSupervisor(Config{Name: "idle", Binary: "/bin/true"})
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestSupervisor_InvalidBinary(t *testing.T) {
	s := NewSupervisor(Config{Name: "missing", Binary: "/nonexistent/radio-agent"})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error")
	}
	if s.Status() != StatusFailed || s.Stats().LastError == "" {
		t.Errorf("stats = %+v", s.Stats())
	}
	if err := s.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestSupervisor_RestartsThenGivesUp(t *testing.T) {
	var mu sync.Mutex
	exits := 0
	s := NewSupervisor(Config{
		Name:               "crasher",
		Binary:             "/bin/sh",
		Args:               []string{"-c", "exit 3"},
		RestartDelay:       10 * time.Millisecond,
		MaxRestartAttempts: 2,
		OnExit: func(error) {
			mu.Lock()
			exits++
			mu.Unlock()
		},
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, s, StatusFailed)

	stats := s.Stats()
	if stats.Restarts != 2 {
		t.Errorf("Restarts = %d, want 2", stats.Restarts)
	}
	if stats.LastError == "" || stats.PID != 0 {
		t.Errorf("stats = %+v", stats)
	}
	mu.Lock()
	defer mu.Unlock()
	if exits != 3 {
		t.Errorf("exits = %d, want 3", exits)
	}
}

func TestSupervisor_StopDuringBackoff(t *testing.T) {
	s := NewSupervisor(Config{
		Name:         "crasher",
		Binary:       "/bin/sh",
		Args:         []string{"-c", "exit 1"},
		RestartDelay: time.Hour,
	})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitStatus(t, s, StatusBackoff)

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() blocked during backoff")
	}
	if s.Status() != StatusStopped {
		t.Errorf("Status() = %q, want stopped", s.Status())
	}
}

func TestSupervisor_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSupervisor(Config{Name: "sleeper", Binary: "/bin/sleep", Args: []string{"60"}})

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()
	waitStatus(t, s, StatusStopped)
}
