package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/config"
)

// Status is the supervised process state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusBackoff Status = "backoff"
	StatusFailed  Status = "failed"
)

// ErrAlreadyRunning is returned by Start on a running supervisor.
var ErrAlreadyRunning = errors.New("process: already running")

const (
	defaultRestartDelay    = 5 * time.Second
	defaultMaxRestartDelay = 5 * time.Minute
	defaultStableThreshold = 2 * time.Minute
	defaultGracefulTimeout = 10 * time.Second

	// maxLogLine bounds one captured output line.
	maxLogLine = 64 * 1024
)

// Config describes the child process and its restart policy.
type Config struct {
	Name    string
	Binary  string
	Args    []string
	Env     []string // appended to the parent environment
	WorkDir string

	// RestartDelay is the first wait after an unexpected exit. Each further
	// consecutive failure doubles it up to MaxRestartDelay.
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration

	// StableThreshold is how long a run must last to reset the backoff.
	StableThreshold time.Duration

	// MaxRestartAttempts caps consecutive restarts. 0 means unlimited.
	MaxRestartAttempts int

	// GracefulTimeout is the wait between SIGTERM and SIGKILL on Stop.
	GracefulTimeout time.Duration

	// OnExit is called after every exit, nil err meaning a clean stop.
	OnExit func(err error)
}

// ConfigFromAgent maps radio.agent onto a supervisor config.
func ConfigFromAgent(cfg config.AgentConfig) Config {
	return Config{
		Name:               "radio-agent",
		Binary:             cfg.Binary,
		Args:               cfg.Args,
		RestartDelay:       cfg.RestartDelay,
		MaxRestartAttempts: cfg.MaxRestartAttempts,
	}
}

// Logger is the logging interface used by the supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a point-in-time view of the supervised process.
type Stats struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	PID       int    `json:"pid,omitempty"`
	Restarts  int    `json:"restarts"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor runs one child process and restarts it when it dies.
type Supervisor struct {
	cfg    Config
	logger Logger

	mu       sync.Mutex
	status   Status
	cmd      *exec.Cmd
	restarts int
	lastErr  error
	stopping bool
	stop     chan struct{}
	done     chan struct{}
}

// NewSupervisor applies defaults to cfg.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.MaxRestartDelay <= 0 {
		cfg.MaxRestartDelay = defaultMaxRestartDelay
	}
	if cfg.MaxRestartDelay < cfg.RestartDelay {
		cfg.MaxRestartDelay = cfg.RestartDelay
	}
	if cfg.StableThreshold <= 0 {
		cfg.StableThreshold = defaultStableThreshold
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultGracefulTimeout
	}
	return &Supervisor{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Call before Start.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Start launches the process. An error means the first launch failed and
// nothing is supervised; later failures are retried in the background.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusBackoff {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.stopping = false
	s.restarts = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	cmd, err := s.launch(ctx)
	if err != nil {
		s.mu.Lock()
		s.status = StatusFailed
		s.lastErr = err
		close(s.done)
		s.mu.Unlock()
		return err
	}

	go s.supervise(ctx, cmd)
	return nil
}

func (s *Supervisor) launch(ctx context.Context) (*exec.Cmd, error) {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(s.cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), s.cfg.Env...)
	}
	cmd.Dir = s.cfg.WorkDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	go s.capture("stdout", stdout)
	go s.capture("stderr", stderr)

	s.mu.Lock()
	s.cmd = cmd
	s.status = StatusRunning
	s.mu.Unlock()

	s.logger.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid)
	return cmd, nil
}

// capture logs the child's output line by line.
func (s *Supervisor) capture(stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLogLine)
	for sc.Scan() {
		s.logger.Debug("process output", "name", s.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

func (s *Supervisor) supervise(ctx context.Context, cmd *exec.Cmd) {
	defer close(s.done)

	failures := 0
	for {
		started := time.Now()
		err := cmd.Wait()

		s.mu.Lock()
		stopping := s.stopping
		s.mu.Unlock()

		if stopping || ctx.Err() != nil {
			s.setStatus(StatusStopped, nil)
			s.logger.Info("process stopped", "name", s.cfg.Name)
			s.notifyExit(nil)
			return
		}

		if err == nil {
			err = errors.New("exited with status 0")
		}
		s.logger.Warn("process exited unexpectedly", "name", s.cfg.Name, "error", err)
		s.notifyExit(err)

		if time.Since(started) >= s.cfg.StableThreshold {
			failures = 0
		}
		failures++

		if s.cfg.MaxRestartAttempts > 0 && failures > s.cfg.MaxRestartAttempts {
			s.logger.Error("giving up after repeated failures", "name", s.cfg.Name, "failures", failures-1)
			s.setStatus(StatusFailed, err)
			return
		}

		delay := s.backoff(failures)
		s.setStatus(StatusBackoff, err)
		s.logger.Info("restarting process", "name", s.cfg.Name, "attempt", failures, "delay", delay)

		for {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				s.setStatus(StatusStopped, err)
				return
			case <-s.stop:
				timer.Stop()
				s.setStatus(StatusStopped, err)
				return
			case <-timer.C:
			}

			next, lerr := s.launch(ctx)
			if lerr == nil {
				s.mu.Lock()
				s.restarts++
				s.mu.Unlock()
				cmd = next
				break
			}
			failures++
			s.logger.Error("restart failed", "name", s.cfg.Name, "error", lerr)
			if s.cfg.MaxRestartAttempts > 0 && failures > s.cfg.MaxRestartAttempts {
				s.setStatus(StatusFailed, lerr)
				return
			}
			delay = s.backoff(failures)
			s.setStatus(StatusBackoff, lerr)
		}
	}
}

// backoff is RestartDelay doubled per consecutive failure, capped.
func (s *Supervisor) backoff(failures int) time.Duration {
	d := s.cfg.RestartDelay
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= s.cfg.MaxRestartDelay {
			return s.cfg.MaxRestartDelay
		}
	}
	return d
}

func (s *Supervisor) setStatus(st Status, err error) {
	s.mu.Lock()
	s.status = st
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
}

func (s *Supervisor) notifyExit(err error) {
	if s.cfg.OnExit != nil {
		s.cfg.OnExit(err)
	}
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL after
// GracefulTimeout, and waits for supervision to end.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.stop == nil || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	close(s.stop)
	cmd, done, status := s.cmd, s.done, s.status
	s.mu.Unlock()

	if status != StatusRunning || cmd == nil || cmd.Process == nil {
		<-done
		return nil
	}

	pid := cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
	}

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.GracefulTimeout):
		s.logger.Warn("graceful stop timed out, killing", "name", s.cfg.Name, "timeout", s.cfg.GracefulTimeout)
	}

	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
	}
	<-done
	return nil
}

// Status returns the current state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Stats returns a snapshot for health reporting.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{Name: s.cfg.Name, Status: s.status, Restarts: s.restarts}
	if s.status == StatusRunning && s.cmd != nil && s.cmd.Process != nil {
		st.PID = s.cmd.Process.Pid
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
