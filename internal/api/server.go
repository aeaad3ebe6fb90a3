package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/bridges/ant"
	"github.com/nerrad567/pulse-core/internal/infrastructure/config"
	"github.com/nerrad567/pulse-core/internal/infrastructure/logging"
	"github.com/nerrad567/pulse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/pulse-core/internal/process"
)

// gracefulShutdownTimeout bounds in-flight requests during Close.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the database, MQTT and InfluxDB clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Check is one named component in the health report. A failing Required
// check turns the report into 503.
type Check struct {
	Name     string
	Checker  HealthChecker
	Required bool
}

// SessionState reports the active lesson. *lesson.Gate satisfies it.
type SessionState interface {
	ActiveSessionID() (string, bool)
}

// AgentStats reports the managed radio agent. *process.Supervisor satisfies it.
type AgentStats interface {
	Stats() process.Stats
}

// Deps holds the dependencies of the ops server. Logger is required.
type Deps struct {
	Config  config.OpsConfig
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Checks  []Check
	Radio   ant.StateSource
	Lessons SessionState
	Agent   AgentStats
	Version string
}

// Server is the ops HTTP server.
type Server struct {
	cfg     config.OpsConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	checks  []Check
	radio   ant.StateSource
	lessons SessionState
	agent   AgentStats
	version string
	started time.Time

	mu     sync.Mutex
	server *http.Server
	addr   string
}

// New creates a server. It does not listen until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		metrics: deps.Metrics,
		checks:  deps.Checks,
		radio:   deps.Radio,
		lessons: deps.Lessons,
		agent:   deps.Agent,
		version: deps.Version,
		started: time.Now(),
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
	if err != nil {
		return fmt.Errorf("binding ops listener: %w", err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Info("ops server listening", "address", s.addr)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ops server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Close shuts the server down, waiting for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("ops server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down ops server: %w", err)
	}
	return nil
}
