package ant

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/config"
	"github.com/nerrad567/pulse-core/internal/infrastructure/metrics"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

const (
	defaultReconnectDelay   = 2 * time.Second
	defaultReconnectBackoff = 5 * time.Second
	defaultEventQueue       = 64
)

// Logger is the logging interface used by the Manager and drivers.
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

// Sink receives every normalized reading. *ingest.Pipeline satisfies it.
// Forward must not block.
type Sink interface {
	Forward(r telemetry.Reading)
}

// ChannelSpec is one channel to open and its optional static target.
type ChannelSpec struct {
	Channel telemetry.ChannelID
	Target  uint32
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Channels         []ChannelSpec
	ReconnectDelay   time.Duration
	ReconnectBackoff time.Duration
	SearchTimeout    time.Duration
	EventQueue       int
}

// ConfigFromRadio expands radio.sticks into one ChannelSpec per slot.
func ConfigFromRadio(cfg config.RadioConfig) ManagerConfig {
	mc := ManagerConfig{
		ReconnectDelay:   cfg.ReconnectDelay,
		ReconnectBackoff: cfg.ReconnectBackoff,
		SearchTimeout:    cfg.SearchTimeout,
		EventQueue:       cfg.EventQueue,
	}
	for _, stick := range cfg.Sticks {
		for slot := 0; slot < stick.Channels; slot++ {
			spec := ChannelSpec{Channel: telemetry.ChannelID{Stick: stick.ID, Slot: uint8(slot)}} // #nosec G115 -- validated <= 255
			if slot < len(stick.Targets) {
				spec.Target = stick.Targets[slot]
			}
			mc.Channels = append(mc.Channels, spec)
		}
	}
	return mc
}

// Manager owns the channel pool and routes driver events to channels.
type Manager struct {
	driver  Driver
	sink    Sink
	logger  Logger
	metrics *metrics.Metrics

	channels map[telemetry.ChannelID]*channel
	order    []telemetry.ChannelID

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewManager creates a manager for cfg.Channels on driver. Readings go to sink.
func NewManager(driver Driver, sink Sink, cfg ManagerConfig) *Manager {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = defaultReconnectBackoff
	}
	if cfg.EventQueue <= 0 {
		cfg.EventQueue = defaultEventQueue
	}

	m := &Manager{
		driver:   driver,
		sink:     sink,
		logger:   noopLogger{},
		channels: make(map[telemetry.ChannelID]*channel, len(cfg.Channels)),
		now:      time.Now,
	}

	t := timing{
		reconnectDelay:   cfg.ReconnectDelay,
		reconnectBackoff: cfg.ReconnectBackoff,
		searchTimeout:    cfg.SearchTimeout,
	}
	for _, spec := range cfg.Channels {
		if _, dup := m.channels[spec.Channel]; dup {
			continue
		}
		m.channels[spec.Channel] = newChannel(spec, driver, t, cfg.EventQueue, m)
		m.order = append(m.order, spec.Channel)
	}
	sort.Slice(m.order, func(i, j int) bool {
		a, b := m.order[i], m.order[j]
		if a.Stick != b.Stick {
			return a.Stick < b.Stick
		}
		return a.Slot < b.Slot
	})

	driver.SetOnReading(m.handleReading)
	driver.SetOnDetached(m.handleDetached)
	return m
}

// SetLogger sets the logger. Call before Start.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// SetMetrics sets the metrics collector. Call before Start.
func (m *Manager) SetMetrics(mt *metrics.Metrics) {
	m.metrics = mt
}

// Start opens every channel, each on its own goroutine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	for _, id := range m.order {
		c := m.channels[id]
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			c.run(ctx)
		}()
	}

	m.logger.Info("radio channels starting", "channels", len(m.order))
	return nil
}

// Stop tears every channel down and closes the driver.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	m.mu.Unlock()

	for _, id := range m.order {
		close(m.channels[id].done)
	}
	m.wg.Wait()

	if err := m.driver.Close(); err != nil {
		return fmt.Errorf("closing radio driver: %w", err)
	}
	m.logger.Info("radio channels stopped")
	return nil
}

// States returns a snapshot of every channel, ordered by stick then slot.
func (m *Manager) States() []ChannelState {
	out := make([]ChannelState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.channels[id].State())
	}
	return out
}

// State returns the snapshot of one channel.
func (m *Manager) State(id telemetry.ChannelID) (ChannelState, bool) {
	c, ok := m.channels[id]
	if !ok {
		return ChannelState{}, false
	}
	return c.State(), true
}

func (m *Manager) handleReading(ch telemetry.ChannelID, s telemetry.RawSample) {
	m.route(ch, channelEvent{kind: eventReading, sample: s, at: m.now()})
}

func (m *Manager) handleDetached(ch telemetry.ChannelID) {
	c, ok := m.channels[ch]
	if !ok {
		m.logger.Debug("detach for unknown channel ignored", "channel", ch.String())
		return
	}
	c.postDetached()
}

func (m *Manager) route(ch telemetry.ChannelID, ev channelEvent) {
	c, ok := m.channels[ch]
	if !ok {
		m.logger.Debug("event for unknown channel ignored", "channel", ch.String())
		return
	}
	if !c.post(ev) {
		m.metrics.IncChannelEventDropped()
		m.logger.Warn("channel event queue full, event dropped", "channel", ch.String())
	}
}

func (m *Manager) forward(r telemetry.Reading) {
	if m.sink != nil {
		m.sink.Forward(r)
	}
}

func (m *Manager) stateChanged() {
	if m.metrics == nil {
		return
	}
	counts := make(map[string]int, 5)
	for _, id := range m.order {
		counts[string(m.channels[id].State().Lifecycle)]++
	}
	m.metrics.SetChannelStates(counts)
}
