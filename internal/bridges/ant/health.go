package ant

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/mqtt"
)

const defaultHealthInterval = 30 * time.Second

// HealthStatus is the overall radio status published on pulse/health/radio.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// StateSource reports channel snapshots. *Manager satisfies it.
type StateSource interface {
	States() []ChannelState
}

// HealthMessage is the retained radio health payload.
type HealthMessage struct {
	Status        HealthStatus   `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Bound         int            `json:"bound"`
	Unusable      int            `json:"unusable"`
	Channels      []ChannelState `json:"channels"`
}

// HealthReporter periodically publishes channel health.
type HealthReporter struct {
	source    StateSource
	publisher HealthPublisher
	interval  time.Duration
	startTime time.Time
	topics    mqtt.Topics
	logger    Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(source StateSource, publisher HealthPublisher, interval time.Duration) *HealthReporter {
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		source:    source,
		publisher: publisher,
		interval:  interval,
		startTime: time.Now(),
		logger:    noopLogger{},
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger. Call before Start.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.logger = logger
}

// Start publishes immediately and then every interval.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.loop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call more than once.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		if err := h.publish(h.message(HealthStopping, "")); err != nil {
			h.logger.Debug("final health publish failed", "error", err)
		}
	})
}

// PublishNow publishes the current status.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(h.message(status, reason))
}

func (h *HealthReporter) loop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logger.Warn("failed to publish radio health", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logger.Warn("failed to publish radio health", "error", err)
			}
		}
	}
}

// determineStatus is degraded while any channel is unusable.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	for _, s := range h.source.States() {
		if !s.Usable {
			return HealthDegraded, "channel " + s.Channel.String() + " unusable"
		}
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	states := h.source.States()
	msg := HealthMessage{
		Status:        status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Channels:      states,
	}
	for _, s := range states {
		if !s.Usable {
			msg.Unusable++
		}
		if s.Lifecycle == LifecycleBound {
			msg.Bound++
		}
	}
	return msg
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(h.topics.RadioHealth(), payload, 1, true)
}
