package ant

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/pulse-core/internal/telemetry"
)

const defaultOpenTimeout = 10 * time.Second

// Transport is the MQTT surface the driver needs. *mqtt.Client satisfies it.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Command ops sent to the radio agent.
const (
	OpOpen   = "open"
	OpAttach = "attach"
	OpDetach = "detach"
)

// Command is the body of pulse/radio/{stick}/{slot}/command.
type Command struct {
	Op       string `json:"op"`
	DeviceID uint32 `json:"device_id,omitempty"`
}

// OpenStatus is the agent's answer on pulse/radio/{stick}/{slot}/status.
type OpenStatus struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// MQTTDriver relays channel commands to an external radio agent and turns
// its sample and detach messages into driver callbacks.
type MQTTDriver struct {
	transport   Transport
	qos         byte
	openTimeout time.Duration
	topics      mqtt.Topics
	logger      Logger

	subscribeOnce sync.Once
	subscribeErr  error

	mu         sync.Mutex
	opened     map[telemetry.ChannelID]bool
	pending    map[telemetry.ChannelID]chan OpenStatus
	onReading  ReadingHandler
	onDetached DetachHandler
	closed     bool
}

// NewMQTTDriver creates a driver over transport.
func NewMQTTDriver(transport Transport, qos byte) *MQTTDriver {
	return &MQTTDriver{
		transport:   transport,
		qos:         qos,
		openTimeout: defaultOpenTimeout,
		logger:      noopLogger{},
		opened:      make(map[telemetry.ChannelID]bool),
		pending:     make(map[telemetry.ChannelID]chan OpenStatus),
	}
}

// SetLogger sets the logger for the driver.
func (d *MQTTDriver) SetLogger(logger Logger) {
	d.logger = logger
}

// SetOpenTimeout bounds the wait for the agent's open answer.
func (d *MQTTDriver) SetOpenTimeout(t time.Duration) {
	d.openTimeout = t
}

// OpenChannel asks the agent to open ch and waits for its status answer.
func (d *MQTTDriver) OpenChannel(ctx context.Context, ch telemetry.ChannelID) error {
	if err := d.subscribe(); err != nil {
		return err
	}

	reply := make(chan OpenStatus, 1)
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDriverClosed
	}
	d.pending[ch] = reply
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, ch)
		d.mu.Unlock()
	}()

	if err := d.send(ch, Command{Op: OpOpen}); err != nil {
		return err
	}

	timer := time.NewTimer(d.openTimeout)
	defer timer.Stop()

	select {
	case st := <-reply:
		if !st.OK {
			return fmt.Errorf("agent refused open: %s", st.Error)
		}
		d.mu.Lock()
		d.opened[ch] = true
		d.mu.Unlock()
		return nil
	case <-timer.C:
		return ErrOpenTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach asks the agent to search for deviceID on ch.
func (d *MQTTDriver) Attach(ch telemetry.ChannelID, deviceID uint32) error {
	if err := d.checkOpened(ch); err != nil {
		return err
	}
	return d.send(ch, Command{Op: OpAttach, DeviceID: deviceID})
}

// Detach asks the agent to release ch. The agent answers on the detached topic.
func (d *MQTTDriver) Detach(ch telemetry.ChannelID) error {
	if err := d.checkOpened(ch); err != nil {
		return err
	}
	return d.send(ch, Command{Op: OpDetach})
}

// SetOnReading sets the sample callback.
func (d *MQTTDriver) SetOnReading(h ReadingHandler) {
	d.mu.Lock()
	d.onReading = h
	d.mu.Unlock()
}

// SetOnDetached sets the detach callback.
func (d *MQTTDriver) SetOnDetached(h DetachHandler) {
	d.mu.Lock()
	d.onDetached = h
	d.mu.Unlock()
}

// Close unsubscribes from the agent topics.
func (d *MQTTDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	var firstErr error
	for _, topic := range []string{d.topics.AllRadioSamples(), d.topics.AllRadioDetached(), d.topics.AllRadioStatus()} {
		if err := d.transport.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (d *MQTTDriver) subscribe() error {
	d.subscribeOnce.Do(func() {
		subs := []struct {
			topic   string
			handler mqtt.MessageHandler
		}{
			{d.topics.AllRadioSamples(), d.handleSample},
			{d.topics.AllRadioDetached(), d.handleDetached},
			{d.topics.AllRadioStatus(), d.handleStatus},
		}
		for _, s := range subs {
			if err := d.transport.Subscribe(s.topic, d.qos, s.handler); err != nil {
				d.subscribeErr = fmt.Errorf("subscribing to %s: %w", s.topic, err)
				return
			}
		}
	})
	return d.subscribeErr
}

func (d *MQTTDriver) checkOpened(ch telemetry.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	if !d.opened[ch] {
		return ErrUnknownChannel
	}
	return nil
}

func (d *MQTTDriver) send(ch telemetry.ChannelID, cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshalling %s command: %w", cmd.Op, err)
	}
	return d.transport.Publish(d.topics.RadioCommand(ch.Stick, ch.Slot), payload, d.qos, false)
}

func (d *MQTTDriver) handleSample(topic string, payload []byte) error {
	ch, err := channelFromTopic(topic)
	if err != nil {
		return err
	}
	var s telemetry.RawSample
	if err := json.Unmarshal(payload, &s); err != nil {
		return fmt.Errorf("decoding sample on %s: %w", topic, err)
	}

	d.mu.Lock()
	h := d.onReading
	d.mu.Unlock()
	if h != nil {
		h(ch, s)
	}
	return nil
}

func (d *MQTTDriver) handleDetached(topic string, _ []byte) error {
	ch, err := channelFromTopic(topic)
	if err != nil {
		return err
	}

	d.mu.Lock()
	h := d.onDetached
	d.mu.Unlock()
	if h != nil {
		h(ch)
	}
	return nil
}

func (d *MQTTDriver) handleStatus(topic string, payload []byte) error {
	ch, err := channelFromTopic(topic)
	if err != nil {
		return err
	}
	var st OpenStatus
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("decoding status on %s: %w", topic, err)
	}

	d.mu.Lock()
	reply, ok := d.pending[ch]
	d.mu.Unlock()
	if !ok {
		d.logger.Debug("unsolicited channel status ignored", "channel", ch.String())
		return nil
	}
	select {
	case reply <- st:
	default:
	}
	return nil
}

func channelFromTopic(topic string) (telemetry.ChannelID, error) {
	stick, slot, _, err := mqtt.ParseRadioTopic(topic)
	if err != nil {
		return telemetry.ChannelID{}, err
	}
	return telemetry.ChannelID{Stick: stick, Slot: slot}, nil
}
