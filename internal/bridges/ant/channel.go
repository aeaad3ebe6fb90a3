package ant

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

type eventKind int

const (
	eventReading eventKind = iota
	eventDetached
	eventRetryTimer
	eventSearchTimeout
)

type channelEvent struct {
	kind   eventKind
	sample telemetry.RawSample
	at     time.Time
	gen    uint64
}

// timing is the reconnect policy shared by every channel.
type timing struct {
	reconnectDelay   time.Duration
	reconnectBackoff time.Duration
	searchTimeout    time.Duration
}

// channel is the single owner of one ChannelState. Only run mutates state;
// every other goroutine reads the published snapshot.
type channel struct {
	id     telemetry.ChannelID
	target uint32
	driver Driver
	timing timing
	mgr    *Manager

	events chan channelEvent
	done   chan struct{}

	// Detach notices bypass events and are never dropped. pendingDetach
	// counts them; detachSig wakes run.
	pendingDetach atomic.Int32
	detachSig     chan struct{}

	// Owned by run.
	state        ChannelState
	retryGen     uint64
	searchGen    uint64
	retryTimer   *time.Timer
	searchTimer  *time.Timer
	reconnecting bool // attached by a retry timer and not yet bound
	pinning      bool // wildcard learned an id; waiting for the detach notice

	snapshot atomic.Pointer[ChannelState]
}

func newChannel(spec ChannelSpec, driver Driver, t timing, queue int, mgr *Manager) *channel {
	c := &channel{
		id:     spec.Channel,
		target: spec.Target,
		driver: driver,
		timing: t,
		mgr:    mgr,
		events:    make(chan channelEvent, queue),
		done:      make(chan struct{}),
		detachSig: make(chan struct{}, 1),
		state: ChannelState{
			Channel:   spec.Channel,
			Lifecycle: LifecycleIdle,
			Usable:    true,
		},
	}
	initial := c.state.clone()
	c.snapshot.Store(&initial)
	return c
}

// post queues an event without blocking. It reports false if the queue is full.
func (c *channel) post(ev channelEvent) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// postDetached records a detach notice without blocking.
func (c *channel) postDetached() {
	c.pendingDetach.Add(1)
	select {
	case c.detachSig <- struct{}{}:
	default:
	}
}

// postTimer queues a timer event, waiting for queue space. Timers run on
// their own goroutine so the wait never stalls a driver callback.
func (c *channel) postTimer(ev channelEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *channel) run(ctx context.Context) {
	c.open(ctx)

	for {
		select {
		case <-c.done:
			c.shutdown()
			return
		case ev := <-c.events:
			c.handle(ev)
			c.publish()
		case <-c.detachSig:
			c.handleDetaches()
			c.publish()
		}
	}
}

// handleDetaches processes events queued ahead of the pending detach
// notices, then the notices themselves.
func (c *channel) handleDetaches() {
	for queued := len(c.events); queued > 0; queued-- {
		c.handle(<-c.events)
	}
	for n := c.pendingDetach.Swap(0); n > 0; n-- {
		c.handle(channelEvent{kind: eventDetached})
	}
}

func (c *channel) open(ctx context.Context) {
	if err := c.driver.OpenChannel(ctx, c.id); err != nil {
		c.state.Usable = false
		c.publish()
		c.mgr.logger.Error("channel unusable until restart",
			"channel", c.id.String(),
			"error", &DriverError{Op: "open", Channel: c.id, Err: err},
		)
		return
	}

	c.state.BoundDeviceID = c.target
	c.attach()
	c.publish()
}

func (c *channel) handle(ev channelEvent) {
	if !c.state.Usable {
		return
	}

	switch ev.kind {
	case eventReading:
		c.onReading(ev.sample, ev.at)
	case eventDetached:
		c.onDetached()
	case eventRetryTimer:
		c.onRetryTimer(ev.gen)
	case eventSearchTimeout:
		c.onSearchTimeout(ev.gen)
	}
}

func (c *channel) onReading(s telemetry.RawSample, at time.Time) {
	reading, ok := telemetry.Normalize(s, c.id, at)
	if !ok {
		c.mgr.metrics.IncDiscarded()
		return
	}

	// Forwarded regardless of lifecycle.
	c.mgr.forward(reading)
	t := reading.ReceivedAt
	c.state.LastReadingAt = &t

	if c.state.Lifecycle != LifecycleSearching || c.pinning {
		return
	}

	if c.state.BoundDeviceID == WildcardDevice {
		c.pin(s.DeviceID)
		return
	}

	if s.DeviceID != c.state.BoundDeviceID {
		c.mgr.logger.Debug("reading from another device while searching",
			"channel", c.id.String(),
			"device_id", s.DeviceID,
			"target", c.state.BoundDeviceID,
		)
		return
	}

	c.stopSearchTimer()
	c.state.Lifecycle = LifecycleBound
	c.state.RetryCount = 0
	c.reconnecting = false
	c.mgr.logger.Info("channel bound", "channel", c.id.String(), "device_id", c.state.BoundDeviceID)
}

// pin records the first discovered id and releases the wildcard search so
// the channel can re-attach to that id only.
func (c *channel) pin(deviceID uint32) {
	c.state.BoundDeviceID = deviceID
	c.pinning = true
	c.mgr.logger.Info("device discovered, pinning channel", "channel", c.id.String(), "device_id", deviceID)

	if err := c.driver.Detach(c.id); err != nil {
		c.mgr.logger.Warn("detach for pinning failed, attaching directly",
			"channel", c.id.String(),
			"error", &DriverError{Op: "detach", Channel: c.id, Err: err},
		)
		c.pinning = false
		c.attach()
	}
}

func (c *channel) onDetached() {
	switch c.state.Lifecycle {
	case LifecycleSearching:
		if c.pinning {
			c.pinning = false
			c.attach()
			return
		}
		// Lost before binding: a failed reconnect, or the initial search
		// given up by the driver.
		c.stopSearchTimer()
		c.state.Lifecycle = LifecycleDetached
		c.scheduleRetry()
	case LifecycleBound:
		c.state.Lifecycle = LifecycleDetached
		c.mgr.logger.Info("device lost", "channel", c.id.String(), "device_id", c.state.BoundDeviceID)
		c.scheduleRetry()
	default:
		// Already detached or waiting: nothing to do.
	}
}

func (c *channel) onRetryTimer(gen uint64) {
	if c.state.Lifecycle != LifecycleReconnectWait || gen != c.retryGen {
		c.mgr.logger.Debug("stale retry timer ignored", "channel", c.id.String(), "lifecycle", string(c.state.Lifecycle))
		return
	}
	c.retryTimer = nil
	c.reconnecting = true
	c.attach()
}

func (c *channel) onSearchTimeout(gen uint64) {
	if c.state.Lifecycle != LifecycleSearching || gen != c.searchGen || c.pinning {
		return
	}
	c.searchTimer = nil
	c.mgr.logger.Info("reconnect search timed out", "channel", c.id.String(), "device_id", c.state.BoundDeviceID)

	if err := c.driver.Detach(c.id); err != nil {
		c.mgr.logger.Debug("detach after search timeout failed", "channel", c.id.String(), "error", err)
	}
	c.state.Lifecycle = LifecycleDetached
	c.scheduleRetry()
}

// attach asks the driver to search for BoundDeviceID. Failure counts as a
// failed bind and schedules a retry.
func (c *channel) attach() {
	if err := c.driver.Attach(c.id, c.state.BoundDeviceID); err != nil {
		c.mgr.logger.Warn("attach failed",
			"channel", c.id.String(),
			"device_id", c.state.BoundDeviceID,
			"error", &DriverError{Op: "attach", Channel: c.id, Err: err},
		)
		c.state.Lifecycle = LifecycleDetached
		c.scheduleRetry()
		return
	}

	c.state.Lifecycle = LifecycleSearching
	if c.reconnecting {
		c.armSearchTimer()
	}
}

// scheduleRetry arms the reconnect timer. The first attempt after a loss
// waits reconnectDelay; attempts after a failed bind wait reconnectBackoff.
func (c *channel) scheduleRetry() {
	delay := c.timing.reconnectDelay
	if c.state.RetryCount > 0 {
		delay = c.timing.reconnectBackoff
	}
	c.state.RetryCount++
	c.state.Lifecycle = LifecycleReconnectWait
	c.reconnecting = false

	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.retryGen++
	gen := c.retryGen
	c.retryTimer = time.AfterFunc(delay, func() {
		c.postTimer(channelEvent{kind: eventRetryTimer, gen: gen})
	})

	c.mgr.logger.Debug("reconnect scheduled",
		"channel", c.id.String(),
		"device_id", c.state.BoundDeviceID,
		"retry", c.state.RetryCount,
		"delay", delay,
	)
}

func (c *channel) armSearchTimer() {
	if c.timing.searchTimeout <= 0 {
		return
	}
	c.stopSearchTimer()
	c.searchGen++
	gen := c.searchGen
	c.searchTimer = time.AfterFunc(c.timing.searchTimeout, func() {
		c.postTimer(channelEvent{kind: eventSearchTimeout, gen: gen})
	})
}

func (c *channel) stopSearchTimer() {
	if c.searchTimer != nil {
		c.searchTimer.Stop()
		c.searchTimer = nil
	}
	c.searchGen++
}

func (c *channel) shutdown() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
	}
	c.stopSearchTimer()
	if c.state.Usable && c.state.Lifecycle != LifecycleIdle {
		if err := c.driver.Detach(c.id); err != nil {
			c.mgr.logger.Debug("detach on stop failed", "channel", c.id.String(), "error", err)
		}
	}
	c.state.Lifecycle = LifecycleIdle
	c.publish()
}

func (c *channel) publish() {
	s := c.state.clone()
	c.snapshot.Store(&s)
	c.mgr.stateChanged()
}

func (c *channel) State() ChannelState {
	return c.snapshot.Load().clone()
}
