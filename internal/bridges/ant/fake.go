package ant

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// DriverCall is one recorded FakeDriver operation.
type DriverCall struct {
	Op       string // "open", "attach", "detach" or "close"
	Channel  telemetry.ChannelID
	DeviceID uint32
}

// FakeDriver is a scripted Driver. Tests push samples and detach notices
// with Emit and EmitDetached; every call the Manager makes is recorded.
//
// Like real hardware, Detach is answered with a detach notification.
type FakeDriver struct {
	mu         sync.Mutex
	calls      []DriverCall
	openErr    map[telemetry.ChannelID]error
	attachErr  map[telemetry.ChannelID][]error
	attached   map[telemetry.ChannelID]uint32
	onReading  ReadingHandler
	onDetached DetachHandler
	closed     bool
}

// NewFakeDriver creates a fake driver with no scripted failures.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		openErr:   make(map[telemetry.ChannelID]error),
		attachErr: make(map[telemetry.ChannelID][]error),
		attached:  make(map[telemetry.ChannelID]uint32),
	}
}

// FailOpen makes OpenChannel fail for ch.
func (d *FakeDriver) FailOpen(ch telemetry.ChannelID, err error) {
	d.mu.Lock()
	d.openErr[ch] = err
	d.mu.Unlock()
}

// FailNextAttach queues an error for the next Attach on ch.
func (d *FakeDriver) FailNextAttach(ch telemetry.ChannelID, err error) {
	d.mu.Lock()
	d.attachErr[ch] = append(d.attachErr[ch], err)
	d.mu.Unlock()
}

// OpenChannel records the open and returns any scripted failure.
func (d *FakeDriver) OpenChannel(_ context.Context, ch telemetry.ChannelID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	d.calls = append(d.calls, DriverCall{Op: "open", Channel: ch})
	return d.openErr[ch]
}

// Attach records the attach and returns any queued failure.
func (d *FakeDriver) Attach(ch telemetry.ChannelID, deviceID uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DriverCall{Op: "attach", Channel: ch, DeviceID: deviceID})
	if errs := d.attachErr[ch]; len(errs) > 0 {
		d.attachErr[ch] = errs[1:]
		return errs[0]
	}
	d.attached[ch] = deviceID
	return nil
}

// Detach records the detach and answers with a detach notification.
func (d *FakeDriver) Detach(ch telemetry.ChannelID) error {
	d.mu.Lock()
	d.calls = append(d.calls, DriverCall{Op: "detach", Channel: ch})
	delete(d.attached, ch)
	h := d.onDetached
	closed := d.closed
	d.mu.Unlock()

	if h != nil && !closed {
		h(ch)
	}
	return nil
}

// SetOnReading sets the sample callback.
func (d *FakeDriver) SetOnReading(h ReadingHandler) {
	d.mu.Lock()
	d.onReading = h
	d.mu.Unlock()
}

// SetOnDetached sets the detach callback.
func (d *FakeDriver) SetOnDetached(h DetachHandler) {
	d.mu.Lock()
	d.onDetached = h
	d.mu.Unlock()
}

// Close marks the driver closed.
func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, DriverCall{Op: "close"})
	d.closed = true
	return nil
}

// Emit delivers a sample on ch as if received over the air.
func (d *FakeDriver) Emit(ch telemetry.ChannelID, s telemetry.RawSample) {
	d.mu.Lock()
	h := d.onReading
	d.mu.Unlock()
	if h != nil {
		h(ch, s)
	}
}

// EmitDetached reports that the strap on ch was lost.
func (d *FakeDriver) EmitDetached(ch telemetry.ChannelID) {
	d.mu.Lock()
	h := d.onDetached
	d.mu.Unlock()
	if h != nil {
		h(ch)
	}
}

// Calls returns a copy of every recorded call.
func (d *FakeDriver) Calls() []DriverCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DriverCall(nil), d.calls...)
}

// AttachTargets returns the device ids passed to Attach for ch, in order.
func (d *FakeDriver) AttachTargets(ch telemetry.ChannelID) []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []uint32
	for _, c := range d.calls {
		if c.Op == "attach" && c.Channel == ch {
			out = append(out, c.DeviceID)
		}
	}
	return out
}

// Attached reports the device id ch is currently attached to.
func (d *FakeDriver) Attached(ch telemetry.ChannelID) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.attached[ch]
	return id, ok
}

// Simulate emits one synthetic strap per attached channel every interval
// until ctx is done. A wildcard channel hears strap 1000+stick*100+slot.
// Heart rates sweep slowly between 70 and 170 bpm.
func (d *FakeDriver) Simulate(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var beats uint8
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		targets := make(map[telemetry.ChannelID]uint32, len(d.attached))
		for ch, id := range d.attached {
			targets[ch] = id
		}
		d.mu.Unlock()

		beats++
		elapsed := time.Since(start).Seconds()
		for ch, id := range targets {
			if id == WildcardDevice {
				id = 1000 + uint32(ch.Stick)*100 + uint32(ch.Slot)
			}
			phase := float64(id%17) / 17 * 2 * math.Pi
			hr := 120 + 50*math.Sin(elapsed/60+phase)
			d.Emit(ch, telemetry.RawSample{
				DeviceID:  id,
				HeartRate: uint16(math.Round(hr)),
				BeatTime:  uint16(uint64(elapsed * 1024)), // #nosec G115 -- wraps like the strap counter
				BeatCount: beats,
			})
		}
	}
}
