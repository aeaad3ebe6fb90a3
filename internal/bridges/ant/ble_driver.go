package ant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

const (
	defaultScanWindow = 10 * time.Second
	defaultScanPause  = 2 * time.Second
)

// Advertisement is what the BLE stack reports for a scanned peripheral.
type Advertisement struct {
	Address        string
	HeartRateStrap bool
}

// blePeripheral is a connected heart-rate strap.
type blePeripheral interface {
	SubscribeHeartRate(fn func(buf []byte)) error
	Disconnect() error
}

// bleStack is the adapter surface the driver uses. The production
// implementation wraps tinygo.org/x/bluetooth.
type bleStack interface {
	Enable() error
	SetDisconnectHandler(fn func(addr string))
	// Scan reports advertisements until found returns true, the window
	// elapses or ctx is done.
	Scan(ctx context.Context, window time.Duration, found func(Advertisement) bool) error
	Connect(addr string) (blePeripheral, error)
}

type bleSlot struct {
	cancel context.CancelFunc
	addr   string
	conn   blePeripheral
}

// BLEDriver connects Bluetooth LE heart-rate straps directly. Each channel
// slot holds at most one GATT connection.
type BLEDriver struct {
	stack      bleStack
	scanWindow time.Duration
	scanPause  time.Duration
	logger     Logger

	enableOnce sync.Once
	enableErr  error
	scanMu     sync.Mutex // one scan at a time across slots

	mu         sync.Mutex
	slots      map[telemetry.ChannelID]*bleSlot
	claimed    map[string]telemetry.ChannelID
	onReading  ReadingHandler
	onDetached DetachHandler
	closed     bool
	wg         sync.WaitGroup
}

// NewBLEDriver creates a driver on the default Bluetooth adapter.
func NewBLEDriver(scanWindow, scanPause time.Duration) *BLEDriver {
	return newBLEDriver(newTinygoStack(), scanWindow, scanPause)
}

func newBLEDriver(stack bleStack, scanWindow, scanPause time.Duration) *BLEDriver {
	if scanWindow <= 0 {
		scanWindow = defaultScanWindow
	}
	if scanPause <= 0 {
		scanPause = defaultScanPause
	}
	d := &BLEDriver{
		stack:      stack,
		scanWindow: scanWindow,
		scanPause:  scanPause,
		logger:     noopLogger{},
		slots:      make(map[telemetry.ChannelID]*bleSlot),
		claimed:    make(map[string]telemetry.ChannelID),
	}
	return d
}

// SetLogger sets the logger for the driver.
func (d *BLEDriver) SetLogger(logger Logger) {
	d.logger = logger
}

// OpenChannel enables the adapter on first use and reserves a slot for ch.
func (d *BLEDriver) OpenChannel(_ context.Context, ch telemetry.ChannelID) error {
	d.enableOnce.Do(func() {
		if err := d.stack.Enable(); err != nil {
			d.enableErr = fmt.Errorf("enabling bluetooth adapter: %w", err)
			return
		}
		d.stack.SetDisconnectHandler(d.handleDisconnect)
	})
	if d.enableErr != nil {
		return d.enableErr
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	d.slots[ch] = &bleSlot{}
	return nil
}

// Attach starts searching for a strap on ch. WildcardDevice accepts any
// unclaimed strap; a specific id accepts only the strap whose address
// hashes to it.
func (d *BLEDriver) Attach(ch telemetry.ChannelID, deviceID uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	slot, ok := d.slots[ch]
	if !ok {
		return ErrUnknownChannel
	}
	d.releaseLocked(slot)

	ctx, cancel := context.WithCancel(context.Background())
	slot.cancel = cancel
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.search(ctx, ch, deviceID)
	}()
	return nil
}

// Detach stops the search or drops the connection on ch and reports the
// channel detached.
func (d *BLEDriver) Detach(ch telemetry.ChannelID) error {
	d.mu.Lock()
	slot, ok := d.slots[ch]
	if !ok {
		d.mu.Unlock()
		return ErrUnknownChannel
	}
	conn := d.releaseLocked(slot)
	h := d.onDetached
	d.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Disconnect()
	}
	if h != nil {
		h(ch)
	}
	return err
}

// SetOnReading sets the sample callback.
func (d *BLEDriver) SetOnReading(h ReadingHandler) {
	d.mu.Lock()
	d.onReading = h
	d.mu.Unlock()
}

// SetOnDetached sets the detach callback.
func (d *BLEDriver) SetOnDetached(h DetachHandler) {
	d.mu.Lock()
	d.onDetached = h
	d.mu.Unlock()
}

// Close cancels every search and disconnects every strap.
func (d *BLEDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	var conns []blePeripheral
	for _, slot := range d.slots {
		if c := d.releaseLocked(slot); c != nil {
			conns = append(conns, c)
		}
	}
	d.mu.Unlock()

	d.wg.Wait()

	var errs []error
	for _, c := range conns {
		if err := c.Disconnect(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// releaseLocked cancels the slot's search and unclaims its strap.
// It returns the connection the caller must disconnect. Caller holds d.mu.
func (d *BLEDriver) releaseLocked(slot *bleSlot) blePeripheral {
	if slot.cancel != nil {
		slot.cancel()
		slot.cancel = nil
	}
	if slot.addr != "" {
		delete(d.claimed, slot.addr)
	}
	conn := slot.conn
	slot.addr, slot.conn = "", nil
	return conn
}

func (d *BLEDriver) search(ctx context.Context, ch telemetry.ChannelID, deviceID uint32) {
	for {
		addr, ok := d.scanOnce(ctx, ch, deviceID)
		if ctx.Err() != nil {
			return
		}
		if ok && d.connect(ctx, ch, addr) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.scanPause):
		}
	}
}

// scanOnce runs one scan window and claims the first matching strap.
func (d *BLEDriver) scanOnce(ctx context.Context, ch telemetry.ChannelID, deviceID uint32) (string, bool) {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()
	if ctx.Err() != nil {
		return "", false
	}

	var claimed string
	err := d.stack.Scan(ctx, d.scanWindow, func(adv Advertisement) bool {
		if !adv.HeartRateStrap {
			return false
		}
		if deviceID != WildcardDevice && DeviceIDForAddress(adv.Address) != deviceID {
			return false
		}

		d.mu.Lock()
		defer d.mu.Unlock()
		if _, taken := d.claimed[adv.Address]; taken || ctx.Err() != nil {
			return false
		}
		d.claimed[adv.Address] = ch
		claimed = adv.Address
		return true
	})
	if err != nil {
		d.logger.Warn("bluetooth scan failed", "channel", ch.String(), "error", err)
	}
	return claimed, claimed != ""
}

func (d *BLEDriver) connect(ctx context.Context, ch telemetry.ChannelID, addr string) bool {
	conn, err := d.stack.Connect(addr)
	if err != nil {
		d.logger.Warn("strap connect failed", "channel", ch.String(), "address", addr, "error", err)
		d.unclaim(addr, ch)
		return false
	}

	dec := &hrmDecoder{deviceID: DeviceIDForAddress(addr)}
	err = conn.SubscribeHeartRate(func(buf []byte) {
		s, err := dec.decode(buf)
		if err != nil {
			d.logger.Debug("bad heart rate measurement", "channel", ch.String(), "error", err)
			return
		}
		d.mu.Lock()
		h := d.onReading
		d.mu.Unlock()
		if h != nil {
			h(ch, s)
		}
	})
	if err != nil {
		d.logger.Warn("heart rate subscribe failed", "channel", ch.String(), "address", addr, "error", err)
		_ = conn.Disconnect()
		d.unclaim(addr, ch)
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	slot := d.slots[ch]
	if ctx.Err() != nil || slot == nil {
		delete(d.claimed, addr)
		go conn.Disconnect() //nolint:errcheck // attach was cancelled
		return true
	}
	slot.addr = addr
	slot.conn = conn
	d.logger.Info("strap connected", "channel", ch.String(), "address", addr, "device_id", dec.deviceID)
	return true
}

func (d *BLEDriver) unclaim(addr string, ch telemetry.ChannelID) {
	d.mu.Lock()
	if d.claimed[addr] == ch {
		delete(d.claimed, addr)
	}
	d.mu.Unlock()
}

// handleDisconnect maps an adapter disconnect to the owning channel.
func (d *BLEDriver) handleDisconnect(addr string) {
	d.mu.Lock()
	ch, ok := d.claimed[addr]
	if !ok {
		d.mu.Unlock()
		return
	}
	slot := d.slots[ch]
	if slot == nil || slot.addr != addr {
		d.mu.Unlock()
		return
	}
	d.releaseLocked(slot)
	h := d.onDetached
	d.mu.Unlock()

	d.logger.Info("strap disconnected", "channel", ch.String(), "address", addr)
	if h != nil {
		h(ch)
	}
}
