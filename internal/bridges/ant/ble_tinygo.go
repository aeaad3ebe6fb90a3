package ant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

var errNoHeartRateCharacteristic = errors.New("ant: strap exposes no heart rate measurement characteristic")

// tinygoStack adapts bluetooth.DefaultAdapter to bleStack.
type tinygoStack struct {
	adapter *bluetooth.Adapter

	mu     sync.Mutex
	seen   map[string]bluetooth.Address
	onGone func(addr string)
}

func newTinygoStack() *tinygoStack {
	return &tinygoStack{
		adapter: bluetooth.DefaultAdapter,
		seen:    make(map[string]bluetooth.Address),
	}
}

func (s *tinygoStack) Enable() error {
	if err := s.adapter.Enable(); err != nil {
		return err
	}
	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		s.mu.Lock()
		h := s.onGone
		s.mu.Unlock()
		if h != nil {
			h(device.Address.String())
		}
	})
	return nil
}

func (s *tinygoStack) SetDisconnectHandler(fn func(addr string)) {
	s.mu.Lock()
	s.onGone = fn
	s.mu.Unlock()
}

func (s *tinygoStack) Scan(ctx context.Context, window time.Duration, found func(Advertisement) bool) error {
	stop := make(chan struct{})
	var once sync.Once
	halt := func() {
		once.Do(func() {
			close(stop)
			_ = s.adapter.StopScan() //nolint:errcheck // scan may already be stopped
		})
	}

	timer := time.AfterFunc(window, halt)
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			halt()
		case <-stop:
		}
	}()

	err := s.adapter.Scan(func(_ *bluetooth.Adapter, res bluetooth.ScanResult) {
		addr := res.Address.String()
		adv := Advertisement{
			Address:        addr,
			HeartRateStrap: res.HasServiceUUID(bluetooth.ServiceUUIDHeartRate),
		}
		if !adv.HeartRateStrap {
			return
		}
		s.mu.Lock()
		s.seen[addr] = res.Address
		s.mu.Unlock()
		if found(adv) {
			halt()
		}
	})
	halt()
	return err
}

func (s *tinygoStack) Connect(addr string) (blePeripheral, error) {
	s.mu.Lock()
	target, ok := s.seen[addr]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("address %s not seen in scan", addr)
	}

	device, err := s.adapter.Connect(target, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, err
	}
	return &tinygoPeripheral{device: device}, nil
}

type tinygoPeripheral struct {
	device bluetooth.Device
}

func (p *tinygoPeripheral) SubscribeHeartRate(fn func(buf []byte)) error {
	srvs, err := p.device.DiscoverServices([]bluetooth.UUID{bluetooth.ServiceUUIDHeartRate})
	if err != nil {
		return fmt.Errorf("discovering heart rate service: %w", err)
	}
	for _, srv := range srvs {
		chars, err := srv.DiscoverCharacteristics([]bluetooth.UUID{bluetooth.CharacteristicUUIDHeartRateMeasurement})
		if err != nil {
			return fmt.Errorf("discovering heart rate characteristic: %w", err)
		}
		if len(chars) > 0 {
			return chars[0].EnableNotifications(fn)
		}
	}
	return errNoHeartRateCharacteristic
}

func (p *tinygoPeripheral) Disconnect() error {
	return p.device.Disconnect()
}
