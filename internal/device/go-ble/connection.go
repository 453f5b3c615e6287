// Package goble implements device.Adapter on top of github.com/go-ble/ble.
//
// go-ble calls block; the adapter runs each of them on a named worker
// goroutine and reports the outcome through the session's callbacks. Requests
// on one link are serialized, since the ATT bearer handles a single request at
// a time anyway.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/groutine"
)

const (
	// DefaultWriteChunkSize is the maximum number of bytes written in a single
	// ATT request: ATT_MTU of 23 bytes minus the 3 byte header, which every
	// BLE version supports.
	DefaultWriteChunkSize = 20

	// DefaultWriteDelay separates consecutive chunks so the peripheral's
	// receive buffer is not overrun.
	DefaultWriteDelay = 10 * time.Millisecond
)

// DeviceFactory creates the host ble.Device (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newHostDevice

var errNoLink = fmt.Errorf("%w: no link to peripheral", device.ErrDisconnected)

// Adapter is a device.Adapter backed by the host Bluetooth controller.
type Adapter struct {
	logger *logrus.Logger

	mu    sync.Mutex
	dev   ble.Device
	links map[string]*link
}

// NewAdapter creates an adapter. The host device is opened on the first Connect.
func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger, links: make(map[string]*link)}
}

// link is one connect attempt and, once dialed, its live client.
type link struct {
	peripheral device.Peripheral
	handler    device.LinkHandler
	ctx        context.Context
	cancel     context.CancelFunc

	opMu   sync.Mutex // serializes ATT requests
	mu     sync.Mutex
	client ble.Client
	down   sync.Once
}

func (l *link) current() ble.Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

// attach stores the dialed client unless the attempt was cancelled meanwhile.
func (l *link) attach(c ble.Client) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return false
	}
	l.client = c
	return true
}

// detach forgets the client and reports the link as gone, once.
func (l *link) detach(err error) {
	l.mu.Lock()
	l.client = nil
	l.mu.Unlock()
	l.down.Do(func() {
		if l.handler.Disconnected != nil {
			l.handler.Disconnected(err)
		}
	})
}

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	a.dev = dev
	return dev, nil
}

func (a *Adapter) link(p device.Peripheral) *link {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.links[p.ID]
}

// Connect dials the peripheral. A previous link to the same peripheral is
// cancelled first.
func (a *Adapter) Connect(p device.Peripheral, h device.LinkHandler) {
	ctx, cancel := context.WithCancel(context.Background())
	l := &link{peripheral: p, handler: h, ctx: ctx, cancel: cancel}

	a.mu.Lock()
	prev := a.links[p.ID]
	a.links[p.ID] = l
	a.mu.Unlock()
	if prev != nil {
		a.release(prev, nil)
	}

	logger := a.logger.WithField("address", p.ID)
	groutine.Go(ctx, "ble-dial:"+p.ID, func(ctx context.Context) {
		dev, err := a.device()
		if err != nil {
			logger.WithError(err).Error("Failed to open BLE device")
			h.Failed(err)
			return
		}

		logger.Debug("Dialing BLE device...")
		client, err := dev.Dial(ctx, ble.NewAddr(p.ID))
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Dial cancelled")
				return
			}
			logger.WithError(err).Debug("Failed to dial BLE device")
			h.Failed(fmt.Errorf("failed to connect to device with address %q: %w", p.ID, NormalizeError(err)))
			return
		}
		if !l.attach(client) {
			// cancelled while dialing
			_ = client.CancelConnection()
			return
		}

		logger.Info("BLE device connected")
		h.Connected()
		a.monitor(l, client)
	})
}

// monitor reports a link loss detected by the platform stack.
func (a *Adapter) monitor(l *link, client ble.Client) {
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		a.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	groutine.Go(l.ctx, "ble-connection-monitor:"+l.peripheral.ID, func(ctx context.Context) {
		select {
		case <-watcher.Disconnected():
			a.logger.WithField("address", l.peripheral.ID).Warn("Platform reported disconnection")
			l.detach(device.ErrDisconnected)
		case <-ctx.Done():
		}
	})
}

// Disconnect cancels a pending dial or tears down the link. Disconnected is
// reported once the platform confirms.
func (a *Adapter) Disconnect(p device.Peripheral) {
	a.mu.Lock()
	l := a.links[p.ID]
	delete(a.links, p.ID)
	a.mu.Unlock()
	if l != nil {
		a.release(l, nil)
	}
}

func (a *Adapter) release(l *link, cause error) {
	l.cancel()
	client := l.current()
	if client == nil {
		return
	}
	groutine.Go(nil, "ble-disconnect:"+l.peripheral.ID, func(context.Context) {
		l.opMu.Lock()
		defer l.opMu.Unlock()
		if err := client.ClearSubscriptions(); err != nil {
			a.logger.WithError(err).Debug("Failed to clear subscriptions")
		}
		if err := client.CancelConnection(); err != nil {
			a.logger.WithError(err).Warn("BLE device disconnected with errors")
		}
		l.detach(cause)
	})
}

// run executes fn against the live client of p on a worker goroutine.
// fail is invoked instead if there is no link.
func (a *Adapter) run(p device.Peripheral, op string, fail func(error), fn func(*link, ble.Client)) {
	l := a.link(p)
	if l == nil {
		go fail(errNoLink)
		return
	}
	groutine.Go(nil, "ble-"+op+":"+p.ID, func(context.Context) {
		l.opMu.Lock()
		defer l.opMu.Unlock()
		client := l.current()
		if client == nil {
			fail(errNoLink)
			return
		}
		fn(l, client)
	})
}

func (a *Adapter) DiscoverServices(p device.Peripheral, filter []string, done func([]device.ServiceInfo, error)) {
	a.run(p, "discover-services", func(err error) { done(nil, err) }, func(_ *link, c ble.Client) {
		uuids, err := parseUUIDs(filter)
		if err != nil {
			done(nil, err)
			return
		}
		services, err := c.DiscoverServices(uuids)
		if err != nil {
			done(nil, NormalizeError(err))
			return
		}
		out := make([]device.ServiceInfo, 0, len(services))
		for _, s := range services {
			out = append(out, device.ServiceInfo{UUID: device.NormalizeUUID(s.UUID.String()), Handle: s})
		}
		a.logger.WithFields(logrus.Fields{"address": p.ID, "services": len(out)}).Debug("Services discovered")
		done(out, nil)
	})
}

func (a *Adapter) DiscoverCharacteristics(p device.Peripheral, service device.ServiceInfo, filter []string, done func([]device.CharacteristicInfo, error)) {
	svc, ok := service.Handle.(*ble.Service)
	if !ok {
		go done(nil, fmt.Errorf("service %s was not discovered by this adapter", service.UUID))
		return
	}
	a.run(p, "discover-characteristics", func(err error) { done(nil, err) }, func(_ *link, c ble.Client) {
		uuids, err := parseUUIDs(filter)
		if err != nil {
			done(nil, err)
			return
		}
		chars, err := c.DiscoverCharacteristics(uuids, svc)
		if err != nil {
			done(nil, NormalizeError(err))
			return
		}
		out := make([]device.CharacteristicInfo, 0, len(chars))
		for _, ch := range chars {
			props := convertProperties(ch.Property)
			if props.CanNotify() && ch.CCCD == nil {
				// the CCCD is needed to subscribe later on
				if _, err := c.DiscoverDescriptors(nil, ch); err != nil {
					a.logger.WithError(err).WithField("char_uuid", ch.UUID.String()).Debug("Failed to discover descriptors")
				}
			}
			out = append(out, device.CharacteristicInfo{
				UUID:        device.NormalizeUUID(ch.UUID.String()),
				ServiceUUID: service.UUID,
				Properties:  props,
				Handle:      ch,
			})
		}
		done(out, nil)
	})
}

func (a *Adapter) ReadValue(p device.Peripheral, char device.CharacteristicInfo, done func([]byte, error)) {
	ch, err := bleCharacteristic(char)
	if err != nil {
		go done(nil, err)
		return
	}
	a.run(p, "read", func(err error) { done(nil, err) }, func(_ *link, c ble.Client) {
		data, err := c.ReadCharacteristic(ch)
		if err != nil {
			done(nil, NormalizeError(err))
			return
		}
		done(data, nil)
	})
}

// WriteValue splits payloads longer than DefaultWriteChunkSize into
// consecutive writes.
func (a *Adapter) WriteValue(p device.Peripheral, char device.CharacteristicInfo, data []byte, withResponse bool, done func(error)) {
	ch, err := bleCharacteristic(char)
	if err != nil {
		go done(err)
		return
	}
	a.run(p, "write", done, func(_ *link, c ble.Client) {
		for len(data) > 0 {
			n := min(len(data), DefaultWriteChunkSize)
			if err := c.WriteCharacteristic(ch, data[:n], !withResponse); err != nil {
				done(fmt.Errorf("failed to write to characteristic %s: %w", char.Key(), NormalizeError(err)))
				return
			}
			data = data[n:]
			if len(data) > 0 {
				time.Sleep(DefaultWriteDelay)
			}
		}
		done(nil)
	})
}

// SetNotify subscribes with notifications when supported, otherwise with
// indications.
func (a *Adapter) SetNotify(p device.Peripheral, char device.CharacteristicInfo, enabled bool, done func(error)) {
	ch, err := bleCharacteristic(char)
	if err != nil {
		go done(err)
		return
	}
	indicate := !char.Properties.Has(device.PropNotify) && char.Properties.Has(device.PropIndicate)

	a.run(p, "notify", done, func(l *link, c ble.Client) {
		if !enabled {
			done(NormalizeError(c.Unsubscribe(ch, indicate)))
			return
		}
		err := c.Subscribe(ch, indicate, func(data []byte) {
			if l.handler.ValueUpdated != nil {
				l.handler.ValueUpdated(char, data)
			}
		})
		done(NormalizeError(err))
	})
}

func (a *Adapter) ReadRSSI(p device.Peripheral, done func(int, error)) {
	a.run(p, "rssi", func(err error) { done(0, err) }, func(_ *link, c ble.Client) {
		done(c.ReadRSSI(), nil)
	})
}

func bleCharacteristic(char device.CharacteristicInfo) (*ble.Characteristic, error) {
	ch, ok := char.Handle.(*ble.Characteristic)
	if !ok || ch == nil {
		return nil, fmt.Errorf("characteristic %s was not discovered by this adapter", char.Key())
	}
	return ch, nil
}

func parseUUIDs(uuids []string) ([]ble.UUID, error) {
	if len(uuids) == 0 {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	var errs []error
	for _, u := range uuids {
		parsed, err := ble.Parse(u)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid UUID %q: %w", u, err))
			continue
		}
		out = append(out, parsed)
	}
	return out, errors.Join(errs...)
}
