package testutils

import (
	"fmt"
	"sync"

	"github.com/srg/gattsession/internal/device"
	"github.com/stretchr/testify/mock"
)

// ConnectCall records an Adapter.Connect invocation.
type ConnectCall struct {
	Peripheral device.Peripheral
	Handler    device.LinkHandler
}

// ServicesCall records an Adapter.DiscoverServices invocation.
type ServicesCall struct {
	Filter []string
	Done   func([]device.ServiceInfo, error)
}

// CharacteristicsCall records an Adapter.DiscoverCharacteristics invocation.
type CharacteristicsCall struct {
	Service device.ServiceInfo
	Done    func([]device.CharacteristicInfo, error)
}

// ReadCall records an Adapter.ReadValue invocation.
type ReadCall struct {
	Char device.CharacteristicInfo
	Done func([]byte, error)
}

// WriteCall records an Adapter.WriteValue invocation.
type WriteCall struct {
	Char         device.CharacteristicInfo
	Data         []byte
	WithResponse bool
	Done         func(error)
}

// NotifyCall records an Adapter.SetNotify invocation.
type NotifyCall struct {
	Char    device.CharacteristicInfo
	Enabled bool
	Done    func(error)
}

// RSSICall records an Adapter.ReadRSSI invocation.
type RSSICall struct {
	Done func(int, error)
}

// FakeAdapter is a scriptable device.Adapter.
//
// Every call is recorded through the embedded testify mock (so
// AssertNumberOfCalls and AssertCalled work with plain arguments: peripheral
// ID, characteristic key, payload) and also kept together with its callback.
//
// In manual mode the test completes callbacks itself:
//
//	adapter := testutils.NewFakeAdapter()
//	s := session.New(adapter, p, session.WithClock(clock))
//	s.Connect(session.DefaultConnectionPolicy())
//	s.Flush()
//	adapter.ConfirmConnect()
//
// With a peripheral profile (see PeripheralBuilder.Build) the adapter answers
// every request asynchronously from the profile, like a real device would.
type FakeAdapter struct {
	mock.Mock

	mu       sync.Mutex
	profile  *DeviceProfileConfig
	values   map[string][]byte
	rssi     int
	connects []ConnectCall
	services []ServicesCall
	chars    []CharacteristicsCall
	reads    []ReadCall
	writes   []WriteCall
	notifies []NotifyCall
	rssiRead []RSSICall
}

// NewFakeAdapter creates an adapter in manual mode.
func NewFakeAdapter() *FakeAdapter {
	f := &FakeAdapter{values: make(map[string][]byte), rssi: -60}
	f.On("Connect", mock.Anything).Return().Maybe()
	f.On("Disconnect", mock.Anything).Return().Maybe()
	f.On("DiscoverServices", mock.Anything, mock.Anything).Return().Maybe()
	f.On("DiscoverCharacteristics", mock.Anything, mock.Anything).Return().Maybe()
	f.On("ReadValue", mock.Anything, mock.Anything).Return().Maybe()
	f.On("WriteValue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	f.On("SetNotify", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	f.On("ReadRSSI", mock.Anything).Return().Maybe()
	return f
}

func (f *FakeAdapter) Connect(p device.Peripheral, h device.LinkHandler) {
	f.Called(p.ID)
	f.mu.Lock()
	f.connects = append(f.connects, ConnectCall{Peripheral: p, Handler: h})
	auto := f.profile != nil
	f.mu.Unlock()

	if auto {
		go h.Connected()
	}
}

func (f *FakeAdapter) Disconnect(p device.Peripheral) {
	f.Called(p.ID)
	f.mu.Lock()
	auto := f.profile != nil
	var h device.LinkHandler
	if n := len(f.connects); n > 0 {
		h = f.connects[n-1].Handler
	}
	f.mu.Unlock()

	if auto && h.Disconnected != nil {
		go h.Disconnected(nil)
	}
}

func (f *FakeAdapter) DiscoverServices(p device.Peripheral, filter []string, done func([]device.ServiceInfo, error)) {
	f.Called(p.ID, filter)
	f.mu.Lock()
	f.services = append(f.services, ServicesCall{Filter: filter, Done: done})
	profile := f.profile
	f.mu.Unlock()

	if profile != nil {
		go done(profile.ServiceInfos(filter), nil)
	}
}

func (f *FakeAdapter) DiscoverCharacteristics(p device.Peripheral, service device.ServiceInfo, filter []string, done func([]device.CharacteristicInfo, error)) {
	f.Called(p.ID, service.UUID)
	f.mu.Lock()
	f.chars = append(f.chars, CharacteristicsCall{Service: service, Done: done})
	profile := f.profile
	f.mu.Unlock()

	if profile != nil {
		go done(profile.CharacteristicInfos(service.UUID), nil)
	}
}

func (f *FakeAdapter) ReadValue(p device.Peripheral, char device.CharacteristicInfo, done func([]byte, error)) {
	f.Called(p.ID, char.Key())
	f.mu.Lock()
	f.reads = append(f.reads, ReadCall{Char: char, Done: done})
	auto := f.profile != nil
	value, ok := f.values[char.Key()]
	value = append([]byte(nil), value...)
	f.mu.Unlock()

	if auto {
		if !ok {
			go done(nil, fmt.Errorf("characteristic %s has no value", char.Key()))
			return
		}
		go done(value, nil)
	}
}

func (f *FakeAdapter) WriteValue(p device.Peripheral, char device.CharacteristicInfo, data []byte, withResponse bool, done func(error)) {
	f.Called(p.ID, char.Key(), data, withResponse)
	f.mu.Lock()
	f.writes = append(f.writes, WriteCall{Char: char, Data: append([]byte(nil), data...), WithResponse: withResponse, Done: done})
	auto := f.profile != nil
	if auto {
		f.values[char.Key()] = append([]byte(nil), data...)
	}
	f.mu.Unlock()

	if auto {
		go done(nil)
	}
}

func (f *FakeAdapter) SetNotify(p device.Peripheral, char device.CharacteristicInfo, enabled bool, done func(error)) {
	f.Called(p.ID, char.Key(), enabled)
	f.mu.Lock()
	f.notifies = append(f.notifies, NotifyCall{Char: char, Enabled: enabled, Done: done})
	auto := f.profile != nil
	f.mu.Unlock()

	if auto {
		go done(nil)
	}
}

func (f *FakeAdapter) ReadRSSI(p device.Peripheral, done func(int, error)) {
	f.Called(p.ID)
	f.mu.Lock()
	f.rssiRead = append(f.rssiRead, RSSICall{Done: done})
	auto := f.profile != nil
	rssi := f.rssi
	f.mu.Unlock()

	if auto {
		go done(rssi, nil)
	}
}

// SetRSSI changes the value reported by automatic RSSI reads.
func (f *FakeAdapter) SetRSSI(rssi int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rssi = rssi
}

// Value returns the current value of a profile characteristic.
func (f *FakeAdapter) Value(serviceUUID, charUUID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.values[device.CharacteristicKey(serviceUUID, charUUID)]...)
}

// Connects returns the recorded Connect calls.
func (f *FakeAdapter) Connects() []ConnectCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ConnectCall(nil), f.connects...)
}

func (f *FakeAdapter) ServiceDiscoveries() []ServicesCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ServicesCall(nil), f.services...)
}

func (f *FakeAdapter) CharacteristicDiscoveries() []CharacteristicsCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]CharacteristicsCall(nil), f.chars...)
}

func (f *FakeAdapter) Reads() []ReadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ReadCall(nil), f.reads...)
}

func (f *FakeAdapter) Writes() []WriteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WriteCall(nil), f.writes...)
}

func (f *FakeAdapter) Notifies() []NotifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NotifyCall(nil), f.notifies...)
}

func (f *FakeAdapter) RSSIReads() []RSSICall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RSSICall(nil), f.rssiRead...)
}

// Link returns the handler of the n-th Connect call (0-based); a negative n
// counts from the end.
func (f *FakeAdapter) Link(n int) device.LinkHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n < 0 {
		n += len(f.connects)
	}
	if n < 0 || n >= len(f.connects) {
		panic(fmt.Sprintf("FakeAdapter: no connect call #%d (have %d)", n, len(f.connects)))
	}
	return f.connects[n].Handler
}

// ConfirmConnect reports the latest connect attempt as established.
func (f *FakeAdapter) ConfirmConnect() {
	f.Link(-1).Connected()
}

// FailConnect reports the latest connect attempt as failed.
func (f *FakeAdapter) FailConnect(err error) {
	f.Link(-1).Failed(err)
}

// DropLink reports the latest link as lost.
func (f *FakeAdapter) DropLink(err error) {
	f.Link(-1).Disconnected(err)
}

// Notify pushes a notification payload over the latest link.
func (f *FakeAdapter) Notify(serviceUUID, charUUID string, data []byte) {
	f.Link(-1).ValueUpdated(device.CharacteristicInfo{
		UUID:        device.NormalizeUUID(charUUID),
		ServiceUUID: device.NormalizeUUID(serviceUUID),
	}, data)
}

// CompleteDiscovery answers the latest service discovery and every
// characteristic discovery it triggers from profile. settle must wait until the
// session processed the answer, typically Session.Flush.
func (f *FakeAdapter) CompleteDiscovery(profile *DeviceProfileConfig, settle func()) {
	calls := f.ServiceDiscoveries()
	last := calls[len(calls)-1]
	answered := len(f.CharacteristicDiscoveries())

	last.Done(profile.ServiceInfos(last.Filter), nil)
	settle()

	for {
		chars := f.CharacteristicDiscoveries()
		if len(chars) == answered {
			return
		}
		for _, c := range chars[answered:] {
			c.Done(profile.CharacteristicInfos(c.Service.UUID), nil)
		}
		answered = len(chars)
		settle()
	}
}
