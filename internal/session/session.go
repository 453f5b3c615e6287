package session

import (
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/codec"
	"github.com/srg/gattsession/internal/device"
)

// Session is the GATT client session with one peripheral. It serializes every
// caller request, adapter callback and timer expiry on a private executor, so
// its state is never observed half-updated.
//
// All methods are safe for concurrent use and never block on the peripheral;
// results are delivered through Futures and Streams.
type Session struct {
	adapter    device.Adapter
	peripheral device.Peripheral
	opts       Options
	logger     *logrus.Logger
	clock      Clock
	codecs     *codec.Registry

	exec      *executor
	conn      *connectionMachine
	discovery *discoveryPipeline
	rssi      *rssiMonitor
	events    *hub[ConnectionEvent]
	journal   *eventJournal

	characteristics *hashmap.Map[string, *CharacteristicCoordinator]
	services        atomic.Pointer[DiscoveryResult]
	autoDiscovery   atomic.Pointer[Future[*DiscoveryResult]]
	closed          atomic.Bool
}

// New creates a disconnected session. Nothing is sent to the adapter until
// Connect is called.
func New(adapter device.Adapter, peripheral device.Peripheral, opts ...Option) *Session {
	st := newSettings(opts)
	s := &Session{
		adapter:         adapter,
		peripheral:      peripheral,
		opts:            st.Options,
		logger:          st.logger,
		clock:           st.clock,
		codecs:          st.codecs,
		characteristics: hashmap.New[string, *CharacteristicCoordinator](),
	}
	s.exec = newExecutor("gatt-session:"+peripheral.ID, s.logger)
	s.conn = newConnectionMachine(s)
	s.discovery = &discoveryPipeline{s: s}
	s.rssi = newRSSIMonitor(s)
	s.events = newHub[ConnectionEvent](s.exec, s.opts.EventBuffer)
	s.journal = newEventJournal(s.opts.HistorySize)
	return s
}

// Peripheral returns the peripheral this session talks to.
func (s *Session) Peripheral() device.Peripheral { return s.peripheral }

// Options returns the effective tunables.
func (s *Session) Options() Options { return s.opts }

// Connect starts a connection attempt chain governed by policy. The future
// resolves with the first settling event of the chain: Connect (nil error),
// GiveUp, Failed or ForceDisconnect (non-nil error). Timeout events retry
// within the chain without resolving it.
//
// Fails with device.ErrAlreadyConnected unless the session is disconnected.
func (s *Session) Connect(policy ConnectionPolicy) *Future[ConnectionEvent] {
	f := newFuture[ConnectionEvent]()
	submit(s, f, func() { s.conn.connect(policy, f) })
	return f
}

// Reconnect starts a new attempt chain with the policy of the previous one.
func (s *Session) Reconnect() *Future[ConnectionEvent] {
	f := newFuture[ConnectionEvent]()
	submit(s, f, func() { s.conn.connect(s.conn.policy, f) })
	return f
}

// Disconnect tears the link down. Pending operations fail with
// device.ErrDisconnected immediately; the future resolves once the adapter
// confirms, or after the policy's DisconnectTimeout.
func (s *Session) Disconnect() *Future[struct{}] {
	f := newFuture[struct{}]()
	submit(s, f, func() { s.conn.disconnect(f) })
	return f
}

// Terminate disconnects without waiting for the adapter, ends every stream and
// stops the executor. Later requests fail with device.ErrSessionClosed.
func (s *Session) Terminate() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.exec.post(func() {
		s.conn.terminate()
		s.rssi.linkDown(device.ErrSessionClosed)
		s.rssi.samples.retire()
		s.events.retire()
		s.logger.WithField("peripheral", s.peripheral.ID).Debug("Session terminated")
	})
	s.exec.close()
	<-s.exec.done
}

// Flush returns once every request, callback and timer expiry queued before
// the call has been processed.
func (s *Session) Flush() {
	s.exec.call(func() {})
}

// Events returns a stream of connection events. The stream only observes
// events emitted after the call.
func (s *Session) Events() *Stream[ConnectionEvent] {
	return s.events.subscribe()
}

// History returns the most recent connection events, oldest first.
func (s *Session) History() []ConnectionEvent {
	var events []ConnectionEvent
	s.exec.call(func() {
		var err error
		if events, err = s.journal.snapshot(); err != nil {
			s.logger.WithError(err).Warn("Failed to read connection history")
		}
	})
	return events
}

// State returns a snapshot of the connection state machine.
func (s *Session) State() Snapshot {
	var snap Snapshot
	if !s.exec.call(func() { snap = s.conn.snapshot() }) {
		return Snapshot{State: StateDisconnected}
	}
	return snap
}

// Stats returns uptime statistics.
func (s *Session) Stats() ConnectionStats {
	var st ConnectionStats
	s.exec.call(func() { st = s.conn.stats() })
	return st
}

// DiscoverAllServices runs a full discovery. Fails with
// device.ErrDiscoveryInProgress if one is already running.
func (s *Session) DiscoverAllServices() *Future[*DiscoveryResult] {
	return s.DiscoverServices()
}

// DiscoverServices discovers the given services, or all of them if none are given.
func (s *Session) DiscoverServices(serviceUUIDs ...string) *Future[*DiscoveryResult] {
	filter := device.NormalizeUUIDs(serviceUUIDs)
	f := newFuture[*DiscoveryResult]()
	submit(s, f, func() { s.discovery.start(filter, f) })
	return f
}

// Discovery returns the discovery started automatically by the latest
// connect, or nil if none was started.
func (s *Session) Discovery() *Future[*DiscoveryResult] {
	return s.autoDiscovery.Load()
}

// Services returns the result of the latest successful discovery, or nil.
func (s *Session) Services() *DiscoveryResult {
	return s.services.Load()
}

// Characteristic returns the coordinator of a discovered characteristic.
func (s *Session) Characteristic(serviceUUID, charUUID string) (*CharacteristicCoordinator, error) {
	if c, ok := s.characteristics.Get(device.CharacteristicKey(serviceUUID, charUUID)); ok {
		return c, nil
	}
	if result := s.services.Load(); result != nil {
		if _, ok := result.Service(serviceUUID); !ok {
			return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
		}
	}
	return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
}

// Characteristics returns every discovered characteristic in discovery order.
func (s *Session) Characteristics() []*CharacteristicCoordinator {
	result := s.services.Load()
	if result == nil {
		return nil
	}
	var out []*CharacteristicCoordinator
	for _, svc := range result.Services() {
		for _, ch := range svc.Characteristics() {
			if c, ok := s.characteristics.Get(ch.Key()); ok {
				out = append(out, c)
			}
		}
	}
	return out
}

// ReadRSSI reads the signal strength of the current link.
func (s *Session) ReadRSSI() *Future[int] {
	f := newFuture[int]()
	submit(s, f, func() {
		s.rssi.read(func(rssi int, err error) { f.complete(rssi, err) })
	})
	return f
}

// StartPollingRSSI samples RSSI every period; a non-positive period selects
// Options.RSSIPollPeriod. The stream ends on
// StopPollingRSSI, link loss or Terminate. Failed samples are skipped.
func (s *Session) StartPollingRSSI(period time.Duration) *Stream[int] {
	var stream *Stream[int]
	if !s.exec.call(func() { stream = s.rssi.startPolling(period) }) {
		stream = newStream[int](1)
		stream.finish()
	}
	return stream
}

// StopPollingRSSI ends RSSI polling.
func (s *Session) StopPollingRSSI() {
	s.exec.post(s.rssi.stopPolling)
}

// submit queues fn, or fails f if the session is closed.
func submit[T any](s *Session, f *Future[T], fn func()) {
	if s.closed.Load() || !s.exec.post(fn) {
		var zero T
		f.complete(zero, device.ErrSessionClosed)
	}
}

func (s *Session) timeout(d time.Duration) time.Duration {
	if d == 0 {
		return s.opts.OperationTimeout
	}
	return d
}

// record journals and broadcasts a connection event. Executor-only.
func (s *Session) record(ev ConnectionEvent) {
	if err := s.journal.append(ev); err != nil {
		s.logger.WithError(err).Warn("Failed to journal connection event")
	}
	if dropped := s.events.broadcast(ev); dropped > 0 {
		s.logger.WithField("dropped", dropped).Warn("Event stream overflow, oldest events discarded")
	}
}

// onLinkUp runs after every successful connect. Executor-only.
func (s *Session) onLinkUp() {
	if s.opts.ManualDiscovery {
		s.autoDiscovery.Store(nil)
		return
	}
	f := newFuture[*DiscoveryResult]()
	s.autoDiscovery.Store(f)
	s.discovery.start(nil, f)
}

// onLinkDown invalidates everything bound to the link. Executor-only.
func (s *Session) onLinkDown(err error) {
	s.discovery.abort(err)
	s.rssi.linkDown(err)

	var keys []string
	s.characteristics.Range(func(key string, c *CharacteristicCoordinator) bool {
		c.invalidate(err)
		keys = append(keys, key)
		return true
	})
	for _, key := range keys {
		s.characteristics.Del(key)
	}
	s.services.Store(nil)
}

// install publishes a discovery result and creates coordinators for new
// characteristics. Coordinators of characteristics discovered earlier on the
// same link are kept. Executor-only.
func (s *Session) install(result *DiscoveryResult) {
	merged := result
	if prev := s.services.Load(); prev != nil {
		merged = mergeResults(prev, result)
	}
	for _, svc := range result.Services() {
		for _, ch := range svc.Characteristics() {
			if _, ok := s.characteristics.Get(ch.Key()); !ok {
				s.characteristics.Set(ch.Key(), newCharacteristicCoordinator(s, ch))
			}
		}
	}
	s.services.Store(merged)
}

// mergeResults appends services of next that prev does not know yet.
func mergeResults(prev, next *DiscoveryResult) *DiscoveryResult {
	out := newDiscoveryResult(next.charName)
	for _, r := range []*DiscoveryResult{prev, next} {
		for _, svc := range r.Services() {
			if _, ok := out.services.Get(svc.Info.UUID); !ok {
				out.services.Set(svc.Info.UUID, svc)
			}
		}
	}
	return out
}

// onValueUpdated routes a notification to its coordinator. Executor-only.
func (s *Session) onValueUpdated(attempt uint64, char device.CharacteristicInfo, data []byte) {
	if attempt != s.conn.attempt || !s.conn.connected() {
		return
	}
	c, ok := s.characteristics.Get(device.CharacteristicKey(char.ServiceUUID, char.UUID))
	if !ok {
		s.logger.WithField("characteristic", char.Key()).Debug("Dropping update for unknown characteristic")
		return
	}
	c.deliver(data)
}

// IsClosed reports whether Terminate was called.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}
