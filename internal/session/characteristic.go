package session

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/codec"
	"github.com/srg/gattsession/internal/device"
)

// CharacteristicCoordinator owns the operations of one discovered characteristic.
// It is created by discovery and torn down when the link goes away; a
// coordinator obtained before a disconnect fails every later request with
// device.ErrDisconnected.
//
// All request methods return immediately. Capability and availability checks
// are evaluated before anything is queued, so unsupported requests and
// requests on a torn-down coordinator never reach the adapter.
type CharacteristicCoordinator struct {
	s    *Session
	info device.CharacteristicInfo
	name string

	// executor-only
	readSlot   *OperationSlot[[]byte]
	writeSlot  *OperationSlot[[]byte]
	notifySlot *OperationSlot[[]byte]
	updates    *hub[[]byte]

	available atomic.Bool
	notifying atomic.Bool
}

func newCharacteristicCoordinator(s *Session, info device.CharacteristicInfo) *CharacteristicCoordinator {
	c := &CharacteristicCoordinator{
		s:       s,
		info:    info,
		name:    s.codecs.CharacteristicName(info.UUID),
		updates: newHub[[]byte](s.exec, s.opts.UpdateBuffer),
	}
	c.available.Store(true)
	return c
}

// UUID returns the normalized characteristic UUID.
func (c *CharacteristicCoordinator) UUID() string { return c.info.UUID }

// ServiceUUID returns the normalized UUID of the owning service.
func (c *CharacteristicCoordinator) ServiceUUID() string { return c.info.ServiceUUID }

// Name returns the registered profile name, or "" for unknown characteristics.
func (c *CharacteristicCoordinator) Name() string { return c.name }

// Properties returns the capability bitset reported by discovery.
func (c *CharacteristicCoordinator) Properties() device.Properties { return c.info.Properties }

func (c *CharacteristicCoordinator) CanRead() bool   { return c.info.Properties.CanRead() }
func (c *CharacteristicCoordinator) CanWrite() bool  { return c.info.Properties.CanWrite() }
func (c *CharacteristicCoordinator) CanNotify() bool { return c.info.Properties.CanNotify() }

// IsNotifying reports whether the peripheral acknowledged notifications.
func (c *CharacteristicCoordinator) IsNotifying() bool { return c.notifying.Load() }

func (c *CharacteristicCoordinator) String() string {
	if c.name != "" {
		return fmt.Sprintf("%s (%s)", c.name, c.info.Key())
	}
	return c.info.Key()
}

// Read requests the current value. A zero timeout selects the session default;
// a negative timeout waits for the adapter indefinitely.
func (c *CharacteristicCoordinator) Read(timeout time.Duration) *Future[[]byte] {
	if !c.CanRead() {
		return failedFuture[[]byte](c.opError(OpRead, 0, device.ErrNotSupported))
	}
	if !c.available.Load() {
		return failedFuture[[]byte](c.opError(OpRead, 0, device.ErrDisconnected))
	}
	f := newFuture[[]byte]()
	submit(c.s, f, func() {
		c.read(timeout, func(_ uint64, data []byte, err error) { f.complete(data, err) })
	})
	return f
}

// Write writes data with response. Requires the Write property.
func (c *CharacteristicCoordinator) Write(data []byte, timeout time.Duration) *Future[struct{}] {
	return c.write(data, true, timeout)
}

// WriteWithoutResponse requires the WriteWithoutResponse property. The future
// resolves once the adapter has accepted the payload.
func (c *CharacteristicCoordinator) WriteWithoutResponse(data []byte, timeout time.Duration) *Future[struct{}] {
	return c.write(data, false, timeout)
}

// StartNotifying subscribes to value updates. Requires Notify or Indicate.
func (c *CharacteristicCoordinator) StartNotifying(timeout time.Duration) *Future[struct{}] {
	return c.setNotify(true, timeout)
}

// StopNotifying unsubscribes. Update streams end once the peripheral acknowledges.
func (c *CharacteristicCoordinator) StopNotifying(timeout time.Duration) *Future[struct{}] {
	return c.setNotify(false, timeout)
}

// Updates returns a stream of notification payloads. The stream ends when
// notifications are stopped, the link is lost or the session terminates.
func (c *CharacteristicCoordinator) Updates() *Stream[[]byte] {
	return c.updates.subscribe()
}

// ReadValue reads and decodes the value with the registered codec.
func (c *CharacteristicCoordinator) ReadValue(timeout time.Duration) *Future[any] {
	if !c.CanRead() {
		return failedFuture[any](c.opError(OpRead, 0, device.ErrNotSupported))
	}
	if !c.available.Load() {
		return failedFuture[any](c.opError(OpRead, 0, device.ErrDisconnected))
	}
	f := newFuture[any]()
	submit(c.s, f, func() {
		c.read(timeout, func(seq uint64, data []byte, err error) {
			if err != nil {
				f.complete(nil, err)
				return
			}
			v, err := c.s.codecs.Decode(c.info.UUID, data)
			if err != nil {
				f.complete(nil, c.opError(OpRead, seq, err))
				return
			}
			f.complete(v, nil)
		})
	})
	return f
}

// WriteValue encodes v with the registered codec and writes it, with response
// when the characteristic supports it. Values the codec cannot represent fail
// with device.ErrNotSerializable before the adapter is involved.
func (c *CharacteristicCoordinator) WriteValue(v any, timeout time.Duration) *Future[struct{}] {
	data, err := c.s.codecs.Encode(c.info.UUID, v)
	if err != nil {
		return failedFuture[struct{}](c.opError(OpWrite, 0, err))
	}
	return c.write(data, c.info.Properties.Has(device.PropWrite), timeout)
}

// WriteString is WriteValue for the string-map form produced by StringValue.
func (c *CharacteristicCoordinator) WriteString(values map[string]string, timeout time.Duration) *Future[struct{}] {
	data, err := c.s.codecs.FromString(c.info.UUID, values)
	if err != nil {
		return failedFuture[struct{}](c.opError(OpWrite, 0, err))
	}
	return c.write(data, c.info.Properties.Has(device.PropWrite), timeout)
}

// StringValue renders a raw payload of this characteristic as a string map.
func (c *CharacteristicCoordinator) StringValue(data []byte) (map[string]string, error) {
	return c.s.codecs.StringValue(c.info.UUID, data)
}

// Codec returns the codec used by the typed accessors.
func (c *CharacteristicCoordinator) Codec() codec.Codec {
	return c.s.codecs.CodecFor(c.info.UUID)
}

func (c *CharacteristicCoordinator) write(data []byte, withResponse bool, timeout time.Duration) *Future[struct{}] {
	required := device.PropWriteWithoutResponse
	if withResponse {
		required = device.PropWrite
	}
	if !c.info.Properties.Has(required) {
		return failedFuture[struct{}](c.opError(OpWrite, 0, device.ErrNotSupported))
	}
	if !c.available.Load() {
		return failedFuture[struct{}](c.opError(OpWrite, 0, device.ErrDisconnected))
	}

	payload := append([]byte(nil), data...)
	f := newFuture[struct{}]()
	submit(c.s, f, func() {
		if !c.ready(OpWrite, f) {
			return
		}
		seq := c.begin(OpWrite, timeout, func(_ []byte, err error) { f.complete(struct{}{}, err) })
		c.logger(OpWrite, seq).WithField("bytes", len(payload)).Debug("Writing characteristic")

		c.s.adapter.WriteValue(c.s.peripheral, c.info, payload, withResponse, func(err error) {
			c.s.exec.post(func() { c.finish(OpWrite, seq, nil, err) })
		})
	})
	return f
}

func (c *CharacteristicCoordinator) setNotify(enabled bool, timeout time.Duration) *Future[struct{}] {
	if !c.CanNotify() {
		return failedFuture[struct{}](c.opError(OpNotify, 0, device.ErrNotSupported))
	}
	if !c.available.Load() {
		return failedFuture[struct{}](c.opError(OpNotify, 0, device.ErrDisconnected))
	}
	f := newFuture[struct{}]()
	submit(c.s, f, func() {
		if !c.ready(OpNotify, f) {
			return
		}
		seq := c.begin(OpNotify, timeout, func(_ []byte, err error) {
			if err == nil {
				c.notifyAcknowledged(enabled)
			}
			f.complete(struct{}{}, err)
		})
		c.logger(OpNotify, seq).WithField("enabled", enabled).Debug("Changing notification state")

		c.s.adapter.SetNotify(c.s.peripheral, c.info, enabled, func(err error) {
			c.s.exec.post(func() { c.finish(OpNotify, seq, nil, err) })
		})
	})
	return f
}

// read issues a read on the executor and hands the raw outcome to complete.
func (c *CharacteristicCoordinator) read(timeout time.Duration, complete func(seq uint64, data []byte, err error)) {
	if !c.available.Load() || !c.s.conn.connected() {
		complete(0, nil, c.opError(OpRead, 0, device.ErrDisconnected))
		return
	}
	var seq uint64
	seq = c.begin(OpRead, timeout, func(data []byte, err error) { complete(seq, data, err) })
	c.logger(OpRead, seq).Debug("Reading characteristic")

	c.s.adapter.ReadValue(c.s.peripheral, c.info, func(data []byte, err error) {
		c.s.exec.post(func() { c.finish(OpRead, seq, data, err) })
	})
}

// finish routes an adapter completion to its slot.
func (c *CharacteristicCoordinator) finish(kind OperationKind, seq uint64, data []byte, err error) {
	slot := c.slot(kind)
	latency, _ := slot.Elapsed(seq, c.s.clock.Now())
	if !slot.resolve(seq, data, device.NewAdapterError(kind.String(), device.NormalizeError(err))) {
		c.logger(kind, seq).Debug("Discarding stale completion")
		return
	}
	c.logger(kind, seq).WithField("latency", latency).Debug("Operation completed")
}

func (c *CharacteristicCoordinator) expirer(kind OperationKind) func(uint64) {
	return func(seq uint64) {
		c.s.exec.post(func() {
			if c.slot(kind).expire(seq) {
				c.logger(kind, seq).Warn("Operation timed out")
			}
		})
	}
}

// begin issues a request on the slot of kind. Errors handed to complete carry
// the request's own sequence number.
func (c *CharacteristicCoordinator) begin(kind OperationKind, timeout time.Duration, complete func([]byte, error)) uint64 {
	var seq uint64
	seq = c.slot(kind).begin(c.s.clock, c.s.timeout(timeout), func(data []byte, err error) {
		if err != nil {
			err = c.opError(kind, seq, err)
		}
		complete(data, err)
	}, c.expirer(kind))
	return seq
}

func (c *CharacteristicCoordinator) ready(kind OperationKind, f *Future[struct{}]) bool {
	if c.available.Load() && c.s.conn.connected() {
		return true
	}
	f.complete(struct{}{}, c.opError(kind, 0, device.ErrDisconnected))
	return false
}

// slot returns the slot for kind, creating it on first use.
func (c *CharacteristicCoordinator) slot(kind OperationKind) *OperationSlot[[]byte] {
	var p **OperationSlot[[]byte]
	switch kind {
	case OpRead:
		p = &c.readSlot
	case OpWrite:
		p = &c.writeSlot
	default:
		p = &c.notifySlot
	}
	if *p == nil {
		*p = newOperationSlot[[]byte](kind)
	}
	return *p
}

func (c *CharacteristicCoordinator) notifyAcknowledged(enabled bool) {
	c.notifying.Store(enabled)
	if !enabled {
		c.updates.closeAll()
	}
}

// deliver forwards a notification payload to subscribers. Executor-only.
func (c *CharacteristicCoordinator) deliver(data []byte) {
	if !c.notifying.Load() {
		c.s.logger.WithField("characteristic", c.info.Key()).Debug("Dropping update received while not notifying")
		return
	}
	payload := append([]byte(nil), data...)
	if dropped := c.updates.broadcast(payload); dropped > 0 {
		c.s.logger.WithFields(logrus.Fields{
			"characteristic": c.info.Key(),
			"dropped":        dropped,
		}).Warn("Update stream overflow, oldest values discarded")
	}
}

// invalidate fails every pending request and ends update streams. Executor-only.
func (c *CharacteristicCoordinator) invalidate(err error) {
	c.available.Store(false)
	for _, slot := range []*OperationSlot[[]byte]{c.readSlot, c.writeSlot, c.notifySlot} {
		if slot != nil {
			slot.cancelAll(err)
		}
	}
	c.notifying.Store(false)
	c.updates.retire()
}

func (c *CharacteristicCoordinator) opError(kind OperationKind, seq uint64, err error) error {
	return &device.OperationError{
		Op:          kind.String(),
		ServiceUUID: c.info.ServiceUUID,
		CharUUID:    c.info.UUID,
		Sequence:    seq,
		Err:         err,
	}
}

func (c *CharacteristicCoordinator) logger(kind OperationKind, seq uint64) *logrus.Entry {
	return c.s.logger.WithFields(logrus.Fields{
		"characteristic": c.info.Key(),
		"op":             kind.String(),
		"seq":            seq,
	})
}
