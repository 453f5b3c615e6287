package session

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
)

// ConnectionState is the link state of a session.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateTimedOut
	StateDisconnecting
	StateForceDisconnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateTimedOut:
		return "timed out"
	case StateDisconnecting:
		return "disconnecting"
	case StateForceDisconnected:
		return "force disconnected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int(s))
	}
}

// EventKind discriminates connection events.
type EventKind int

const (
	EventConnect EventKind = iota
	EventTimeout
	EventDisconnect
	EventForceDisconnect
	EventGiveUp
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventTimeout:
		return "timeout"
	case EventDisconnect:
		return "disconnect"
	case EventForceDisconnect:
		return "force disconnect"
	case EventGiveUp:
		return "give up"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// ConnectionEvent is emitted on every connection state transition that matters
// to callers.
type ConnectionEvent struct {
	Kind    EventKind
	Attempt uint64 // connection attempt sequence the event belongs to
	Err     error  // cause, for Timeout, Disconnect, GiveUp and Failed
	At      time.Time
}

func (e ConnectionEvent) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (attempt %d): %v", e.Kind, e.Attempt, e.Err)
	}
	return fmt.Sprintf("%s (attempt %d)", e.Kind, e.Attempt)
}

// settles reports whether the event ends the wait of a Connect caller.
func (e ConnectionEvent) settles() bool {
	switch e.Kind {
	case EventConnect, EventGiveUp, EventFailed, EventForceDisconnect:
		return true
	default:
		return false
	}
}

// Snapshot is a consistent view of the connection state machine.
type Snapshot struct {
	State           ConnectionState
	Attempt         uint64
	TimeoutCount    uint32
	DisconnectCount uint32
	Policy          ConnectionPolicy
}

// ConnectionStats summarizes link uptime.
type ConnectionStats struct {
	ConnectedAt     time.Time
	DisconnectedAt  time.Time
	ConnectionCount int

	// Connected is the duration of the current link, or of the last one if
	// the session is not connected.
	Connected time.Duration

	// TotalConnected sums every link, including the current one.
	TotalConnected time.Duration
}

// connectionMachine drives connect, timeout, retry and disconnect handling.
// Every connect call to the adapter carries an attempt sequence; link events of
// older attempts are discarded. All methods are executor-only.
type connectionMachine struct {
	s *Session

	state           ConnectionState
	attempt         uint64
	policy          ConnectionPolicy
	timeoutCount    uint32
	disconnectCount uint32
	timer           Timer

	connectWaiters    []*Future[ConnectionEvent]
	disconnectWaiters []*Future[struct{}]

	connectedAt     time.Time
	disconnectedAt  time.Time
	connectionCount int
	totalConnected  time.Duration
}

func newConnectionMachine(s *Session) *connectionMachine {
	return &connectionMachine{s: s, policy: DefaultConnectionPolicy()}
}

func (m *connectionMachine) connected() bool {
	return m.state == StateConnected
}

func (m *connectionMachine) logger() *logrus.Entry {
	return m.s.logger.WithFields(logrus.Fields{
		"peripheral": m.s.peripheral.ID,
		"attempt":    m.attempt,
	})
}

func (m *connectionMachine) setState(state ConnectionState) {
	if m.state == state {
		return
	}
	m.logger().WithFields(logrus.Fields{"from": m.state, "to": state}).Debug("Connection state changed")
	m.state = state
}

func (m *connectionMachine) snapshot() Snapshot {
	return Snapshot{
		State:           m.state,
		Attempt:         m.attempt,
		TimeoutCount:    m.timeoutCount,
		DisconnectCount: m.disconnectCount,
		Policy:          m.policy,
	}
}

func (m *connectionMachine) stats() ConnectionStats {
	st := ConnectionStats{
		ConnectedAt:     m.connectedAt,
		DisconnectedAt:  m.disconnectedAt,
		ConnectionCount: m.connectionCount,
		TotalConnected:  m.totalConnected,
	}
	if m.connectedAt.IsZero() {
		return st
	}
	if m.state == StateConnected {
		st.Connected = m.s.clock.Now().Sub(m.connectedAt)
		st.TotalConnected += st.Connected
	} else {
		st.Connected = m.disconnectedAt.Sub(m.connectedAt)
	}
	return st
}

// connect starts a new attempt chain. Only valid while disconnected.
func (m *connectionMachine) connect(policy ConnectionPolicy, f *Future[ConnectionEvent]) {
	if m.state != StateDisconnected {
		f.complete(ConnectionEvent{}, fmt.Errorf("%w: state is %s", device.ErrAlreadyConnected, m.state))
		return
	}
	m.policy = policy.withDefaults()
	m.connectWaiters = append(m.connectWaiters, f)
	m.beginAttempt()
}

func (m *connectionMachine) beginAttempt() {
	m.attempt++
	attempt := m.attempt
	m.setState(StateConnecting)

	m.timer = m.s.clock.AfterFunc(m.policy.ConnectionTimeout, func() {
		m.s.exec.post(func() { m.onConnectTimeout(attempt) })
	})

	m.logger().WithField("timeout", m.policy.ConnectionTimeout).Info("Connecting")
	m.s.adapter.Connect(m.s.peripheral, device.LinkHandler{
		Connected: func() {
			m.s.exec.post(func() { m.onConnected(attempt) })
		},
		Failed: func(err error) {
			m.s.exec.post(func() { m.onFailed(attempt, err) })
		},
		Disconnected: func(err error) {
			m.s.exec.post(func() { m.onDisconnected(attempt, err) })
		},
		ValueUpdated: func(char device.CharacteristicInfo, data []byte) {
			payload := append([]byte(nil), data...)
			m.s.exec.post(func() { m.s.onValueUpdated(attempt, char, payload) })
		},
	})
}

func (m *connectionMachine) current(attempt uint64, state ConnectionState) bool {
	return attempt == m.attempt && m.state == state
}

func (m *connectionMachine) onConnected(attempt uint64) {
	if !m.current(attempt, StateConnecting) {
		m.logger().WithField("stale_attempt", attempt).Debug("Discarding stale connect confirmation")
		if attempt == m.attempt && m.state == StateDisconnected {
			// the attempt was abandoned but the link came up anyway
			m.s.adapter.Disconnect(m.s.peripheral)
		}
		return
	}
	stopTimer(&m.timer)
	m.setState(StateConnected)
	m.timeoutCount = 0
	m.disconnectCount = 0

	now := m.s.clock.Now()
	m.connectedAt = now
	m.disconnectedAt = time.Time{}
	m.connectionCount++

	m.logger().Info("Connected")
	// discovery is published before connect waiters are released
	m.s.onLinkUp()
	m.emit(EventConnect, nil)
}

func (m *connectionMachine) onConnectTimeout(attempt uint64) {
	if !m.current(attempt, StateConnecting) {
		return
	}
	m.timer = nil
	m.setState(StateTimedOut)
	m.s.adapter.Disconnect(m.s.peripheral)

	if m.policy.TimeoutRetryLimit.allows(m.timeoutCount) {
		m.timeoutCount++
		m.logger().WithField("timeouts", m.timeoutCount).Warn("Connection attempt timed out, retrying")
		m.emit(EventTimeout, device.ErrTimeout)
		m.beginAttempt()
		return
	}

	m.logger().WithField("limit", m.policy.TimeoutRetryLimit).Warn("Connection timeout retry limit reached")
	m.timeoutCount = 0
	m.setState(StateDisconnected)
	m.emit(EventGiveUp, fmt.Errorf("%w: %w", device.ErrGiveUp, device.ErrTimeout))
}

func (m *connectionMachine) onFailed(attempt uint64, err error) {
	if !m.current(attempt, StateConnecting) {
		return
	}
	stopTimer(&m.timer)
	m.setState(StateDisconnected)
	m.logger().WithError(err).Warn("Connection attempt failed")
	m.emit(EventFailed, m.connectError(err))
}

func (m *connectionMachine) connectError(err error) error {
	if err == nil {
		err = device.ErrDisconnected
	}
	return device.NewAdapterError("connect", device.NormalizeError(err))
}

func (m *connectionMachine) onDisconnected(attempt uint64, err error) {
	if attempt != m.attempt {
		return
	}
	switch m.state {
	case StateConnecting:
		// link dropped before it was confirmed
		m.onFailed(attempt, err)
	case StateConnected:
		m.onLinkLost(err)
	case StateForceDisconnected:
		m.finishForceDisconnect()
	}
}

// onLinkLost handles an unexpected drop of an established link.
func (m *connectionMachine) onLinkLost(err error) {
	m.setState(StateDisconnecting)
	m.markDisconnected()

	cause := device.ErrDisconnected
	if err != nil {
		cause = device.NewAdapterError("link", device.NormalizeError(err))
	}
	m.s.onLinkDown(device.ErrDisconnected)

	if m.policy.DisconnectRetryLimit.allows(m.disconnectCount) {
		m.disconnectCount++
		m.logger().WithError(cause).WithField("disconnects", m.disconnectCount).Warn("Link lost, reconnecting")
		m.emit(EventDisconnect, cause)
		m.beginAttempt()
		return
	}

	m.logger().WithField("limit", m.policy.DisconnectRetryLimit).Warn("Disconnect retry limit reached")
	m.disconnectCount = 0
	m.setState(StateDisconnected)
	m.emit(EventGiveUp, fmt.Errorf("%w: %w", device.ErrGiveUp, cause))
}

// disconnect handles a caller-initiated disconnect.
func (m *connectionMachine) disconnect(f *Future[struct{}]) {
	switch m.state {
	case StateConnected:
		m.setState(StateForceDisconnected)
		m.markDisconnected()
		m.s.onLinkDown(device.ErrDisconnected)
		m.disconnectWaiters = append(m.disconnectWaiters, f)

		attempt := m.attempt
		m.timer = m.s.clock.AfterFunc(m.policy.DisconnectTimeout, func() {
			m.s.exec.post(func() { m.onDisconnectTimeout(attempt) })
		})
		m.logger().Info("Disconnecting")
		m.s.adapter.Disconnect(m.s.peripheral)

	case StateConnecting:
		stopTimer(&m.timer)
		m.s.adapter.Disconnect(m.s.peripheral)
		m.disconnectWaiters = append(m.disconnectWaiters, f)
		m.finishForceDisconnect()

	case StateForceDisconnected:
		m.disconnectWaiters = append(m.disconnectWaiters, f)

	default:
		f.complete(struct{}{}, nil)
	}
}

func (m *connectionMachine) onDisconnectTimeout(attempt uint64) {
	if !m.current(attempt, StateForceDisconnected) {
		return
	}
	m.timer = nil
	m.logger().WithField("timeout", m.policy.DisconnectTimeout).Warn("Adapter did not confirm disconnect")
	m.finishForceDisconnect()
}

func (m *connectionMachine) finishForceDisconnect() {
	stopTimer(&m.timer)
	m.setState(StateDisconnected)
	m.logger().Info("Disconnected")
	m.emit(EventForceDisconnect, nil)

	waiters := m.disconnectWaiters
	m.disconnectWaiters = nil
	for _, f := range waiters {
		f.complete(struct{}{}, nil)
	}
}

// terminate tears the link down without waiting for the adapter.
func (m *connectionMachine) terminate() {
	switch m.state {
	case StateConnected:
		m.markDisconnected()
		m.s.onLinkDown(device.ErrSessionClosed)
		fallthrough
	case StateConnecting, StateForceDisconnected:
		m.s.adapter.Disconnect(m.s.peripheral)
		m.finishForceDisconnect()
	}
	for _, f := range m.connectWaiters {
		f.complete(ConnectionEvent{}, device.ErrSessionClosed)
	}
	m.connectWaiters = nil
}

func (m *connectionMachine) markDisconnected() {
	now := m.s.clock.Now()
	m.disconnectedAt = now
	m.totalConnected += now.Sub(m.connectedAt)
}

func (m *connectionMachine) emit(kind EventKind, err error) {
	ev := ConnectionEvent{Kind: kind, Attempt: m.attempt, Err: err, At: m.s.clock.Now()}
	m.s.record(ev)

	if !ev.settles() {
		return
	}
	var result error
	switch kind {
	case EventGiveUp, EventFailed:
		result = err
	case EventForceDisconnect:
		result = device.ErrDisconnected
	}
	waiters := m.connectWaiters
	m.connectWaiters = nil
	for _, f := range waiters {
		f.complete(ev, result)
	}
}
