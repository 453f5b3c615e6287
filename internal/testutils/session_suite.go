//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/session"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// SessionSuite provides a session wired to a manual-mode FakeAdapter and a
// ManualClock, so every test drives adapter callbacks and time explicitly.
//
// Basic usage (Battery Service peripheral):
//
//	type ReadSuite struct {
//	    testutils.SessionSuite
//	}
//
//	func TestReadSuite(t *testing.T) {
//	    suite.Run(t, new(ReadSuite))
//	}
//
// Custom profile usage:
//
//	func (s *ReadSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.SessionSuite.SetupTest() // call parent last to apply configuration
//	}
type SessionSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	Clock   *ManualClock
	Adapter *FakeAdapter
	Session *session.Session

	PeripheralBuilder *PeripheralBuilder
	SessionOptions    []session.Option
}

// SetupSuite runs once before all tests in the suite.
func (s *SessionSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.Logger.Debug("Suite setup completed")
}

// SetupTest creates a fresh session before each test.
func (s *SessionSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = DefaultPeripheral()
	}
	s.newSession()
}

// SetupSubTest gives every suite.Run subtest its own session, adapter and clock.
func (s *SessionSuite) SetupSubTest() {
	if s.Session != nil {
		s.Session.Terminate()
	}
	s.newSession()
}

// Restart replaces the session, applying extra on top of SessionOptions.
func (s *SessionSuite) Restart(extra ...session.Option) {
	if s.Session != nil {
		s.Session.Terminate()
	}
	s.newSession(extra...)
}

func (s *SessionSuite) newSession(extra ...session.Option) {
	s.Clock = NewManualClock()
	s.Adapter = NewFakeAdapter()

	opts := []session.Option{
		session.WithClock(s.Clock),
		session.WithLogger(s.Logger),
	}
	opts = append(opts, s.SessionOptions...)
	opts = append(opts, extra...)
	s.Session = session.New(s.Adapter, TestPeripheral, opts...)
}

// TearDownTest terminates the session and resets per-test configuration.
func (s *SessionSuite) TearDownTest() {
	if s.Session != nil {
		s.Session.Terminate()
		s.Session = nil
	}
	s.PeripheralBuilder = nil
	s.SessionOptions = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *SessionSuite) WithPeripheral() *PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// WithSessionOptions appends options applied by the next SetupTest.
func (s *SessionSuite) WithSessionOptions(opts ...session.Option) {
	s.SessionOptions = append(s.SessionOptions, opts...)
}

// Profile returns the configured GATT table.
func (s *SessionSuite) Profile() *DeviceProfileConfig {
	return s.PeripheralBuilder.Profile()
}

// Settle waits until the session processed everything queued so far.
func (s *SessionSuite) Settle() {
	s.Session.Flush()
}

// Advance moves the clock and lets the session process the fired timers.
func (s *SessionSuite) Advance(d time.Duration) {
	s.Clock.Advance(d)
	s.Session.Flush()
}

// Connect drives a connect attempt to success without discovery.
func (s *SessionSuite) Connect(policy session.ConnectionPolicy) {
	f := s.Session.Connect(policy)
	s.Settle()
	s.Adapter.ConfirmConnect()
	s.Settle()

	_, err := Resolved(s.T(), f)
	require.NoError(s.T(), err, "connect MUST succeed")
}

// ConnectAndDiscover connects and answers automatic discovery from the profile.
func (s *SessionSuite) ConnectAndDiscover(policy session.ConnectionPolicy) *session.DiscoveryResult {
	s.Connect(policy)
	s.Adapter.CompleteDiscovery(s.Profile(), s.Settle)

	f := s.Session.Discovery()
	require.NotNil(s.T(), f, "automatic discovery MUST be started on connect")
	result, err := Resolved(s.T(), f)
	require.NoError(s.T(), err, "discovery MUST succeed")
	return result
}

// Characteristic returns a discovered characteristic coordinator.
func (s *SessionSuite) Characteristic(serviceUUID, charUUID string) *session.CharacteristicCoordinator {
	c, err := s.Session.Characteristic(serviceUUID, charUUID)
	require.NoError(s.T(), err, "characteristic %s/%s MUST be discovered", serviceUUID, charUUID)
	return c
}

// Resolved returns the outcome of an already resolved future and fails the
// test if it is still pending.
func Resolved[T any](t require.TestingT, f *session.Future[T]) (T, error) {
	v, err, ok := f.Result()
	require.True(t, ok, "future MUST be resolved")
	return v, err
}

// Pending fails the test if the future is already resolved.
func Pending[T any](t require.TestingT, f *session.Future[T]) {
	_, _, ok := f.Result()
	require.False(t, ok, "future MUST still be pending")
}
