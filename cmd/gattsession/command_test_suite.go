//go:build test

package main

import (
	"bytes"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/testutils"
	"github.com/stretchr/testify/suite"
)

// Test device address for consistent mock device identification
const TestDeviceAddress = "00:00:00:00:00:01"

// syncBuffer is a bytes.Buffer safe for a command goroutine writing while the
// test polls it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs commands against a simulated peripheral.
// All cmd/gattsession test suites embed it.
//
//	func (s *ReadSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "read,notify", []byte{80})
//
//	    s.CommandTestSuite.SetupTest() // call parent last to apply configuration
//	}
type CommandTestSuite struct {
	suite.Suite

	Helper *testutils.TestHelper

	PeripheralBuilder *testutils.PeripheralBuilder
	Adapter           *testutils.FakeAdapter

	originalFactory func(*logrus.Logger) device.Adapter
}

func (s *CommandTestSuite) SetupSuite() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.originalFactory = adapterFactory
	s.T().Cleanup(func() { adapterFactory = s.originalFactory })
}

// SetupTest builds the simulated peripheral and resets every command flag.
func (s *CommandTestSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = testutils.DefaultPeripheral()
	}
	s.reset()
}

// SetupSubTest gives every subtest a fresh peripheral and default flags.
func (s *CommandTestSuite) SetupSubTest() {
	s.reset()
}

func (s *CommandTestSuite) reset() {
	s.Adapter = s.PeripheralBuilder.Build()
	adapterFactory = func(*logrus.Logger) device.Adapter { return s.Adapter }

	resetFlags()
	_ = rootCmd.PersistentFlags().Set("config", "")
	_ = rootCmd.PersistentFlags().Set("log-level", "")
}

func (s *CommandTestSuite) TearDownTest() {
	adapterFactory = s.originalFactory
	s.PeripheralBuilder = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *CommandTestSuite) WithPeripheral() *testutils.PeripheralBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = testutils.NewPeripheralBuilder()
	}
	return s.PeripheralBuilder
}

// ExecuteCommand runs the root command with args and returns stdout, stderr
// and the command error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, string, error) {
	stdout, stderr := new(syncBuffer), new(syncBuffer)
	err := s.execute(stdout, stderr, args...)
	return stdout.String(), stderr.String(), err
}

func (s *CommandTestSuite) execute(stdout, stderr *syncBuffer, args ...string) error {
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// resetFlags restores every command flag to its default.
func resetFlags() {
	inspectJSON, inspectRead, inspectReadTimeout = false, false, 0
	readServiceUUID, readHex, readTimeout, readWatch, readCount = "", false, 0, 0, 0
	writeServiceUUID, writeHex, writeFields, writeNoResponse, writeTimeout = "", false, false, false, 0
	subscribeServiceUUID, subscribeHex, subscribeCount, subscribeDuration, subscribeTimeout = "", false, 0, 0, 0
	rssiWatch, rssiPoll, rssiCount = 0, false, 0
	connectDuration, connectHistory = 0, false
}
