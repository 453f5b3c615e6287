//go:build test

package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/srg/gattsession/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ConnectTestSuite struct {
	CommandTestSuite
}

func TestConnectTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectTestSuite))
}

func (suite *ConnectTestSuite) TestConnect() {
	// GOAL: Verify the session is held for --duration and closed with statistics
	//
	// TEST SCENARIO: Connect for 50ms → user disconnect → stats + history printed

	out, _, err := suite.ExecuteCommand("connect", TestDeviceAddress, "--duration", "50ms", "--history")
	suite.Require().NoError(err, "connect MUST succeed")

	testutils.NewTextAsserter(suite.T()).AssertContains(out,
		"Connected to "+TestDeviceAddress+", 1 services discovered",
		"Connections: 1",
		"Total connected:",
		"connect (attempt 1)",
		"force disconnect (attempt 1)",
	)
	suite.Adapter.AssertNumberOfCalls(suite.T(), "Disconnect", 1)
}

func (suite *ConnectTestSuite) TestConnectWithoutHistory() {
	out, _, err := suite.ExecuteCommand("connect", TestDeviceAddress, "--duration", "10ms")
	suite.Require().NoError(err)

	suite.Assert().NotContains(out, "attempt", "history MUST only be printed with --history")
}

func (suite *ConnectTestSuite) TestRSSI() {
	// GOAL: Verify single and polled RSSI reads

	suite.Run("single read", func() {
		out, _, err := suite.ExecuteCommand("rssi", TestDeviceAddress)
		suite.Require().NoError(err)
		suite.Assert().Equal("-60 dBm\n", out)
	})

	suite.Run("polling", func() {
		suite.Adapter.SetRSSI(-72)

		out, _, err := suite.ExecuteCommand("rssi", TestDeviceAddress, "--watch", "10ms", "--count", "2")
		suite.Require().NoError(err)

		lines := strings.Split(strings.TrimSpace(out), "\n")
		suite.Assert().Equal([]string{"-72 dBm", "-72 dBm"}, lines)
	})

	suite.Run("polling at the configured period", func() {
		path := filepath.Join(suite.T().TempDir(), "config.yaml")
		suite.Require().NoError(os.WriteFile(path, []byte("session:\n  rssi_poll_period: 10ms\n"), 0o600))

		start := time.Now()
		out, _, err := suite.ExecuteCommand("rssi", TestDeviceAddress, "--poll", "--count", "3", "--config", path)
		suite.Require().NoError(err)

		suite.Assert().Equal("-60 dBm\n-60 dBm\n-60 dBm\n", out)
		suite.Assert().Less(time.Since(start), 5*time.Second, "MUST poll at rssi_poll_period, not the 10s default")
	})
}
