//go:build test

package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
	"github.com/srg/gattsession/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type InspectTestSuite struct {
	CommandTestSuite
}

func TestInspectTestSuite(t *testing.T) {
	suite.Run(t, new(InspectTestSuite))
}

func (suite *InspectTestSuite) SetupTest() {
	suite.WithPeripheral().FromJSON(`
	{
		"services": [
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
				]
			},
			{
				"uuid": "FFE0",
				"characteristics": [
					{ "uuid": "FFE1", "properties": "write-without-response" }
				]
			}
		]
	}`)

	suite.CommandTestSuite.SetupTest()
}

func (suite *InspectTestSuite) TestInspectText() {
	// GOAL: Verify the GATT table is printed in discovery order
	//
	// TEST SCENARIO: Inspect → connect + discover → services with named characteristics

	out, stderr, err := suite.ExecuteCommand("inspect", TestDeviceAddress)
	suite.Require().NoError(err, "inspect MUST succeed")

	testutils.NewTextAsserter(suite.T()).Assert(out, `Services: 2, characteristics: 2
Service 180f (Battery)
  Characteristic 2a19 (Battery Level) [read, notify]
Service ffe0
  Characteristic ffe1 [write-without-response]
`)
	testutils.NewTextAsserter(suite.T()).AssertContains(stderr,
		"Connecting to "+TestDeviceAddress,
		"connect (attempt 1)",
	)
	suite.Adapter.AssertNumberOfCalls(suite.T(), "ReadValue", 0)
}

func (suite *InspectTestSuite) TestInspectRead() {
	// GOAL: Verify --read decodes readable characteristics only

	out, _, err := suite.ExecuteCommand("inspect", TestDeviceAddress, "--read")
	suite.Require().NoError(err)

	testutils.NewTextAsserter(suite.T()).AssertContains(out,
		"Characteristic 2a19 (Battery Level) [read, notify]",
		"Value: 50",
		"Characteristic ffe1 [write-without-response]",
	)
	suite.Adapter.AssertNumberOfCalls(suite.T(), "ReadValue", 1)
}

func (suite *InspectTestSuite) TestInspectJSON() {
	// GOAL: Verify JSON output, with and without values

	suite.Run("tree", func() {
		out, _, err := suite.ExecuteCommand("inspect", TestDeviceAddress, "--json")
		suite.Require().NoError(err)

		testutils.NewJSONAsserter(suite.T()).Assert(out, `[
			{"uuid": "180f", "name": "Battery", "characteristics": [
				{"uuid": "2a19", "name": "Battery Level", "properties": ["read", "notify"]}
			]},
			{"uuid": "ffe0", "characteristics": [
				{"uuid": "ffe1", "properties": ["write-without-response"]}
			]}
		]`)
	})

	suite.Run("with values", func() {
		out, _, err := suite.ExecuteCommand("inspect", TestDeviceAddress, "--json", "--read")
		suite.Require().NoError(err)

		testutils.NewJSONAsserter(suite.T()).Assert(out, `[
			{"uuid": "180f", "name": "Battery", "characteristics": [
				{"uuid": "2a19", "name": "Battery Level", "properties": ["read", "notify"],
				 "value": {"Battery Level": "50"}}
			]},
			{"uuid": "ffe0", "characteristics": [
				{"uuid": "ffe1", "properties": ["write-without-response"]}
			]}
		]`)
	})
}

func (suite *InspectTestSuite) TestConnectionFailure() {
	// GOAL: Verify a peripheral that never answers ends in a give-up error
	//
	// TEST SCENARIO: Connect timeout 50ms, no retries → GiveUp on the first timeout → command fails

	silent := testutils.NewFakeAdapter()
	adapterFactory = func(*logrus.Logger) device.Adapter { return silent }

	path := filepath.Join(suite.T().TempDir(), "config.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(`
connection:
  timeout: 50ms
  timeout_retry_limit: 0
`), 0o600))

	_, stderr, err := suite.ExecuteCommand("inspect", TestDeviceAddress, "--config", path)
	suite.Require().Error(err)
	suite.Assert().True(errors.Is(err, device.ErrGiveUp), "MUST give up, got %v", err)
	suite.Assert().ErrorIs(err, device.ErrTimeout)
	suite.Assert().Contains(FormatUserError(err), "giving up")

	testutils.NewTextAsserter(suite.T()).AssertContains(stderr, "give up (attempt 1)")
	suite.Assert().NotContains(stderr, "timeout (", "a zero retry limit MUST give up on the first timeout")
}

func (suite *InspectTestSuite) TestInvalidLogLevel() {
	_, _, err := suite.ExecuteCommand("inspect", TestDeviceAddress, "--log-level", "loud")
	suite.Assert().ErrorContains(err, "invalid log level")
	suite.Adapter.AssertNumberOfCalls(suite.T(), "Connect", 0)
}
