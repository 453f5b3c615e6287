//go:build test

package main

import (
	"testing"
	"time"

	"github.com/srg/gattsession/internal/device"
	"github.com/stretchr/testify/suite"
)

type ReadTestSuite struct {
	CommandTestSuite
}

func TestReadTestSuite(t *testing.T) {
	suite.Run(t, new(ReadTestSuite))
}

func (suite *ReadTestSuite) SetupTest() {
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
					{ "uuid": "FFE1", "properties": "write-without-response" },
					{ "uuid": "2A19", "properties": "read", "value": [7] }
				]
			},
			{
				"uuid": "FFF0",
				"characteristics": [
					{ "uuid": "FFF1", "properties": "read", "value": [222, 173] }
				]
			}
		]
	}`)

	suite.CommandTestSuite.SetupTest()
}

func (suite *ReadTestSuite) TestRead() {
	// GOAL: Verify single reads are decoded through the codec registry
	//
	// TEST SCENARIO: Read a known and an unknown characteristic → decoded value / hex

	suite.Run("known characteristic is decoded", func() {
		out, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "2a19", "--service", "180f")
		suite.Require().NoError(err, "read MUST succeed")
		suite.Assert().Equal("50\n", out)
	})

	suite.Run("hex output", func() {
		out, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "2a19", "--service", "180f", "--hex")
		suite.Require().NoError(err)
		suite.Assert().Equal("32\n", out)
	})

	suite.Run("unknown characteristic is printed as hex", func() {
		out, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "0xFFF1")
		suite.Require().NoError(err)
		suite.Assert().Equal("dead\n", out)
	})
}

func (suite *ReadTestSuite) TestResolution() {
	// GOAL: Verify characteristic lookup by UUID with and without a service

	suite.Run("ambiguous uuid requires a service", func() {
		_, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "2a19")
		suite.Require().Error(err)
		suite.Assert().Contains(err.Error(), "ambiguous")
		suite.Assert().Contains(err.Error(), "180f, ffe0")
	})

	suite.Run("service disambiguates", func() {
		out, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "2a19", "--service", "ffe0", "--hex")
		suite.Require().NoError(err)
		suite.Assert().Equal("07\n", out)
	})

	suite.Run("missing characteristic", func() {
		_, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "abcd")
		var notFound *device.NotFoundError
		suite.Require().ErrorAs(err, &notFound)
		suite.Assert().Contains(FormatUserError(err), "gattsession inspect")
	})

	suite.Run("not readable", func() {
		_, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "ffe1")
		suite.Assert().ErrorIs(err, device.ErrNotSupported)
		suite.Adapter.AssertNumberOfCalls(suite.T(), "ReadValue", 0)
	})

	suite.Run("invalid uuid is rejected before connecting", func() {
		_, _, err := suite.ExecuteCommand("read", TestDeviceAddress, "not-a-uuid")
		suite.Assert().Error(err)
		suite.Adapter.AssertNumberOfCalls(suite.T(), "Connect", 0)
	})
}

func (suite *ReadTestSuite) TestWatch() {
	// GOAL: Verify --watch reads repeatedly until --count is reached

	start := time.Now()
	out, stderr, err := suite.ExecuteCommand("read", TestDeviceAddress, "2a19", "--service", "180f",
		"--watch", "10ms", "--count", "3")
	suite.Require().NoError(err)

	suite.Assert().Equal("50\n50\n50\n", out)
	suite.Assert().Contains(stderr, "Watching Battery Level (180f/2a19)")
	suite.Assert().GreaterOrEqual(time.Since(start), 20*time.Millisecond, "reads MUST be spaced by the interval")
	suite.Adapter.AssertNumberOfCalls(suite.T(), "ReadValue", 3)
}
