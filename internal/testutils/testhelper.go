package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattsession/internal/device"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// TestPeripheral is the peripheral every session test talks to.
var TestPeripheral = device.Peripheral{ID: "AA:BB:CC:DD:EE:FF", Name: "TestDevice"}

func CreateMockPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder()
}

func CreateMockPeripheralFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(jsonStrFmt, args...)
}

// DefaultPeripheral is a Battery Service (180F) peripheral whose Battery Level
// (2A19) reads 50%.
func DefaultPeripheral() *PeripheralBuilder {
	return CreateMockPeripheralFromJSON(`
	{
		"services": [
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [50] }
				]
			}
		]
	}`)
}
