package goble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/gattsession/internal/device"
)

// ErrBluetoothOff is reported when the host controller is powered off or
// unavailable.
var ErrBluetoothOff = errors.New("bluetooth is turned off")

// NormalizeError maps go-ble specific error strings onto the device error
// taxonomy. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	default:
		return device.NormalizeError(err)
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
