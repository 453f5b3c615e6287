package main

import (
	"errors"
	"fmt"

	"github.com/srg/gattsession/internal/device"
	goble "github.com/srg/gattsession/internal/device/go-ble"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link went away while a command was
	// still using it. device.ErrDisconnected is reported instead when the
	// command never had a link.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns session errors into short messages for the terminal.
func FormatUserError(err error) string {
	var notFound *device.NotFoundError
	switch {
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable"
	case errors.Is(err, device.ErrGiveUp):
		return fmt.Sprintf("could not connect, giving up: %v", err)
	case errors.Is(err, device.ErrNotSupported):
		return fmt.Sprintf("operation not supported by the characteristic: %v", err)
	case errors.As(err, &notFound):
		return fmt.Sprintf("%v (run 'gattsession inspect' to list what the device exposes)", err)
	default:
		return err.Error()
	}
}
