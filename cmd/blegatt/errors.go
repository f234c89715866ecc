package main

import (
	"errors"
	"fmt"

	"github.com/srg/blegatt/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost means the link went down after the session was established.
	// device.ErrNotConnected instead means a connection never came up.
	ErrConnectionLost = errors.New("connection lost")

	// ErrEndpointNotFound means a --read or --write UUID is not among the discovered
	// characteristics.
	ErrEndpointNotFound = errors.New("endpoint not found")
)

// FormatUserError turns well-known failures into a one-line hint.
func FormatUserError(err error) string {
	var nf *device.NotFoundError
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("%v (turn Bluetooth on and retry)", err)
	case errors.Is(err, device.ErrNotInitialized):
		return fmt.Sprintf("%v (check --backend and adapter permissions)", err)
	case errors.Is(err, device.ErrTimeout):
		return fmt.Sprintf("%v (is the device in range and advertising?)", err)
	case errors.As(err, &nf):
		return fmt.Sprintf("%v (run with --verbose to list discovered services)", err)
	default:
		return err.Error()
	}
}
