package goble

import (
	"github.com/go-ble/ble"
)

// DeviceFactory creates the platform ble.Device. Tests replace it.
//
//nolint:revive // DeviceFactory name is intentional for test mocking as goble.DeviceFactory
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}
