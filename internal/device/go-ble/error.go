package goble

import (
	"fmt"

	"github.com/srg/blegatt/internal/device"
)

// cbPoweredOff is what the darwin binding reports when the adapter is off.
const cbPoweredOff = "central manager has invalid state: have=4 want=5: is Bluetooth turned on?"

// NormalizeError maps go-ble error strings onto device sentinels.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if err.Error() == cbPoweredOff {
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	}
	return device.NormalizeError(err)
}
