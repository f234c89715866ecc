package tinyble

import "tinygo.org/x/bluetooth"

var _ ackWriter = (*bluetooth.DeviceCharacteristic)(nil)
