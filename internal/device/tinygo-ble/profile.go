package tinyble

import "github.com/srg/blegatt/internal/device"

// baseProperties is reported for every characteristic; the adapter does not expose the
// declared properties.
const baseProperties = device.PropRead | device.PropWriteWithoutResponse | device.PropNotify

// characteristicProperties adds PropWrite when the platform handle can do acknowledged
// writes.
func characteristicProperties(h characteristic) device.Property {
	if _, ok := h.(ackWriter); ok {
		return baseProperties | device.PropWrite
	}
	return baseProperties
}

// withCCCDs gives every characteristic a client configuration descriptor so the session
// can enable notifications the same way on every backend.
func withCCCDs(services []*device.Service) []*device.Service {
	for _, s := range services {
		for _, c := range s.Characteristics {
			if _, err := c.CCCD(); err != nil {
				c.AddDescriptor(device.CCCDUUID, nil)
			}
		}
	}
	return services
}
