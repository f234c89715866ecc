package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blegatt/internal/device"
)

var propertyMap = []struct {
	from ble.Property
	to   device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropSignedWrite},
	{ble.CharExtended, device.PropExtended},
}

func convertProperties(p ble.Property) device.Property {
	var out device.Property
	for _, m := range propertyMap {
		if p&m.from != 0 {
			out |= m.to
		}
	}
	return out
}

// servicesFromProfile converts a discovered go-ble profile. Handles point back at the
// go-ble nodes so later operations can address them.
func servicesFromProfile(p *ble.Profile) []*device.Service {
	if p == nil {
		return nil
	}

	services := make([]*device.Service, 0, len(p.Services))
	for _, bs := range p.Services {
		svc := device.NewService(bs.UUID.String(), bs)
		for _, bc := range bs.Characteristics {
			c := svc.AddCharacteristic(bc.UUID.String(), convertProperties(bc.Property), bc)
			for _, bd := range bc.Descriptors {
				c.AddDescriptor(bd.UUID.String(), bd)
			}
			// darwin fills CCCD without listing it among the descriptors
			if bc.CCCD != nil {
				if _, err := c.CCCD(); err != nil {
					c.AddDescriptor(bc.CCCD.UUID.String(), bc.CCCD)
				}
			}
		}
		services = append(services, svc)
	}
	return services
}

func bleCharacteristic(c *device.Characteristic) (*ble.Characteristic, error) {
	if c == nil {
		return nil, &device.NotFoundError{Resource: "characteristic"}
	}
	bc, ok := c.Handle.(*ble.Characteristic)
	if !ok || bc == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{c.UUID}}
	}
	return bc, nil
}

func bleDescriptor(d *device.Descriptor) (*ble.Descriptor, error) {
	if d == nil {
		return nil, &device.NotFoundError{Resource: "descriptor"}
	}
	bd, ok := d.Handle.(*ble.Descriptor)
	if !ok || bd == nil {
		return nil, &device.NotFoundError{Resource: "descriptor", UUIDs: []string{d.UUID}}
	}
	return bd, nil
}
