package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blegatt/internal/device"
)

// advertisement is the part of ble.Advertisement a peer descriptor needs.
type advertisement interface {
	LocalName() string
	Addr() ble.Addr
	RSSI() int
	Connectable() bool
	Services() []ble.UUID
	ManufacturerData() []byte
}

func peerFromAdvertisement(adv advertisement) device.Peer {
	peer := device.Peer{
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
	}
	if addr := adv.Addr(); addr != nil {
		peer.Address = device.PeerAddress(addr.String())
	}
	for _, u := range adv.Services() {
		peer.Services = append(peer.Services, device.NormalizeUUID(u.String()))
	}
	if md := adv.ManufacturerData(); len(md) > 0 {
		peer.ManufacturerData = append([]byte(nil), md...)
	}
	return peer
}
