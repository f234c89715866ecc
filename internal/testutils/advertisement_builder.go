package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/go-ble/ble"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/testutils/mocks"
)

// AdvertisementBuilder builds advertisements for scan tests, either as go-ble mocks or as
// the device.Peer a backend would report for them.
type AdvertisementBuilder struct {
	Name             string   `json:"name"`
	Address          string   `json:"address"`
	RSSI             int      `json:"rssi"`
	Services         []string `json:"services"`
	ManufacturerData []byte   `json:"manufacturerData"`
	Connectable      bool     `json:"connectable"`
}

// NewAdvertisementBuilder starts a connectable advertisement at -50 dBm.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{RSSI: -50, Connectable: true}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.RSSI = rssi
	return b
}

// WithServices adds advertised service UUIDs, short or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.Services = append(b.Services, uuids...)
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.ManufacturerData = data
	return b
}

func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.Connectable = c
	return b
}

// FromJSON overlays the fields present in the formatted JSON. Panics on invalid JSON.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), b); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	return b
}

// Build creates a MockAdvertisement with an expectation for every field a backend reads.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	var services []ble.UUID
	for _, s := range b.Services {
		services = append(services, ble.MustParse(s))
	}

	var addr ble.Addr
	if b.Address != "" {
		a := &mocks.MockAddr{}
		a.On("String").Return(b.Address)
		addr = a
	}

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.Name).Maybe()
	adv.On("RSSI").Return(b.RSSI).Maybe()
	adv.On("Connectable").Return(b.Connectable).Maybe()
	adv.On("Services").Return(services).Maybe()
	adv.On("ManufacturerData").Return(b.ManufacturerData).Maybe()
	adv.On("TxPowerLevel").Return(127).Maybe()
	adv.On("ServiceData").Return([]ble.ServiceData(nil)).Maybe()
	return adv
}

// BuildPeer returns the peer a backend reports for this advertisement.
func (b *AdvertisementBuilder) BuildPeer() device.Peer {
	p := device.Peer{
		Address:     device.PeerAddress(b.Address),
		Name:        b.Name,
		RSSI:        b.RSSI,
		Connectable: b.Connectable,
	}
	for _, s := range b.Services {
		p.Services = append(p.Services, device.NormalizeUUID(s))
	}
	if len(b.ManufacturerData) > 0 {
		p.ManufacturerData = append([]byte(nil), b.ManufacturerData...)
	}
	return p
}

// CreateMockAdvertisement is shorthand for a named advertisement.
func CreateMockAdvertisement(name, address string, rssi int) *AdvertisementBuilder {
	return NewAdvertisementBuilder().WithName(name).WithAddress(address).WithRSSI(rssi)
}

func CreateMockAdvertisementFromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	return NewAdvertisementBuilder().FromJSON(jsonStrFmt, args...)
}
