package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/testutils/mocks"
)

// CharacteristicConfig describes a mocked characteristic.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes a mocked service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig is the GATT profile of a mocked peripheral.
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralBuilder builds the same GATT profile in the shapes different layers consume:
// a go-ble profile behind a MockClient, or device.Service trees for session tests.
type PeripheralBuilder struct {
	profile DeviceProfileConfig
}

func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{}
}

// WithService appends a service; following WithCharacteristic calls attach to it.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON replaces the profile. Panics on invalid JSON.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}
	b.profile = config
	return b
}

var propertyTokens = map[string]struct {
	ble ble.Property
	dev device.Property
}{
	"broadcast": {ble.CharBroadcast, device.PropBroadcast},
	"read":      {ble.CharRead, device.PropRead},
	"writenr":   {ble.CharWriteNR, device.PropWriteWithoutResponse},
	"write":     {ble.CharWrite, device.PropWrite},
	"notify":    {ble.CharNotify, device.PropNotify},
	"indicate":  {ble.CharIndicate, device.PropIndicate},
}

// parseProperties defaults to read,write,notify.
func parseProperties(props string) (ble.Property, device.Property) {
	if props == "" {
		props = "read,write,notify"
	}
	var bp ble.Property
	var dp device.Property
	for _, tok := range strings.Split(props, ",") {
		p, ok := propertyTokens[strings.TrimSpace(strings.ToLower(tok))]
		if !ok {
			panic(fmt.Sprintf("unknown characteristic property %q", tok))
		}
		bp |= p.ble
		dp |= p.dev
	}
	return bp, dp
}

func hasCCCD(p ble.Property) bool {
	return p&(ble.CharNotify|ble.CharIndicate) != 0
}

// BuildProfile creates the go-ble profile. Notifying characteristics get a CCCD.
func (b *PeripheralBuilder) BuildProfile() *ble.Profile {
	profile := &ble.Profile{}
	for _, sc := range b.profile.Services {
		svc := &ble.Service{UUID: ble.MustParse(sc.UUID)}
		for _, cc := range sc.Characteristics {
			bp, _ := parseProperties(cc.Properties)
			c := &ble.Characteristic{
				UUID:     ble.MustParse(cc.UUID),
				Property: bp,
				Value:    cc.Value,
			}
			if hasCCCD(bp) {
				c.CCCD = &ble.Descriptor{UUID: ble.UUID16(0x2902)}
				c.Descriptors = append(c.Descriptors, c.CCCD)
			}
			svc.Characteristics = append(svc.Characteristics, c)
		}
		profile.Services = append(profile.Services, svc)
	}
	return profile
}

// BuildClient returns a MockClient that discovers profile and serves reads of the
// configured values. Subscriptions, writes and cancellation succeed.
func (b *PeripheralBuilder) BuildClient(profile *ble.Profile) *mocks.MockClient {
	client := mocks.NewMockClient()
	client.On("DiscoverProfile", true).Return(profile, nil).Maybe()
	client.On("CancelConnection").Return(nil).Maybe()

	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			client.On("Subscribe", c, mock.Anything, mock.Anything).Return(nil).Maybe()
			client.On("Unsubscribe", c, mock.Anything).Return(nil).Maybe()
			client.On("WriteCharacteristic", c, mock.Anything, mock.Anything).Return(nil).Maybe()
			if c.Property&ble.CharRead != 0 {
				client.On("ReadCharacteristic", c).Return(c.Value, nil).Maybe()
			} else {
				client.On("ReadCharacteristic", c).Return(nil, fmt.Errorf("characteristic does not support read")).Maybe()
			}
		}
	}
	return client
}

// BuildServices creates device.Service trees without binding handles, as a fake link
// reports them.
func (b *PeripheralBuilder) BuildServices() []*device.Service {
	var out []*device.Service
	for _, sc := range b.profile.Services {
		svc := device.NewService(sc.UUID, nil)
		for _, cc := range sc.Characteristics {
			bp, dp := parseProperties(cc.Properties)
			c := svc.AddCharacteristic(cc.UUID, dp, nil)
			if hasCCCD(bp) {
				c.AddDescriptor(device.CCCDUUID, nil)
			}
		}
		out = append(out, svc)
	}
	return out
}

// NordicUARTProfile is a UART-over-GATT peripheral: TX notifies, RX is written.
func NordicUARTProfile() *PeripheralBuilder {
	return NewPeripheralBuilder().
		WithService("6e400001-b5a3-f393-e0a9-e50e24dcca9e").
		WithCharacteristic("6e400003-b5a3-f393-e0a9-e50e24dcca9e", "notify", nil).
		WithCharacteristic("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "write,writenr", nil).
		WithService("180f").
		WithCharacteristic("2a19", "read,notify", []byte{87})
}
