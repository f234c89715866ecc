package device

import (
	"strings"

	"github.com/srg/blegatt/internal/bledb"
)

const (
	// MaxWritePayload is the largest payload accepted by a single write. Larger payloads are
	// the caller's to fragment.
	MaxWritePayload = 19

	// CCCDUUID is the Client Characteristic Configuration descriptor.
	CCCDUUID = "2902"
)

// CCCD values
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	EnableIndicationValue    = []byte{0x02, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)

// Property is a characteristic property bit set.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

func (p Property) Has(flag Property) bool { return p&flag != 0 }

func (p Property) String() string {
	var names []string
	for _, n := range propertyNames {
		if p.Has(n.p) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, ",")
}

// WriteMode selects how a characteristic write is delivered.
type WriteMode int

const (
	// WriteWithoutResponse only confirms that the packet was handed to the local radio.
	WriteWithoutResponse WriteMode = iota
	// WriteWithResponse waits for the peer to acknowledge the write.
	WriteWithResponse
)

func (m WriteMode) String() string {
	if m == WriteWithResponse {
		return "with-response"
	}
	return "without-response"
}

// Service is a discovered GATT service.
type Service struct {
	UUID            string
	KnownName       string
	Characteristics []*Characteristic

	// Handle is the binding's own service object.
	Handle any
}

// Characteristic is a discovered GATT characteristic.
type Characteristic struct {
	UUID        string
	KnownName   string
	Properties  Property
	Descriptors []*Descriptor
	Service     *Service

	Handle any
}

// Descriptor is a discovered GATT descriptor. Value is only filled on read results.
type Descriptor struct {
	UUID           string
	KnownName      string
	Value          []byte
	Characteristic *Characteristic

	Handle any
}

// NewService builds a service node with a normalized UUID and its SIG name.
func NewService(uuid string, handle any) *Service {
	return &Service{
		UUID:      NormalizeUUID(uuid),
		KnownName: bledb.LookupService(uuid),
		Handle:    handle,
	}
}

// AddCharacteristic appends a characteristic to s and returns it.
func (s *Service) AddCharacteristic(uuid string, props Property, handle any) *Characteristic {
	c := &Characteristic{
		UUID:       NormalizeUUID(uuid),
		KnownName:  bledb.LookupCharacteristic(uuid),
		Properties: props,
		Service:    s,
		Handle:     handle,
	}
	s.Characteristics = append(s.Characteristics, c)
	return c
}

// AddDescriptor appends a descriptor to c and returns it.
func (c *Characteristic) AddDescriptor(uuid string, handle any) *Descriptor {
	d := &Descriptor{
		UUID:           NormalizeUUID(uuid),
		KnownName:      bledb.LookupDescriptor(uuid),
		Characteristic: c,
		Handle:         handle,
	}
	c.Descriptors = append(c.Descriptors, d)
	return d
}

// Characteristic looks up a characteristic of s by UUID.
func (s *Service) Characteristic(uuid string) (*Characteristic, error) {
	for _, c := range s.Characteristics {
		if SameUUID(c.UUID, uuid) {
			return c, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{s.UUID, NormalizeUUID(uuid)}}
}

// Descriptor looks up a descriptor of c by UUID.
func (c *Characteristic) Descriptor(uuid string) (*Descriptor, error) {
	for _, d := range c.Descriptors {
		if SameUUID(d.UUID, uuid) {
			return d, nil
		}
	}
	return nil, &NotFoundError{Resource: "descriptor", UUIDs: []string{c.UUID, NormalizeUUID(uuid)}}
}

// CCCD returns the Client Characteristic Configuration descriptor of c.
func (c *Characteristic) CCCD() (*Descriptor, error) {
	return c.Descriptor(CCCDUUID)
}

// IsCCCD reports whether d is a Client Characteristic Configuration descriptor.
func (d *Descriptor) IsCCCD() bool {
	return d != nil && d.UUID == CCCDUUID
}

// FindCharacteristic searches services for a characteristic UUID, first match wins.
func FindCharacteristic(services []*Service, uuid string) (*Characteristic, error) {
	for _, s := range services {
		if c, err := s.Characteristic(uuid); err == nil {
			return c, nil
		}
	}
	return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{NormalizeUUID(uuid)}}
}
