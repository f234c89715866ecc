package testutils

import (
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/srg/blegatt/internal/device"
)

// FakeCentral is a mock device.Central. Every accepted Connect creates a FakeLink the test
// drives by injecting completions.
//
//	central := testutils.NewFakeCentral()
//	central.On("Connect", device.PeerAddress("AA:BB")).Return(nil)
type FakeCentral struct {
	mock.Mock

	mu    sync.Mutex
	links []*FakeLink
}

func NewFakeCentral() *FakeCentral {
	return &FakeCentral{}
}

func (c *FakeCentral) Connect(addr device.PeerAddress, sink func(device.LinkEvent)) (device.Link, error) {
	if err := c.Called(addr).Error(0); err != nil {
		return nil, err
	}
	l := &FakeLink{addr: addr, sink: sink, failOn: make(map[string]error)}
	c.mu.Lock()
	c.links = append(c.links, l)
	c.mu.Unlock()
	return l, nil
}

// Links returns every link opened so far, oldest first.
func (c *FakeCentral) Links() []*FakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*FakeLink(nil), c.links...)
}

// LastLink returns the most recent link or nil.
func (c *FakeCentral) LastLink() *FakeLink {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.links) == 0 {
		return nil
	}
	return c.links[len(c.links)-1]
}

// LinkCall records one request made on a FakeLink.
type LinkCall struct {
	Op             string
	Characteristic *device.Characteristic
	Descriptor     *device.Descriptor
	Value          []byte
	Mode           device.WriteMode
	Enable         bool
}

// FakeLink records requests and reports whatever completions the test injects.
type FakeLink struct {
	addr device.PeerAddress
	sink func(device.LinkEvent)

	mu       sync.Mutex
	calls    []LinkCall
	failOn   map[string]error
	services []*device.Service
	closed   bool
}

// Op names accepted by FailOn and reported in LinkCall.Op.
const (
	OpDiscoverServices    = "DiscoverServices"
	OpSetNotification     = "SetNotification"
	OpWriteDescriptor     = "WriteDescriptor"
	OpReadDescriptor      = "ReadDescriptor"
	OpReadCharacteristic  = "ReadCharacteristic"
	OpWriteCharacteristic = "WriteCharacteristic"
	OpClose               = "Close"
)

// FailOn makes the named request return err synchronously.
func (l *FakeLink) FailOn(op string, err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOn[op] = err
	return l
}

func (l *FakeLink) record(call LinkCall) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
	return l.failOn[call.Op]
}

// Calls returns the recorded requests in order.
func (l *FakeLink) Calls() []LinkCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LinkCall(nil), l.calls...)
}

// CallsOf returns the recorded requests named op.
func (l *FakeLink) CallsOf(op string) []LinkCall {
	var out []LinkCall
	for _, c := range l.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (l *FakeLink) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *FakeLink) Address() device.PeerAddress { return l.addr }

func (l *FakeLink) DiscoverServices() error {
	return l.record(LinkCall{Op: OpDiscoverServices})
}

func (l *FakeLink) Services() []*device.Service {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.services
}

func (l *FakeLink) SetNotification(c *device.Characteristic, enable bool) error {
	return l.record(LinkCall{Op: OpSetNotification, Characteristic: c, Enable: enable})
}

func (l *FakeLink) WriteDescriptor(d *device.Descriptor, value []byte) error {
	return l.record(LinkCall{Op: OpWriteDescriptor, Descriptor: d, Value: append([]byte(nil), value...)})
}

func (l *FakeLink) ReadDescriptor(d *device.Descriptor) error {
	return l.record(LinkCall{Op: OpReadDescriptor, Descriptor: d})
}

func (l *FakeLink) ReadCharacteristic(c *device.Characteristic) error {
	return l.record(LinkCall{Op: OpReadCharacteristic, Characteristic: c})
}

func (l *FakeLink) WriteCharacteristic(c *device.Characteristic, value []byte, mode device.WriteMode) error {
	return l.record(LinkCall{Op: OpWriteCharacteristic, Characteristic: c, Value: append([]byte(nil), value...), Mode: mode})
}

func (l *FakeLink) Close() error {
	err := l.record(LinkCall{Op: OpClose})
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return err
}

func (l *FakeLink) emit(ev device.LinkEvent) {
	ev.Link = l
	l.sink(ev)
}

// Connected reports a completed connect.
func (l *FakeLink) Connected() {
	l.emit(device.LinkEvent{Kind: device.ConnectionStateChanged, Connected: true})
}

// Disconnected reports a drop; err is the platform status, nil for a clean one.
func (l *FakeLink) Disconnected(err error) {
	l.emit(device.LinkEvent{Kind: device.ConnectionStateChanged, Connected: false, Err: err})
}

// ServicesDiscovered completes discovery. On success services become visible via Services.
func (l *FakeLink) ServicesDiscovered(services []*device.Service, err error) {
	if err == nil {
		l.mu.Lock()
		l.services = services
		l.mu.Unlock()
	}
	l.emit(device.LinkEvent{Kind: device.ServicesDiscovered, Err: err})
}

func (l *FakeLink) DescriptorWritten(d *device.Descriptor, err error) {
	l.emit(device.LinkEvent{Kind: device.DescriptorWritten, Descriptor: d, Err: err})
}

func (l *FakeLink) DescriptorRead(d *device.Descriptor, value []byte, err error) {
	l.emit(device.LinkEvent{Kind: device.DescriptorRead, Descriptor: d, Value: value, Err: err})
}

func (l *FakeLink) CharacteristicRead(c *device.Characteristic, value []byte, err error) {
	l.emit(device.LinkEvent{Kind: device.CharacteristicRead, Characteristic: c, Value: value, Err: err})
}

func (l *FakeLink) CharacteristicWritten(c *device.Characteristic, mode device.WriteMode, err error) {
	l.emit(device.LinkEvent{Kind: device.CharacteristicWritten, Characteristic: c, Mode: mode, Err: err})
}

func (l *FakeLink) Notify(c *device.Characteristic, value []byte) {
	l.emit(device.LinkEvent{Kind: device.CharacteristicChanged, Characteristic: c, Value: value})
}

func (l *FakeLink) String() string {
	return fmt.Sprintf("FakeLink(%s)", l.addr)
}
