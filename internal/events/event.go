// Package events carries scanner and session notifications to the consumer.
package events

import (
	"fmt"
	"time"

	"github.com/srg/blegatt/internal/device"
)

// Type tags an Event.
type Type int

const (
	// Scan events
	DeviceFound Type = iota
	ScanStopped
	ScanError

	// Connection lifecycle events
	ConnectSuccess
	ConnectFail
	ServicesDiscovered
	ServicesDiscoverFail
	DescriptorWriteSuccess
	DescriptorWriteFail
	DescriptorReadSuccess
	DescriptorReadFail
	LostConnection

	// Data events
	DataAvailable
	WriteSuccess
	WriteFail
	ReliableWriteSuccess
	ReliableWriteFail
	ReadSuccess
	ReadFail
)

var typeNames = map[Type]string{
	DeviceFound:            "DeviceFound",
	ScanStopped:            "ScanStopped",
	ScanError:              "ScanError",
	ConnectSuccess:         "ConnectSuccess",
	ConnectFail:            "ConnectFail",
	ServicesDiscovered:     "ServicesDiscovered",
	ServicesDiscoverFail:   "ServicesDiscoverFail",
	DescriptorWriteSuccess: "DescriptorWriteSuccess",
	DescriptorWriteFail:    "DescriptorWriteFail",
	DescriptorReadSuccess:  "DescriptorReadSuccess",
	DescriptorReadFail:     "DescriptorReadFail",
	LostConnection:         "LostConnection",
	DataAvailable:          "DataAvailable",
	WriteSuccess:           "WriteSuccess",
	WriteFail:              "WriteFail",
	ReliableWriteSuccess:   "ReliableWriteSuccess",
	ReliableWriteFail:      "ReliableWriteFail",
	ReadSuccess:            "ReadSuccess",
	ReadFail:               "ReadFail",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// IsFailure reports whether t reports a failure.
func (t Type) IsFailure() bool {
	switch t {
	case ScanError, ConnectFail, ServicesDiscoverFail, DescriptorWriteFail, DescriptorReadFail,
		LostConnection, WriteFail, ReliableWriteFail, ReadFail:
		return true
	}
	return false
}

// Event is a tagged notification. Only the fields relevant to Type are set.
type Event struct {
	Type Type
	Time time.Time

	Peer           device.Peer
	Services       []*device.Service
	Characteristic *device.Characteristic
	Descriptor     *device.Descriptor
	Data           []byte
	Err            error
}

// New stamps an event of type t.
func New(t Type) Event {
	return Event{Type: t, Time: time.Now()}
}

// WithData attaches a private copy of data.
func (e Event) WithData(data []byte) Event {
	if data != nil {
		e.Data = append([]byte(nil), data...)
	}
	return e
}

func (e Event) WithErr(err error) Event {
	e.Err = err
	return e
}

func (e Event) String() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Type, e.Err)
	case e.Data != nil:
		return fmt.Sprintf("%s [% x]", e.Type, e.Data)
	case e.Peer.Address != "":
		return fmt.Sprintf("%s %s", e.Type, e.Peer)
	default:
		return e.Type.String()
	}
}
