package main

import (
	"errors"

	"github.com/smallnest/ringbuffer"

	"github.com/srg/blegatt/internal/device"
)

// DefaultInputBuffer is how many stdin bytes may wait for the radio.
const DefaultInputBuffer = 4096

// Packetizer splits a byte stream into packets of at most device.MaxWritePayload bytes and
// lets only one packet be in flight at a time. It is not safe for concurrent use.
type Packetizer struct {
	buf      *ringbuffer.RingBuffer
	size     int
	inFlight bool
	dropped  uint64
}

// NewPacketizer buffers up to capacity bytes. A non-positive size selects
// device.MaxWritePayload.
func NewPacketizer(capacity, size int) *Packetizer {
	if capacity <= 0 {
		capacity = DefaultInputBuffer
	}
	if size <= 0 || size > device.MaxWritePayload {
		size = device.MaxWritePayload
	}
	return &Packetizer{buf: ringbuffer.New(capacity), size: size}
}

// Push buffers data and returns how many bytes were kept. Bytes that do not fit are
// dropped and counted.
func (p *Packetizer) Push(data []byte) int {
	if len(data) == 0 {
		return 0
	}
	// Write keeps what fits and reports the rest as ErrIsFull or ErrTooMuchDataToWrite.
	n, _ := p.buf.Write(data)
	p.dropped += uint64(len(data) - n)
	return n
}

// Next takes the next packet. ok is false while a packet is in flight or nothing is
// buffered.
func (p *Packetizer) Next() (packet []byte, ok bool) {
	if p.inFlight || p.buf.IsEmpty() {
		return nil, false
	}
	packet = make([]byte, p.size)
	n, err := p.buf.TryRead(packet)
	if n == 0 || (err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty)) {
		return nil, false
	}
	p.inFlight = true
	return packet[:n], true
}

// Ack releases the in-flight packet.
func (p *Packetizer) Ack() { p.inFlight = false }

// InFlight reports whether a packet awaits its write completion.
func (p *Packetizer) InFlight() bool { return p.inFlight }

// Pending is the number of buffered bytes not yet taken by Next.
func (p *Packetizer) Pending() int { return p.buf.Length() }

// Dropped is the number of bytes Push could not buffer.
func (p *Packetizer) Dropped() uint64 { return p.dropped }

// Drained reports whether nothing is buffered or in flight.
func (p *Packetizer) Drained() bool { return !p.inFlight && p.buf.IsEmpty() }

// Reset discards buffered bytes and the in-flight marker.
func (p *Packetizer) Reset() {
	p.buf.Reset()
	p.inFlight = false
}
