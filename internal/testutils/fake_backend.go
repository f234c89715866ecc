package testutils

import (
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/srg/blegatt/internal/device"
)

// FakeScanBackend is a mock device.ScanBackend that lets a test play advertisements.
//
//	backend := testutils.NewFakeScanBackend()
//	backend.On("StartScan").Return(nil)
//	backend.On("StopScan").Return(nil)
type FakeScanBackend struct {
	mock.Mock

	mu    sync.Mutex
	sinks []func(device.ScanEvent)
}

func NewFakeScanBackend() *FakeScanBackend {
	return &FakeScanBackend{}
}

func (b *FakeScanBackend) StartScan(sink func(device.ScanEvent)) error {
	if err := b.Called().Error(0); err != nil {
		return err
	}
	b.mu.Lock()
	b.sinks = append(b.sinks, sink)
	b.mu.Unlock()
	return nil
}

func (b *FakeScanBackend) StopScan() error {
	return b.Called().Error(0)
}

// Sink returns the sink of the n-th successful StartScan, or nil.
func (b *FakeScanBackend) Sink(n int) func(device.ScanEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n < 0 || n >= len(b.sinks) {
		return nil
	}
	return b.sinks[n]
}

func (b *FakeScanBackend) current() func(device.ScanEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sinks) == 0 {
		return nil
	}
	return b.sinks[len(b.sinks)-1]
}

// Advertise reports peers on the latest scan.
func (b *FakeScanBackend) Advertise(peers ...device.Peer) {
	sink := b.current()
	if sink == nil {
		panic("Advertise: scan was never started")
	}
	for _, p := range peers {
		sink(device.ScanEvent{Kind: device.ScanResult, Peer: p})
	}
}

// Fail reports a platform scan failure on the latest scan.
func (b *FakeScanBackend) Fail(err error) {
	sink := b.current()
	if sink == nil {
		panic("Fail: scan was never started")
	}
	sink(device.ScanEvent{Kind: device.ScanFailed, Err: err})
}
