//go:build darwin || linux

package tinyble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/groutine"
)

// scanAdapter is the scanning half of bluetooth.Adapter.
type scanAdapter interface {
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

var _ scanAdapter = (*bluetooth.Adapter)(nil)

// ScanBackend reports raw advertisements from bluetooth.DefaultAdapter.
type ScanBackend struct {
	adapter scanAdapter
	logger  *logrus.Logger

	mu     sync.Mutex
	active bool
	run    uint64
}

func newScanBackend(adapter scanAdapter, logger *logrus.Logger) *ScanBackend {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScanBackend{adapter: adapter, logger: logger}
}

func (b *ScanBackend) StartScan(sink func(device.ScanEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active {
		return fmt.Errorf("scan already in progress")
	}
	b.active = true
	b.run++
	run := b.run

	groutine.Go(context.Background(), "tinygo-scan", func(ctx context.Context) {
		err := b.adapter.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
			sink(device.ScanEvent{
				Kind: device.ScanResult,
				Peer: device.Peer{
					Address:     device.PeerAddress(r.Address.String()),
					Name:        r.LocalName(),
					RSSI:        int(r.RSSI),
					Connectable: true,
				},
			})
		})

		// A newer run owns the flag once StopScan and StartScan have both happened.
		b.mu.Lock()
		current := run == b.run
		wasActive := current && b.active
		if current {
			b.active = false
		}
		b.mu.Unlock()

		if err != nil && wasActive {
			b.logger.WithError(err).Error("Adapter scan failed")
			sink(device.ScanEvent{Kind: device.ScanFailed, Err: device.NormalizeError(err)})
		}
	})
	return nil
}

// StopScan makes the blocked adapter Scan call return.
func (b *ScanBackend) StopScan() error {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return nil
	}
	b.active = false
	b.mu.Unlock()

	if err := b.adapter.StopScan(); err != nil {
		return device.NormalizeError(err)
	}
	return nil
}
