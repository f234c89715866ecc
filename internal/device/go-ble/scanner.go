package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/groutine"
)

type scanFunc func(ctx context.Context, allowDup bool, h ble.AdvHandler) error

// ScanBackend runs go-ble scans for the scanner package.
type ScanBackend struct {
	scan   scanFunc
	logger *logrus.Logger

	mu     sync.Mutex
	active *scanRun
}

type scanRun struct {
	cancel context.CancelFunc
}

func newScanBackend(scan scanFunc, logger *logrus.Logger) *ScanBackend {
	if logger == nil {
		logger = logrus.New()
	}
	return &ScanBackend{scan: scan, logger: logger}
}

// StartScan reports every advertisement, duplicates included, so a name carried only by
// a later scan response still reaches the scanner.
func (b *ScanBackend) StartScan(sink func(device.ScanEvent)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active != nil {
		return errors.New("scan already in progress")
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &scanRun{cancel: cancel}
	b.active = run

	groutine.Go(ctx, "ble-scan", func(ctx context.Context) {
		defer cancel()

		err := b.scan(ctx, true, func(adv ble.Advertisement) {
			sink(device.ScanEvent{Kind: device.ScanResult, Peer: peerFromAdvertisement(adv)})
		})

		b.mu.Lock()
		if b.active == run {
			b.active = nil
		}
		b.mu.Unlock()

		if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		b.logger.WithError(err).Debug("go-ble scan ended with error")
		sink(device.ScanEvent{Kind: device.ScanFailed, Err: NormalizeError(err)})
	})
	return nil
}

// StopScan cancels the running scan, if any.
func (b *ScanBackend) StopScan() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active != nil {
		b.active.cancel()
		b.active = nil
	}
	return nil
}
