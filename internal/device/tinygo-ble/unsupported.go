//go:build !darwin && !linux

package tinyble

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blegatt/internal/device"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultOperationQueue = 64
)

type CentralOptions struct {
	ConnectTimeout time.Duration
	OperationQueue int
}

type Central struct{}

func Open(*logrus.Logger, *CentralOptions) (*Central, *ScanBackend, error) {
	return nil, nil, fmt.Errorf("tinygo backend: %w", device.ErrUnsupported)
}

func (c *Central) Connect(device.PeerAddress, func(device.LinkEvent)) (device.Link, error) {
	return nil, device.ErrUnsupported
}

type ScanBackend struct{}

func (b *ScanBackend) StartScan(func(device.ScanEvent)) error { return device.ErrUnsupported }
func (b *ScanBackend) StopScan() error                         { return device.ErrUnsupported }
