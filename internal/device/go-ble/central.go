package goble

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegatt/internal/device"
)

const (
	// DefaultConnectTimeout bounds a single dial.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultOperationQueue is how many GATT operations a link accepts before reporting
	// device.ErrBusy.
	DefaultOperationQueue = 64
)

// gattClient is the subset of ble.Client a link drives.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	ReadDescriptor(d *ble.Descriptor) ([]byte, error)
	WriteDescriptor(d *ble.Descriptor, v []byte) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

type dialFunc func(ctx context.Context, addr device.PeerAddress) (gattClient, error)

// CentralOptions tunes links opened by a Central.
type CentralOptions struct {
	ConnectTimeout time.Duration
	OperationQueue int
}

// Central opens go-ble links.
type Central struct {
	dial   dialFunc
	opts   CentralOptions
	logger *logrus.Logger
}

// Open creates a Central and a ScanBackend sharing one platform device.
func Open(logger *logrus.Logger, opts *CentralOptions) (*Central, *ScanBackend, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return newCentral(dialer(dev), logger, opts), newScanBackend(dev.Scan, logger), nil
}

func dialer(dev ble.Device) dialFunc {
	return func(ctx context.Context, addr device.PeerAddress) (gattClient, error) {
		client, err := dev.Dial(ctx, ble.NewAddr(string(addr)))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func newCentral(dial dialFunc, logger *logrus.Logger, opts *CentralOptions) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Central{dial: dial, logger: logger}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.ConnectTimeout <= 0 {
		c.opts.ConnectTimeout = DefaultConnectTimeout
	}
	if c.opts.OperationQueue <= 0 {
		c.opts.OperationQueue = DefaultOperationQueue
	}
	return c
}

// Connect starts dialing addr in the background and returns the link at once.
func (c *Central) Connect(addr device.PeerAddress, sink func(device.LinkEvent)) (device.Link, error) {
	if addr == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("link event sink is nil")
	}

	l := newLink(addr, sink, c.opts.OperationQueue, c.logger)
	l.start(c.dial, c.opts.ConnectTimeout)
	return l, nil
}
