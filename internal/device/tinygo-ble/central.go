//go:build darwin || linux

package tinyble

import (
	"context"
	"fmt"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"tinygo.org/x/bluetooth"

	"github.com/srg/blegatt/internal/device"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultOperationQueue = 64
)

// CentralOptions tunes links opened by a Central.
type CentralOptions struct {
	ConnectTimeout time.Duration
	OperationQueue int
}

// Central opens links through bluetooth.DefaultAdapter.
//
// The adapter has a single connect handler, so disconnects are routed to links through
// a registry keyed by peer address.
type Central struct {
	adapter *bluetooth.Adapter
	opts    CentralOptions
	logger  *logrus.Logger
	links   *hashmap.Map[string, *link]
}

// Open enables the default adapter and returns a Central and a ScanBackend over it.
func Open(logger *logrus.Logger, opts *CentralOptions) (*Central, *ScanBackend, error) {
	c, err := newCentral(logger, opts)
	if err != nil {
		return nil, nil, err
	}
	return c, newScanBackend(c.adapter, c.logger), nil
}

// newCentral enables the default adapter and installs the disconnect router.
func newCentral(logger *logrus.Logger, opts *CentralOptions) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable adapter: %w", device.NormalizeError(err))
	}

	c := &Central{
		adapter: adapter,
		logger:  logger,
		links:   hashmap.New[string, *link](),
	}
	if opts != nil {
		c.opts = *opts
	}
	if c.opts.ConnectTimeout <= 0 {
		c.opts.ConnectTimeout = DefaultConnectTimeout
	}
	if c.opts.OperationQueue <= 0 {
		c.opts.OperationQueue = DefaultOperationQueue
	}

	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if connected {
			return
		}
		if l, ok := c.links.Get(d.Address.String()); ok {
			l.peerDisconnected()
		}
	})
	return c, nil
}

// Connect starts connecting to addr in the background and returns the link at once.
func (c *Central) Connect(addr device.PeerAddress, sink func(device.LinkEvent)) (device.Link, error) {
	if addr == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	if sink == nil {
		return nil, fmt.Errorf("link event sink is nil")
	}

	key := string(addr)
	if prev, ok := c.links.Get(key); ok {
		_ = prev.Close()
		c.links.Del(key)
	}

	l := newLink(addr, sink, c.opts.OperationQueue, c.logger)
	l.onDone = func(done *link) {
		if cur, ok := c.links.Get(key); ok && cur == done {
			c.links.Del(key)
		}
	}
	c.links.Set(key, l)
	l.start(c.connect)
	return l, nil
}

// connect blocks until the adapter connects or the timeout elapses. The adapter call
// itself cannot be cancelled; a late success is disconnected right away.
func (c *Central) connect(addr device.PeerAddress) (peripheral, error) {
	var ba bluetooth.Address
	ba.Set(string(addr))

	type result struct {
		dev bluetooth.Device
		err error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := c.adapter.Connect(ba, bluetooth.ConnectionParams{})
		ch <- result{d, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
	defer cancel()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.dev.Disconnect()
			}
		}()
		return nil, fmt.Errorf("connect to %s: %w", addr, device.ErrTimeout)
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		d := r.dev
		return &remoteDevice{dev: &d}, nil
	}
}

// remoteDevice adapts bluetooth.Device to peripheral.
type remoteDevice struct {
	dev *bluetooth.Device
}

func (r *remoteDevice) Discover() ([]*device.Service, error) {
	svcs, err := r.dev.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}

	out := make([]*device.Service, 0, len(svcs))
	for i := range svcs {
		svc := svcs[i]
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.UUID().String(), err)
		}

		s := device.NewService(svc.UUID().String(), &svc)
		for j := range chars {
			ch := chars[j]
			s.AddCharacteristic(ch.UUID().String(), characteristicProperties(&ch), &ch)
		}
		out = append(out, s)
	}
	return withCCCDs(out), nil
}

func (r *remoteDevice) Disconnect() error {
	return r.dev.Disconnect()
}

var _ characteristic = (*bluetooth.DeviceCharacteristic)(nil)
