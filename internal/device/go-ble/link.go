package goble

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/groutine"
)

type operation func(client gattClient)

// link runs every GATT request of one connection on a single worker goroutine, in
// submission order. Completions go to sink tagged with the link itself.
type link struct {
	addr   device.PeerAddress
	sink   func(device.LinkEvent)
	logger *logrus.Logger

	ops    chan operation
	ctx    context.Context
	cancel context.CancelFunc
	closed *atomic.Bool

	mu       sync.RWMutex
	client   gattClient
	services []*device.Service
	armed    map[*ble.Characteristic]bool
}

func newLink(addr device.PeerAddress, sink func(device.LinkEvent), queue int, logger *logrus.Logger) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		addr:   addr,
		sink:   sink,
		logger: logger,
		ops:    make(chan operation, queue),
		ctx:    ctx,
		cancel: cancel,
		closed: atomic.NewBool(false),
		armed:  make(map[*ble.Characteristic]bool),
	}
}

func (l *link) start(dial dialFunc, timeout time.Duration) {
	groutine.Go(l.ctx, "gatt-link-"+string(l.addr), func(ctx context.Context) {
		l.run(ctx, dial, timeout)
	})
}

func (l *link) run(ctx context.Context, dial dialFunc, timeout time.Duration) {
	l.logger.WithFields(logrus.Fields{
		"address":   l.addr,
		"goroutine": groutine.Name(ctx),
	}).Debug("Link worker started")

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	client, err := dial(dialCtx, l.addr)
	cancel()

	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"address": l.addr,
			"error":   err,
		}).Error("Failed to dial BLE device")
		if l.closed.CAS(false, true) {
			l.sink(device.LinkEvent{Kind: device.ConnectionStateChanged, Link: l, Err: NormalizeError(err)})
		}
		l.cancel()
		return
	}

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		_ = client.CancelConnection()
		return
	}
	l.client = client
	l.mu.Unlock()

	l.monitor(client)
	l.emit(device.LinkEvent{Kind: device.ConnectionStateChanged, Connected: true})

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-l.ops:
			if l.closed.Load() {
				return
			}
			op(client)
		}
	}
}

// monitor reports a remote disconnect once, when the client exposes it.
func (l *link) monitor(client gattClient) {
	dc, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		l.logger.Debug("Client does not support Disconnected() channel")
		return
	}

	groutine.Go(l.ctx, "gatt-link-monitor", func(ctx context.Context) {
		select {
		case <-dc.Disconnected():
			if l.closed.CAS(false, true) {
				l.logger.WithField("address", l.addr).Warn("Peer disconnected")
				l.sink(device.LinkEvent{Kind: device.ConnectionStateChanged, Link: l, Connected: false})
				l.cancel()
			}
		case <-ctx.Done():
		}
	})
}

func (l *link) emit(ev device.LinkEvent) {
	if l.closed.Load() {
		return
	}
	ev.Link = l
	l.sink(ev)
}

func (l *link) submit(op operation) error {
	if l.closed.Load() {
		return device.ErrLinkClosed
	}
	select {
	case l.ops <- op:
		return nil
	default:
		return device.ErrBusy
	}
}

func (l *link) Address() device.PeerAddress { return l.addr }

func (l *link) DiscoverServices() error {
	return l.submit(func(client gattClient) {
		profile, err := client.DiscoverProfile(true)
		if err == nil {
			services := servicesFromProfile(profile)
			l.mu.Lock()
			l.services = services
			l.mu.Unlock()

			l.logger.WithFields(logrus.Fields{
				"address":  l.addr,
				"services": len(services),
			}).Debug("Profile discovered successfully")
		}
		l.emit(device.LinkEvent{Kind: device.ServicesDiscovered, Err: NormalizeError(err)})
	})
}

func (l *link) Services() []*device.Service {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.services
}

// SetNotification only arms local delivery; go-ble subscribes when the CCCD is written.
func (l *link) SetNotification(c *device.Characteristic, enable bool) error {
	bc, err := bleCharacteristic(c)
	if err != nil {
		return err
	}
	if enable && !c.Properties.Has(device.PropNotify) && !c.Properties.Has(device.PropIndicate) {
		return fmt.Errorf("characteristic %s: %w", c.UUID, device.ErrUnsupported)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if enable {
		l.armed[bc] = true
	} else {
		delete(l.armed, bc)
	}
	return nil
}

func (l *link) WriteDescriptor(d *device.Descriptor, value []byte) error {
	bd, err := bleDescriptor(d)
	if err != nil {
		return err
	}
	value = append([]byte(nil), value...)

	if !d.IsCCCD() {
		return l.submit(func(client gattClient) {
			err := client.WriteDescriptor(bd, value)
			l.emit(device.LinkEvent{Kind: device.DescriptorWritten, Descriptor: d, Value: value, Err: NormalizeError(err)})
		})
	}

	c := d.Characteristic
	bc, err := bleCharacteristic(c)
	if err != nil {
		return err
	}
	return l.submit(func(client gattClient) {
		l.emit(device.LinkEvent{Kind: device.DescriptorWritten, Descriptor: d, Value: value, Err: l.writeCCCD(client, c, bc, value)})
	})
}

// writeCCCD turns a raw CCCD value into go-ble's Subscribe/Unsubscribe, which write the
// descriptor themselves.
func (l *link) writeCCCD(client gattClient, c *device.Characteristic, bc *ble.Characteristic, value []byte) error {
	var flags byte
	if len(value) > 0 {
		flags = value[0]
	}
	ind := flags&0x02 != 0

	if flags&0x03 == 0 {
		return NormalizeError(client.Unsubscribe(bc, c.Properties.Has(device.PropIndicate) && !c.Properties.Has(device.PropNotify)))
	}

	l.mu.RLock()
	armed := l.armed[bc]
	l.mu.RUnlock()
	if !armed {
		return fmt.Errorf("notifications for %s are not enabled locally", c.UUID)
	}

	return NormalizeError(client.Subscribe(bc, ind, func(data []byte) {
		l.emit(device.LinkEvent{
			Kind:           device.CharacteristicChanged,
			Characteristic: c,
			Value:          append([]byte(nil), data...),
		})
	}))
}

func (l *link) ReadDescriptor(d *device.Descriptor) error {
	bd, err := bleDescriptor(d)
	if err != nil {
		return err
	}
	return l.submit(func(client gattClient) {
		value, err := client.ReadDescriptor(bd)
		l.emit(device.LinkEvent{Kind: device.DescriptorRead, Descriptor: d, Value: value, Err: NormalizeError(err)})
	})
}

func (l *link) ReadCharacteristic(c *device.Characteristic) error {
	bc, err := bleCharacteristic(c)
	if err != nil {
		return err
	}
	return l.submit(func(client gattClient) {
		value, err := client.ReadCharacteristic(bc)
		l.emit(device.LinkEvent{Kind: device.CharacteristicRead, Characteristic: c, Value: value, Err: NormalizeError(err)})
	})
}

func (l *link) WriteCharacteristic(c *device.Characteristic, value []byte, mode device.WriteMode) error {
	bc, err := bleCharacteristic(c)
	if err != nil {
		return err
	}
	value = append([]byte(nil), value...)
	return l.submit(func(client gattClient) {
		err := client.WriteCharacteristic(bc, value, mode == device.WriteWithoutResponse)
		l.emit(device.LinkEvent{Kind: device.CharacteristicWritten, Characteristic: c, Mode: mode, Err: NormalizeError(err)})
	})
}

// Close cancels a pending dial or drops the connection. Queued operations are discarded.
func (l *link) Close() error {
	l.mu.Lock()
	if !l.closed.CAS(false, true) {
		l.mu.Unlock()
		return nil
	}
	client := l.client
	l.mu.Unlock()

	l.cancel()

	if client == nil {
		return nil
	}
	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	return nil
}
