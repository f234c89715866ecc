// Package tinyble binds the session and scanner to tinygo.org/x/bluetooth.
//
// The library has no descriptor API: the CCCD of every characteristic is synthesized and
// writing it maps to EnableNotifications. Other descriptor operations report
// device.ErrUnsupported.
package tinyble

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/groutine"
)

// maxAttributeLen is the largest attribute value ATT allows.
const maxAttributeLen = 512

// characteristic is the part of bluetooth.DeviceCharacteristic a link uses on every
// platform.
type characteristic interface {
	Read(data []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// ackWriter is the acknowledged write. The Linux adapter does not provide it.
type ackWriter interface {
	Write(p []byte) (int, error)
}

// peripheral is a connected bluetooth.Device.
type peripheral interface {
	Discover() ([]*device.Service, error)
	Disconnect() error
}

type connectFunc func(addr device.PeerAddress) (peripheral, error)

type operation func(p peripheral)

type link struct {
	addr   device.PeerAddress
	sink   func(device.LinkEvent)
	logger *logrus.Logger
	onDone func(*link)

	ops    chan operation
	ctx    context.Context
	cancel context.CancelFunc
	closed *atomic.Bool

	mu       sync.RWMutex
	remote   peripheral
	services []*device.Service
}

func newLink(addr device.PeerAddress, sink func(device.LinkEvent), queue int, logger *logrus.Logger) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		addr:   addr,
		sink:   sink,
		logger: logger,
		onDone: func(*link) {},
		ops:    make(chan operation, queue),
		ctx:    ctx,
		cancel: cancel,
		closed: atomic.NewBool(false),
	}
}

func (l *link) start(connect connectFunc) {
	groutine.Go(l.ctx, "tinygo-link-"+string(l.addr), func(ctx context.Context) {
		defer l.onDone(l)
		l.run(ctx, connect)
	})
}

func (l *link) run(ctx context.Context, connect connectFunc) {
	l.logger.WithFields(logrus.Fields{
		"address":   l.addr,
		"goroutine": groutine.Name(ctx),
	}).Debug("Link worker started")

	remote, err := connect(l.addr)
	if err != nil {
		l.logger.WithFields(logrus.Fields{
			"address": l.addr,
			"error":   err,
		}).Error("Failed to connect")
		if l.closed.CAS(false, true) {
			l.sink(device.LinkEvent{Kind: device.ConnectionStateChanged, Link: l, Err: device.NormalizeError(err)})
		}
		l.cancel()
		return
	}

	l.mu.Lock()
	if l.closed.Load() {
		l.mu.Unlock()
		_ = remote.Disconnect()
		return
	}
	l.remote = remote
	l.mu.Unlock()

	l.emit(device.LinkEvent{Kind: device.ConnectionStateChanged, Connected: true})

	for {
		select {
		case <-ctx.Done():
			return
		case op := <-l.ops:
			if l.closed.Load() {
				return
			}
			op(remote)
		}
	}
}

// peerDisconnected is called by the adapter-wide connect handler.
func (l *link) peerDisconnected() {
	if l.closed.CAS(false, true) {
		l.logger.WithField("address", l.addr).Warn("Peer disconnected")
		l.sink(device.LinkEvent{Kind: device.ConnectionStateChanged, Link: l, Connected: false})
		l.cancel()
	}
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

func handleOf(c *device.Characteristic) (characteristic, error) {
	if c == nil {
		return nil, &device.NotFoundError{Resource: "characteristic"}
	}
	h, ok := c.Handle.(characteristic)
	if !ok || h == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{c.UUID}}
	}
	return h, nil
}

func (l *link) Address() device.PeerAddress { return l.addr }

func (l *link) DiscoverServices() error {
	return l.submit(func(p peripheral) {
		services, err := p.Discover()
		if err == nil {
			l.mu.Lock()
			l.services = services
			l.mu.Unlock()
		}
		l.emit(device.LinkEvent{Kind: device.ServicesDiscovered, Err: device.NormalizeError(err)})
	})
}

func (l *link) Services() []*device.Service {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.services
}

// SetNotification has nothing to arm locally; EnableNotifications does both halves.
func (l *link) SetNotification(c *device.Characteristic, _ bool) error {
	_, err := handleOf(c)
	return err
}

func (l *link) WriteDescriptor(d *device.Descriptor, value []byte) error {
	if !d.IsCCCD() {
		return fmt.Errorf("descriptor write: %w", device.ErrUnsupported)
	}
	c := d.Characteristic
	h, err := handleOf(c)
	if err != nil {
		return err
	}

	enable := len(value) > 0 && value[0]&0x03 != 0
	return l.submit(func(peripheral) {
		var cb func([]byte)
		if enable {
			cb = func(buf []byte) {
				l.emit(device.LinkEvent{
					Kind:           device.CharacteristicChanged,
					Characteristic: c,
					Value:          append([]byte(nil), buf...),
				})
			}
		}
		err := h.EnableNotifications(cb)
		l.emit(device.LinkEvent{Kind: device.DescriptorWritten, Descriptor: d, Value: value, Err: device.NormalizeError(err)})
	})
}

func (l *link) ReadDescriptor(*device.Descriptor) error {
	return fmt.Errorf("descriptor read: %w", device.ErrUnsupported)
}

func (l *link) ReadCharacteristic(c *device.Characteristic) error {
	h, err := handleOf(c)
	if err != nil {
		return err
	}
	return l.submit(func(peripheral) {
		buf := make([]byte, maxAttributeLen)
		n, err := h.Read(buf)
		var value []byte
		if err == nil {
			value = buf[:n]
		}
		l.emit(device.LinkEvent{Kind: device.CharacteristicRead, Characteristic: c, Value: value, Err: device.NormalizeError(err)})
	})
}

func (l *link) WriteCharacteristic(c *device.Characteristic, value []byte, mode device.WriteMode) error {
	h, err := handleOf(c)
	if err != nil {
		return err
	}
	var acked ackWriter
	if mode == device.WriteWithResponse {
		w, ok := h.(ackWriter)
		if !ok {
			return fmt.Errorf("write with response to %s: %w", c.UUID, device.ErrUnsupported)
		}
		acked = w
	}
	value = append([]byte(nil), value...)
	return l.submit(func(peripheral) {
		var err error
		if acked != nil {
			_, err = acked.Write(value)
		} else {
			_, err = h.WriteWithoutResponse(value)
		}
		l.emit(device.LinkEvent{Kind: device.CharacteristicWritten, Characteristic: c, Mode: mode, Err: device.NormalizeError(err)})
	})
}

func (l *link) Close() error {
	l.mu.Lock()
	if !l.closed.CAS(false, true) {
		l.mu.Unlock()
		return nil
	}
	remote := l.remote
	l.mu.Unlock()

	l.cancel()
	if remote == nil {
		return nil
	}
	if err := remote.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", device.NormalizeError(err))
	}
	return nil
}
