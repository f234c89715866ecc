// Package session drives a single GATT connection through connect, service discovery,
// endpoint configuration and steady-state transfer.
//
// A Session is an actor: public operations and platform callbacks are queued on its
// inbox and applied one at a time, so state, link and endpoints are never observed
// half-updated. Consumer events are delivered through an events.Dispatcher in the order
// the platform reported them.
package session

import (
	"fmt"

	"github.com/Arceliar/phony"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
)

// Session owns at most one live link.
type Session struct {
	phony.Inbox

	central    device.Central
	dispatcher *events.Dispatcher
	logger     *logrus.Logger

	_link     device.Link
	_peer     device.Peer
	_state    device.ConnectionState
	_read     *device.Characteristic
	_write    *device.Characteristic
	_services *orderedmap.OrderedMap[string, *device.Service]
}

// New creates a disconnected session over central. A nil central is an initialization
// failure.
func New(central device.Central, handler events.Handler, logger *logrus.Logger) (*Session, error) {
	if central == nil {
		return nil, fmt.Errorf("session: %w", device.ErrNotInitialized)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		central:    central,
		dispatcher: events.NewDispatcher(handler, logger),
		logger:     logger,
		_state:     device.Disconnected,
	}, nil
}

// Open connects to addr, closing any live link first. The outcome is reported as
// ConnectSuccess or ConnectFail.
func (s *Session) Open(addr device.PeerAddress) {
	s.OpenPeer(device.Peer{Address: addr})
}

// OpenPeer is Open for a scanned peer. Connection events carry peer as given, so the
// advertised name and RSSI travel with them.
func (s *Session) OpenPeer(peer device.Peer) {
	phony.Block(s, func() { s._open(peer) })
}

// Close releases the live link and clears both endpoints. It is safe to call at any time.
func (s *Session) Close() {
	phony.Block(s, s._release)
}

// Configure binds the read and write endpoints. With notify set it also enables value
// pushes on read; the state becomes ConnectedConfigured once the peer acknowledges the
// descriptor write. It returns false when nothing could be issued.
func (s *Session) Configure(read, write *device.Characteristic, notify bool) bool {
	var ok bool
	phony.Block(s, func() { ok = s._configure(read, write, notify) })
	return ok
}

// RequestRead reads the read endpoint. The result arrives as ReadSuccess or ReadFail.
func (s *Session) RequestRead() bool {
	var ok bool
	phony.Block(s, func() { ok = s._requestRead() })
	return ok
}

// Write sends payload to the write endpoint without asking the peer for an
// acknowledgement. WriteSuccess only means the packet was handed to the local radio.
// Payloads over device.MaxWritePayload are refused.
func (s *Session) Write(payload []byte) bool {
	var ok bool
	phony.Block(s, func() { ok = s._issueWrite(payload, device.WriteWithoutResponse) })
	return ok
}

// WriteReliable is Write with a peer acknowledgement, reported as ReliableWriteSuccess or
// ReliableWriteFail.
func (s *Session) WriteReliable(payload []byte) bool {
	var ok bool
	phony.Block(s, func() { ok = s._issueWrite(payload, device.WriteWithResponse) })
	return ok
}

// ReadDescriptor reads d on the live link. The result arrives as DescriptorReadSuccess or
// DescriptorReadFail.
func (s *Session) ReadDescriptor(d *device.Descriptor) bool {
	var ok bool
	phony.Block(s, func() { ok = s._readDescriptor(d) })
	return ok
}

// Services returns the discovered services in discovery order. It is empty while
// discovery is pending and nil without a live link.
func (s *Session) Services() []*device.Service {
	var out []*device.Service
	phony.Block(s, func() {
		if s._link == nil {
			return
		}
		if s._services == nil {
			out = []*device.Service{}
			return
		}
		out = make([]*device.Service, 0, s._services.Len())
		for pair := s._services.Oldest(); pair != nil; pair = pair.Next() {
			out = append(out, pair.Value)
		}
	})
	return out
}

// Service looks up a discovered service by UUID.
func (s *Session) Service(uuid string) (*device.Service, error) {
	var (
		svc *device.Service
		ok  bool
	)
	phony.Block(s, func() {
		if s._link != nil && s._services != nil {
			svc, ok = s._services.Get(device.NormalizeUUID(uuid))
		}
	})
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{device.NormalizeUUID(uuid)}}
	}
	return svc, nil
}

// State returns the current connection state.
func (s *Session) State() device.ConnectionState {
	var st device.ConnectionState
	phony.Block(s, func() { st = s._state })
	return st
}

// Peer returns the address of the live link, or "" when disconnected.
func (s *Session) Peer() device.PeerAddress {
	var p device.PeerAddress
	phony.Block(s, func() { p = s._peer.Address })
	return p
}

// Endpoints returns the bound read and write characteristics.
func (s *Session) Endpoints() (read, write *device.Characteristic) {
	phony.Block(s, func() { read, write = s._read, s._write })
	return read, write
}

// Flush waits until every queued platform event has been applied and every resulting
// consumer event has been handled.
func (s *Session) Flush() {
	phony.Block(s, func() {})
	s.dispatcher.Flush()
}

func (s *Session) _open(peer device.Peer) {
	addr := peer.Address
	if addr == "" {
		s.logger.Warn("Refusing to open a connection without a peer address")
		return
	}
	if s._link != nil {
		s.logger.WithField("address", s._peer.Address).Info("Closing previous connection before opening a new one")
		s._release()
	}

	s.logger.WithField("address", addr).Info("Connecting to device...")

	link, err := s.central.Connect(addr, s.sink)
	if err != nil {
		s.logger.WithError(err).WithField("address", addr).Error("Failed to issue connect")
		e := events.New(events.ConnectFail).WithErr(device.NormalizeError(err))
		e.Peer = peer
		s.dispatcher.Emit(e)
		return
	}

	s._link, s._peer, s._state = link, peer, device.Connecting
}

// _release is the single teardown path: link, state, endpoints and service cache
// change together.
func (s *Session) _release() {
	if s._link != nil {
		if err := s._link.Close(); err != nil {
			s.logger.WithError(err).WithField("address", s._peer.Address).Warn("Failed to close link")
		}
		s.logger.WithField("address", s._peer.Address).Info("Connection closed")
	}
	s._link = nil
	s._peer = device.Peer{}
	s._state = device.Disconnected
	s._read, s._write = nil, nil
	s._services = nil
}

func (s *Session) _configure(read, write *device.Characteristic, notify bool) bool {
	if s._link == nil || !s._state.IsConnected() {
		s.logger.Warn("Configure requires a connected session")
		return false
	}
	if read == nil || write == nil {
		s.logger.Warn("Configure requires both read and write characteristics")
		return false
	}

	logger := s.logger.WithFields(logrus.Fields{
		"read":   read.UUID,
		"write":  write.UUID,
		"notify": notify,
	})
	if !notify {
		s._read, s._write = read, write
		logger.Info("Endpoints bound")
		return true
	}

	// Endpoints stay unbound unless every step below was issued.
	cccd, err := read.CCCD()
	if err != nil {
		logger.WithError(err).Error("Read characteristic cannot notify")
		return false
	}

	if err := s._link.SetNotification(read, true); err != nil {
		logger.WithError(err).Error("Failed to enable notifications")
		return false
	}

	value := device.EnableNotificationValue
	if read.Properties.Has(device.PropIndicate) && !read.Properties.Has(device.PropNotify) {
		value = device.EnableIndicationValue
	}
	if err := s._link.WriteDescriptor(cccd, value); err != nil {
		logger.WithError(err).Error("Failed to write notification descriptor")
		if err := s._link.SetNotification(read, false); err != nil {
			logger.WithError(err).Debug("Failed to disable notifications")
		}
		return false
	}

	s._read, s._write = read, write
	logger.Info("Endpoints bound, waiting for descriptor write")
	return true
}

func (s *Session) _requestRead() bool {
	if s._link == nil || s._read == nil {
		return false
	}
	if err := s._link.ReadCharacteristic(s._read); err != nil {
		s.logger.WithError(err).Warn("Failed to issue read")
		return false
	}
	return true
}

func (s *Session) _issueWrite(payload []byte, mode device.WriteMode) bool {
	if len(payload) > device.MaxWritePayload {
		s.logger.WithFields(logrus.Fields{
			"size":  len(payload),
			"limit": device.MaxWritePayload,
		}).Warn("Write payload too large, dropped")
		return false
	}
	if s._link == nil || s._write == nil {
		return false
	}

	data := append([]byte(nil), payload...)
	if err := s._link.WriteCharacteristic(s._write, data, mode); err != nil {
		s.logger.WithError(err).WithField("mode", mode).Warn("Failed to issue write")
		return false
	}
	return true
}

func (s *Session) _readDescriptor(d *device.Descriptor) bool {
	if s._link == nil || d == nil {
		return false
	}
	if err := s._link.ReadDescriptor(d); err != nil {
		s.logger.WithError(err).WithField("descriptor", d.UUID).Warn("Failed to issue descriptor read")
		return false
	}
	return true
}

// sink is handed to the platform binding; it may run on any goroutine.
func (s *Session) sink(ev device.LinkEvent) {
	s.Act(nil, func() { s._handleLinkEvent(ev) })
}
