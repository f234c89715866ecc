package session

import (
	"strconv"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
)

func (s *Session) _handleLinkEvent(ev device.LinkEvent) {
	if ev.Link == nil || ev.Link != s._link {
		s.logger.WithFields(logrus.Fields{
			"event": ev.Kind.String(),
		}).Debug("Ignoring callback from a stale link")
		return
	}

	switch ev.Kind {
	case device.ConnectionStateChanged:
		s._onConnectionStateChanged(ev)
	case device.ServicesDiscovered:
		s._onServicesDiscovered(ev)
	case device.DescriptorWritten:
		s._onDescriptorWritten(ev)
	case device.DescriptorRead:
		s._onDescriptorRead(ev)
	case device.CharacteristicRead:
		s._onCharacteristicRead(ev)
	case device.CharacteristicWritten:
		s._onCharacteristicWritten(ev)
	case device.CharacteristicChanged:
		e := events.New(events.DataAvailable).WithData(ev.Value)
		e.Characteristic = ev.Characteristic
		s.dispatcher.Emit(e)
	default:
		s.logger.WithField("kind", int(ev.Kind)).Warn("Unknown link event")
	}
}

func (s *Session) _onConnectionStateChanged(ev device.LinkEvent) {
	logger := s.logger.WithFields(logrus.Fields{
		"address": s._peer.Address,
		"state":   s._state.String(),
	})
	peer := s._peer

	switch {
	case ev.Err != nil && s._state == device.Connecting:
		logger.WithError(ev.Err).Error("Connection failed")
		e := events.New(events.ConnectFail).WithErr(device.NormalizeError(ev.Err))
		e.Peer = peer
		s.dispatcher.Emit(e)
		s._release()

	case ev.Err != nil, !ev.Connected:
		if s._state == device.Connecting {
			// Disconnected before the connect completed, with a success status.
			logger.Warn("Link dropped while connecting")
			e := events.New(events.ConnectFail).WithErr(device.ErrNotConnected)
			e.Peer = peer
			s.dispatcher.Emit(e)
			s._release()
			return
		}
		logger.WithError(ev.Err).Warn("Connection lost")
		e := events.New(events.LostConnection).WithErr(device.NormalizeError(ev.Err))
		e.Peer = peer
		s.dispatcher.Emit(e)
		s._release()

	case s._state == device.Connecting:
		s._state = device.ConnectedUnconfigured
		logger.Info("Connected, discovering services...")
		e := events.New(events.ConnectSuccess)
		e.Peer = peer
		s.dispatcher.Emit(e)

		if err := s._link.DiscoverServices(); err != nil {
			logger.WithError(err).Error("Failed to start service discovery")
			s.dispatcher.Emit(events.New(events.ServicesDiscoverFail).WithErr(err))
			s._release()
		}

	default:
		logger.Debug("Duplicate connected callback ignored")
	}
}

func (s *Session) _onServicesDiscovered(ev device.LinkEvent) {
	if ev.Err != nil {
		s.logger.WithError(ev.Err).WithField("address", s._peer.Address).Error("Service discovery failed")
		s.dispatcher.Emit(events.New(events.ServicesDiscoverFail).WithErr(device.NormalizeError(ev.Err)))
		s._release()
		return
	}

	list := s._link.Services()
	s._services = orderedmap.New[string, *device.Service](len(list))
	for _, svc := range list {
		key := svc.UUID
		for n := 2; ; n++ {
			if _, dup := s._services.Get(key); !dup {
				break
			}
			key = svc.UUID + "#" + strconv.Itoa(n)
		}
		s._services.Set(key, svc)
	}

	s.logger.WithFields(logrus.Fields{
		"address":  s._peer.Address,
		"services": len(list),
	}).Info("Services discovered")

	e := events.New(events.ServicesDiscovered)
	e.Services = list
	s.dispatcher.Emit(e)
}

func (s *Session) _onDescriptorWritten(ev device.LinkEvent) {
	if !ev.Descriptor.IsCCCD() {
		return
	}

	if ev.Err != nil {
		s.logger.WithError(ev.Err).Error("Notification descriptor write failed")
		e := events.New(events.DescriptorWriteFail).WithErr(device.NormalizeError(ev.Err))
		e.Descriptor = ev.Descriptor
		s.dispatcher.Emit(e)
		s._release()
		return
	}

	s._state = device.ConnectedConfigured
	s.logger.WithField("address", s._peer.Address).Info("Notifications enabled, session configured")
	e := events.New(events.DescriptorWriteSuccess)
	e.Descriptor = ev.Descriptor
	s.dispatcher.Emit(e)
}

func (s *Session) _onDescriptorRead(ev device.LinkEvent) {
	if ev.Err != nil {
		s.logger.WithError(ev.Err).Error("Descriptor read failed")
		e := events.New(events.DescriptorReadFail).WithErr(device.NormalizeError(ev.Err))
		e.Descriptor = ev.Descriptor
		s.dispatcher.Emit(e)
		s._release()
		return
	}

	e := events.New(events.DescriptorReadSuccess).WithData(ev.Value)
	if ev.Descriptor != nil {
		d := *ev.Descriptor
		d.Value = e.Data
		e.Descriptor = &d
	}
	s.dispatcher.Emit(e)
}

// A failed read leaves the link up; every other transfer failure tears it down.
func (s *Session) _onCharacteristicRead(ev device.LinkEvent) {
	if ev.Err != nil {
		s.logger.WithError(ev.Err).Warn("Characteristic read failed")
		e := events.New(events.ReadFail).WithErr(device.NormalizeError(ev.Err))
		e.Characteristic = ev.Characteristic
		s.dispatcher.Emit(e)
		return
	}

	e := events.New(events.ReadSuccess).WithData(ev.Value)
	e.Characteristic = ev.Characteristic
	s.dispatcher.Emit(e)
}

func (s *Session) _onCharacteristicWritten(ev device.LinkEvent) {
	success, fail := events.WriteSuccess, events.WriteFail
	if ev.Mode == device.WriteWithResponse {
		success, fail = events.ReliableWriteSuccess, events.ReliableWriteFail
	}

	if ev.Err != nil {
		s.logger.WithError(ev.Err).WithField("mode", ev.Mode).Error("Write failed, closing connection")
		e := events.New(fail).WithErr(device.NormalizeError(ev.Err))
		e.Characteristic = ev.Characteristic
		s.dispatcher.Emit(e)
		s._release()
		return
	}

	e := events.New(success)
	e.Characteristic = ev.Characteristic
	s.dispatcher.Emit(e)
}
