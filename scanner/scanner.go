package scanner

import (
	"fmt"
	"time"

	"github.com/Arceliar/phony"
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blegatt/internal/bledb"
	"github.com/srg/blegatt/internal/device"
	"github.com/srg/blegatt/internal/events"
	"go.uber.org/atomic"
)

// DefaultScanDuration is used when Start is given a non-positive duration.
const DefaultScanDuration = 3000 * time.Millisecond

// ScanOptions narrows which named peers are reported.
type ScanOptions struct {
	ServiceUUIDs []string
	AllowList    []device.PeerAddress
	BlockList    []device.PeerAddress
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithOptions installs peer filters.
func WithOptions(opts *ScanOptions) Option {
	return func(s *Scanner) {
		if opts != nil {
			s.options = *opts
			s.options.ServiceUUIDs = bledb.NormalizeUUIDs(opts.ServiceUUIDs)
		}
	}
}

// WithAfterFunc replaces time.AfterFunc, used by tests to drive the scan deadline.
func WithAfterFunc(f func(time.Duration, func()) *time.Timer) Option {
	return func(s *Scanner) { s.afterFunc = f }
}

// Scanner runs timed discovery windows and reports each named peer once per window.
//
// All fields prefixed with an underscore are owned by the actor and only touched from
// inside Act/Block.
type Scanner struct {
	phony.Inbox

	backend    device.ScanBackend
	dispatcher *events.Dispatcher
	logger     *logrus.Logger
	options    ScanOptions
	afterFunc  func(time.Duration, func()) *time.Timer

	running *atomic.Bool

	_seen       *hashmap.Map[device.PeerAddress, device.Peer]
	_timer      *time.Timer
	_generation uint64
}

// New creates a scanner over backend. A nil backend is an initialization failure.
func New(backend device.ScanBackend, handler events.Handler, logger *logrus.Logger, opts ...Option) (*Scanner, error) {
	if backend == nil {
		return nil, fmt.Errorf("scanner: %w", device.ErrNotInitialized)
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Scanner{
		backend:    backend,
		dispatcher: events.NewDispatcher(handler, logger),
		logger:     logger,
		afterFunc:  time.AfterFunc,
		running:    atomic.NewBool(false),
		_seen:      hashmap.New[device.PeerAddress, device.Peer](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start opens a discovery window that closes itself after duration.
// Calling Start while a window is open does nothing.
func (s *Scanner) Start(duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultScanDuration
	}

	var err error
	phony.Block(s, func() {
		if !s.running.CAS(false, true) {
			s.logger.Debug("Scan already running, start ignored")
			return
		}

		s._seen = hashmap.New[device.PeerAddress, device.Peer]()
		s._generation++
		gen := s._generation

		s._timer = s.afterFunc(duration, func() {
			s.Act(nil, func() {
				if gen == s._generation {
					s.logger.WithField("duration", duration).Debug("Scan window elapsed")
					s._stop()
				}
			})
		})

		if err = s.backend.StartScan(func(ev device.ScanEvent) {
			s.Act(nil, func() { s._handleScanEvent(gen, ev) })
		}); err != nil {
			s._generation++
			s._disarm()
			s.running.Store(false)
			return
		}

		s.logger.WithFields(logrus.Fields{
			"duration": duration,
			"services": s.options.ServiceUUIDs,
		}).Info("Starting BLE scan...")
	})

	if err != nil {
		return fmt.Errorf("failed to start scan: %w", device.NormalizeError(err))
	}
	return nil
}

// Stop closes the current discovery window. It emits ScanStopped only if a window was open.
func (s *Scanner) Stop() {
	phony.Block(s, s._stop)
}

// IsScanning reports whether a discovery window is open.
func (s *Scanner) IsScanning() bool {
	return s.running.Load()
}

// Seen returns the number of peers reported in the current window.
func (s *Scanner) Seen() int {
	var n int
	phony.Block(s, func() { n = s._seen.Len() })
	return n
}

// Flush waits until every event emitted so far has been handled.
func (s *Scanner) Flush() {
	phony.Block(s, func() {})
	s.dispatcher.Flush()
}

func (s *Scanner) _stop() {
	defer s._clearSeen()

	if !s.running.CAS(true, false) {
		return
	}
	s._generation++
	s._disarm()

	if err := s.backend.StopScan(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scan backend")
	}

	s.logger.WithField("device_count", s._seen.Len()).Info("BLE scan completed")
	s.dispatcher.Emit(events.New(events.ScanStopped))
}

func (s *Scanner) _handleScanEvent(gen uint64, ev device.ScanEvent) {
	if gen != s._generation || !s.running.Load() {
		return
	}

	switch ev.Kind {
	case device.ScanFailed:
		// No StopScan and no ScanStopped here: the platform already ended the scan.
		s.running.Store(false)
		s._generation++
		s._disarm()
		s._clearSeen()

		s.logger.WithError(ev.Err).Error("BLE scan failed")
		s.dispatcher.Emit(events.New(events.ScanError).WithErr(device.NormalizeError(ev.Err)))

	case device.ScanResult:
		s._handleResult(ev.Peer)
	}
}

func (s *Scanner) _handleResult(peer device.Peer) {
	if peer.Address == "" || peer.Name == "" {
		return
	}
	if _, seen := s._seen.Get(peer.Address); seen {
		return
	}
	if !s.shouldIncludePeer(peer) {
		s.logger.WithField("address", peer.Address).Debug("Peer filtered out")
		return
	}
	if !s._seen.Insert(peer.Address, peer) {
		return
	}

	s.logger.WithFields(logrus.Fields{
		"device":  peer.Name,
		"address": peer.Address,
		"rssi":    peer.RSSI,
	}).Info("Discovered new device")

	e := events.New(events.DeviceFound)
	e.Peer = peer
	s.dispatcher.Emit(e)
}

func (s *Scanner) _disarm() {
	if s._timer != nil {
		s._timer.Stop()
		s._timer = nil
	}
}

func (s *Scanner) _clearSeen() {
	if s._seen.Len() > 0 {
		s._seen = hashmap.New[device.PeerAddress, device.Peer]()
	}
}

// shouldIncludePeer applies the allow, block and service filters
func (s *Scanner) shouldIncludePeer(peer device.Peer) bool {
	for _, blocked := range s.options.BlockList {
		if peer.Address == blocked {
			return false
		}
	}

	if len(s.options.AllowList) > 0 {
		allowed := false
		for _, a := range s.options.AllowList {
			if peer.Address == a {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(s.options.ServiceUUIDs) > 0 {
		for _, required := range s.options.ServiceUUIDs {
			if peer.HasService(required) {
				return true
			}
		}
		return false
	}

	return true
}
