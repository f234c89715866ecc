// Package devicefactory selects the native BLE binding once and hands its capabilities to
// the scanner and the session.
package devicefactory

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/blegatt/internal/device"
	goble "github.com/srg/blegatt/internal/device/go-ble"
	tinyble "github.com/srg/blegatt/internal/device/tinygo-ble"
)

// Backend names
const (
	GoBLE  = "go-ble"
	TinyGo = "tinygo"
)

// Options configures the selected binding.
type Options struct {
	Backend        string
	ConnectTimeout time.Duration
	OperationQueue int
}

// Bindings are the capabilities of one native binding.
type Bindings struct {
	Central device.Central
	Scanner device.ScanBackend
}

// Factory opens a binding by name. Tests replace entries.
var Factory = map[string]func(opts Options, logger *logrus.Logger) (*Bindings, error){
	GoBLE:  newGoBLE,
	TinyGo: newTinyGo,
}

// New opens the binding named in opts. An empty name selects go-ble. Any failure is an
// initialization failure wrapping device.ErrNotInitialized.
func New(opts Options, logger *logrus.Logger) (*Bindings, error) {
	if logger == nil {
		logger = logrus.New()
	}
	name := opts.Backend
	if name == "" {
		name = GoBLE
	}

	open, ok := Factory[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown backend %q", device.ErrNotInitialized, name)
	}

	b, err := open(opts, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s backend: %w", device.ErrNotInitialized, name, err)
	}

	logger.WithField("backend", name).Debug("BLE backend initialized")
	return b, nil
}

func newGoBLE(opts Options, logger *logrus.Logger) (*Bindings, error) {
	central, scan, err := goble.Open(logger, &goble.CentralOptions{
		ConnectTimeout: opts.ConnectTimeout,
		OperationQueue: opts.OperationQueue,
	})
	if err != nil {
		return nil, err
	}
	return &Bindings{Central: central, Scanner: scan}, nil
}

func newTinyGo(opts Options, logger *logrus.Logger) (*Bindings, error) {
	central, scan, err := tinyble.Open(logger, &tinyble.CentralOptions{
		ConnectTimeout: opts.ConnectTimeout,
		OperationQueue: opts.OperationQueue,
	})
	if err != nil {
		return nil, err
	}
	return &Bindings{Central: central, Scanner: scan}, nil
}
