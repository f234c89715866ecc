package devicefactory

import (
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blegatt/internal/device"
	goble "github.com/srg/blegatt/internal/device/go-ble"
	"github.com/srg/blegatt/internal/testutils"
)

func TestNewUnknownBackend(t *testing.T) {
	b, err := New(Options{Backend: "bluez"}, nil)

	assert.Nil(t, b)
	assert.ErrorIs(t, err, device.ErrNotInitialized, "unknown backend MUST be an initialization failure")
	assert.ErrorContains(t, err, "bluez")
}

func TestNewGoBLEDeviceFailure(t *testing.T) {
	// GOAL: Verify a platform device that cannot open surfaces as an initialization failure
	//
	// TEST SCENARIO: go-ble DeviceFactory fails with powered-off → ErrNotInitialized and ErrBluetoothOff

	original := goble.DeviceFactory
	t.Cleanup(func() { goble.DeviceFactory = original })
	goble.DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}

	_, err := New(Options{}, testutils.NewTestHelper(t).Logger)

	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrNotInitialized)
	assert.ErrorIs(t, err, device.ErrBluetoothOff, "platform cause MUST be preserved")
}

func TestNewUsesFactoryEntry(t *testing.T) {
	// GOAL: Verify New dispatches on the backend name and passes options through
	//
	// TEST SCENARIO: replace the tinygo entry → New(tinygo) returns its bindings

	central := testutils.NewFakeCentral()
	backend := testutils.NewFakeScanBackend()

	original := Factory[TinyGo]
	t.Cleanup(func() { Factory[TinyGo] = original })

	var got Options
	Factory[TinyGo] = func(opts Options, _ *logrus.Logger) (*Bindings, error) {
		got = opts
		return &Bindings{Central: central, Scanner: backend}, nil
	}

	b, err := New(Options{Backend: TinyGo, OperationQueue: 8}, nil)
	require.NoError(t, err)
	assert.Same(t, central, b.Central)
	assert.Same(t, backend, b.Scanner)
	assert.Equal(t, 8, got.OperationQueue)
}
