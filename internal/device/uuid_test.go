package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("0x180D", "00002A37-0000-1000-8000-00805F9B34FB", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E")
	require.NoError(t, err)
	assert.Equal(t, []string{"180d", "2a37", "6e400001b5a3f393e0a9e50e24dcca9e"}, got)

	_, err = ValidateUUID()
	assert.Error(t, err, "empty list MUST be rejected")

	_, err = ValidateUUID("180d", " ")
	assert.ErrorContains(t, err, "index 1", "blank entry MUST be reported by position")
}

func TestSameUUID(t *testing.T) {
	assert.True(t, SameUUID("2902", "00002902-0000-1000-8000-00805f9b34fb"), "short and SIG-base forms MUST match")
	assert.True(t, SameUUID("{6E400001-B5A3-F393-E0A9-E50E24DCCA9E}", "6e400001b5a3f393e0a9e50e24dcca9e"))
	assert.False(t, SameUUID("2902", "2901"))
}

func TestPeer(t *testing.T) {
	p := Peer{Address: "AA:BB", Name: "Sensor", Services: []string{"180d", "6e400001b5a3f393e0a9e50e24dcca9e"}}

	assert.True(t, p.HasService("0x180D"))
	assert.True(t, p.HasService("6E400001-B5A3-F393-E0A9-E50E24DCCA9E"))
	assert.False(t, p.HasService("180f"))
	assert.Equal(t, "Sensor (AA:BB)", p.String())
	assert.Equal(t, "AA:BB", Peer{Address: "AA:BB"}.String(), "nameless peer MUST render as its address")
}

func TestConnectionState(t *testing.T) {
	tests := []struct {
		state     ConnectionState
		name      string
		connected bool
	}{
		{Disconnected, "disconnected", false},
		{Connecting, "connecting", false},
		{ConnectedUnconfigured, "connected_unconfigured", true},
		{ConnectedConfigured, "connected_configured", true},
		{ConnectionState(42), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.connected, tt.state.IsConnected())
		})
	}
}

func TestServiceTree(t *testing.T) {
	svc := NewService("0000180f-0000-1000-8000-00805f9b34fb", nil)
	assert.Equal(t, "180f", svc.UUID, "service UUID MUST be normalized")
	assert.Equal(t, "Battery Service", svc.KnownName)

	level := svc.AddCharacteristic("2A19", PropRead|PropNotify, nil)
	cccd := level.AddDescriptor("0x2902", nil)
	assert.Same(t, svc, level.Service, "characteristic MUST point at its service")
	assert.Same(t, level, cccd.Characteristic)
	assert.Equal(t, "read,notify", level.Properties.String())

	got, err := svc.Characteristic("00002a19-0000-1000-8000-00805f9b34fb")
	require.NoError(t, err)
	assert.Same(t, level, got)

	found, err := level.CCCD()
	require.NoError(t, err)
	assert.True(t, found.IsCCCD())

	_, err = svc.Characteristic("2a37")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, `characteristic "2a37" not found in service "180f"`, nf.Error())

	_, err = FindCharacteristic([]*Service{svc}, "ffff")
	assert.ErrorAs(t, err, &nf)
}

func TestNormalizeErrorSentinels(t *testing.T) {
	tests := []struct {
		msg  string
		want error
	}{
		{"adapter is powered off", ErrBluetoothOff},
		{"device not connected", ErrNotConnected},
		{"device already connected", ErrAlreadyConnected},
		{"connection is not initialized", ErrNotInitialized},
		{"operation timed out", ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := NormalizeError(assertErr(tt.msg))
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorContains(t, err, tt.msg, "platform message MUST survive")
			assert.Same(t, err, NormalizeError(err), "normalizing twice MUST be a no-op")
		})
	}
	assert.Nil(t, NormalizeError(nil))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
