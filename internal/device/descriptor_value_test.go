package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClientConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    ClientConfig
		wantErr bool
	}{
		{"disabled", DisableNotificationValue, ClientConfig{}, false},
		{"notifications", EnableNotificationValue, ClientConfig{Notifications: true}, false},
		{"indications", EnableIndicationValue, ClientConfig{Indications: true}, false},
		{"both", []byte{0x03, 0x00}, ClientConfig{Notifications: true, Indications: true}, false},
		{"too short", []byte{0x01}, ClientConfig{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClientConfig(tt.data)
			if tt.wantErr {
				assert.Error(t, err, "invalid length MUST fail")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParsePresentationFormat(t *testing.T) {
	pf, err := ParsePresentationFormat([]byte{0x04, 0xfe, 0xad, 0x27, 0x01, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint8(0x04), pf.Format)
	assert.Equal(t, int8(-2), pf.Exponent, "exponent MUST be signed")
	assert.Equal(t, uint16(0x27ad), pf.Unit, "unit MUST be little-endian")

	_, err = ParsePresentationFormat([]byte{0x04})
	assert.Error(t, err)
}

func TestDescribeDescriptorValue(t *testing.T) {
	assert.Equal(t, `"TX"`, DescribeDescriptorValue("2901", []byte("TX\x00")))
	assert.Equal(t, "notifications=true indications=false", DescribeDescriptorValue("00002902-0000-1000-8000-00805f9b34fb", EnableNotificationValue))
	assert.Equal(t, "010203", DescribeDescriptorValue("2902", []byte{1, 2, 3}), "malformed CCCD MUST fall back to hex")
	assert.Equal(t, "deadbeef", DescribeDescriptorValue("fff1", []byte{0xde, 0xad, 0xbe, 0xef}), "unknown descriptor MUST fall back to hex")
}
