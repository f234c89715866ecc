package device

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Well-known GATT descriptor UUIDs
const (
	DescriptorUserDescription    = "2901"
	DescriptorPresentationFormat = "2904"
)

// ClientConfig is the decoded CCCD value.
type ClientConfig struct {
	Notifications bool
	Indications   bool
}

// PresentationFormat is the decoded Characteristic Presentation Format (0x2904).
type PresentationFormat struct {
	Format      uint8
	Exponent    int8
	Unit        uint16
	Namespace   uint8
	Description uint16
}

// ParseClientConfig decodes the 2-byte CCCD value: bit 0 notifications, bit 1 indications.
func ParseClientConfig(data []byte) (*ClientConfig, error) {
	if len(data) != 2 {
		return nil, fmt.Errorf("invalid length for client config: expected 2, got %d", len(data))
	}
	value := binary.LittleEndian.Uint16(data)
	return &ClientConfig{
		Notifications: value&0x0001 != 0,
		Indications:   value&0x0002 != 0,
	}, nil
}

// ParseUserDescription decodes a UTF-8, optionally NUL-terminated, user description.
func ParseUserDescription(data []byte) (string, error) {
	str := strings.TrimRight(string(data), "\x00")
	if !utf8.ValidString(str) {
		return "", fmt.Errorf("invalid UTF-8 in user description")
	}
	return str, nil
}

// ParsePresentationFormat decodes the 7-byte presentation format.
func ParsePresentationFormat(data []byte) (*PresentationFormat, error) {
	if len(data) != 7 {
		return nil, fmt.Errorf("invalid length for presentation format: expected 7, got %d", len(data))
	}
	return &PresentationFormat{
		Format:      data[0],
		Exponent:    int8(data[1]),
		Unit:        binary.LittleEndian.Uint16(data[2:4]),
		Namespace:   data[4],
		Description: binary.LittleEndian.Uint16(data[5:7]),
	}, nil
}

// DescribeDescriptorValue renders a descriptor value for humans, falling back to hex for
// unknown descriptors or malformed values.
func DescribeDescriptorValue(uuid string, data []byte) string {
	switch NormalizeUUID(uuid) {
	case DescriptorUserDescription:
		if s, err := ParseUserDescription(data); err == nil {
			return fmt.Sprintf("%q", s)
		}
	case CCCDUUID:
		if cc, err := ParseClientConfig(data); err == nil {
			return fmt.Sprintf("notifications=%t indications=%t", cc.Notifications, cc.Indications)
		}
	case DescriptorPresentationFormat:
		if pf, err := ParsePresentationFormat(data); err == nil {
			return fmt.Sprintf("format=0x%02x exponent=%d unit=0x%04x", pf.Format, pf.Exponent, pf.Unit)
		}
	}
	return hex.EncodeToString(data)
}
