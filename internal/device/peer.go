package device

import "fmt"

// PeerAddress is the opaque platform identifier of a remote device (MAC on Linux,
// CoreBluetooth UUID on macOS). It is the scanner's dedup key.
type PeerAddress string

func (a PeerAddress) String() string { return string(a) }

// Peer describes a remote device as seen in an advertisement.
type Peer struct {
	Address          PeerAddress
	Name             string
	RSSI             int
	Connectable      bool
	Services         []string
	ManufacturerData []byte
}

// HasService reports whether the peer advertised uuid.
func (p Peer) HasService(uuid string) bool {
	for _, s := range p.Services {
		if SameUUID(s, uuid) {
			return true
		}
	}
	return false
}

func (p Peer) String() string {
	if p.Name == "" {
		return p.Address.String()
	}
	return fmt.Sprintf("%s (%s)", p.Name, p.Address)
}
