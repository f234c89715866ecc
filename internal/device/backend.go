package device

// ScanEventKind tags a raw scan event.
type ScanEventKind int

const (
	ScanResult ScanEventKind = iota
	ScanFailed
)

// ScanEvent is what a ScanBackend reports from its own goroutine.
type ScanEvent struct {
	Kind ScanEventKind
	Peer Peer
	Err  error
}

// ScanBackend is the discovery capability of a native binding.
//
// StartScan begins delivering raw results to sink until StopScan is called or the
// platform fails, in which case a single ScanFailed event is delivered. Backends report
// duplicate advertisements; filtering is the scanner's job.
type ScanBackend interface {
	StartScan(sink func(ScanEvent)) error
	StopScan() error
}

// LinkEventKind tags a raw connection event.
type LinkEventKind int

const (
	ConnectionStateChanged LinkEventKind = iota
	ServicesDiscovered
	DescriptorWritten
	DescriptorRead
	CharacteristicRead
	CharacteristicWritten
	CharacteristicChanged
)

func (k LinkEventKind) String() string {
	switch k {
	case ConnectionStateChanged:
		return "connection_state_changed"
	case ServicesDiscovered:
		return "services_discovered"
	case DescriptorWritten:
		return "descriptor_written"
	case DescriptorRead:
		return "descriptor_read"
	case CharacteristicRead:
		return "characteristic_read"
	case CharacteristicWritten:
		return "characteristic_written"
	case CharacteristicChanged:
		return "characteristic_changed"
	default:
		return "unknown"
	}
}

// LinkEvent is a completion or push reported by a Link. Err nil means success status.
type LinkEvent struct {
	Kind LinkEventKind
	Link Link

	// Connected is the new link state for ConnectionStateChanged.
	Connected bool

	Characteristic *Characteristic
	Descriptor     *Descriptor
	Value          []byte
	Mode           WriteMode
	Err            error
}

// Central opens links to peers.
//
// Connect returns a Link immediately; the outcome arrives later as a
// ConnectionStateChanged event on sink. Every event of that link carries the same Link
// value so receivers can filter superseded links by identity.
type Central interface {
	Connect(addr PeerAddress, sink func(LinkEvent)) (Link, error)
}

// Link is one low-level connection. Every operation only issues the request and returns;
// a non-nil error means nothing was issued and no completion event will follow.
type Link interface {
	Address() PeerAddress
	DiscoverServices() error
	Services() []*Service

	// SetNotification arms or disarms local delivery of value pushes for c. The peer is
	// told through a CCCD write.
	SetNotification(c *Characteristic, enable bool) error
	WriteDescriptor(d *Descriptor, value []byte) error
	ReadDescriptor(d *Descriptor) error
	ReadCharacteristic(c *Characteristic) error
	WriteCharacteristic(c *Characteristic, value []byte, mode WriteMode) error

	// Close releases the link. It is idempotent and emits no event.
	Close() error
}
