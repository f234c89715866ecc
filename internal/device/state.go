package device

// ConnectionState is the lifecycle position of a connection session.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	ConnectedUnconfigured
	ConnectedConfigured
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedUnconfigured:
		return "connected_unconfigured"
	case ConnectedConfigured:
		return "connected_configured"
	default:
		return "unknown"
	}
}

// IsConnected is true for both connected states.
func (s ConnectionState) IsConnected() bool {
	return s == ConnectedUnconfigured || s == ConnectedConfigured
}
