// Package transport maintains the realtime websocket channel to the backend.
// A Channel owns one logical connection, reconnects on loss, and fans incoming
// frames out to subscribers. Frames only signal that something changed;
// authoritative data always comes from the REST client.
package transport

// ConnectionState is the lifecycle of a Channel.
type ConnectionState int

const (
	// StateDisconnected means no connection and no attempt in flight.
	StateDisconnected ConnectionState = iota
	// StateConnecting means a dial or redial is in progress.
	StateConnecting
	// StateConnected means the socket is up and frames flow.
	StateConnected
	// StateFailed is terminal: either the credential was rejected or too
	// many consecutive dials failed. Recovery needs a new Connect call.
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
