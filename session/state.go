// Package session holds the connection lifecycle states shared by the HTTP
// and WebSocket session implementations.
package session

// State is one step of a session's lifecycle. A session moves strictly
// forward through Created, optionally Handshaking, then cycles through
// Reading, Dispatching, and Writing until it reaches Closing and finally
// Closed.
type State int32

const (
	// Created is the state right after the connection was accepted.
	Created State = iota
	// Handshaking is entered only on TLS endpoints, before the first read.
	Handshaking
	// Reading waits for the next request or frame from the peer.
	Reading
	// Dispatching builds the response and notifies subscribers.
	Dispatching
	// Writing sends the response or reply to the peer.
	Writing
	// Closing shuts the send direction down.
	Closing
	// Closed is terminal; the socket is released.
	Closed
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Handshaking:
		return "handshaking"
	case Reading:
		return "reading"
	case Dispatching:
		return "dispatching"
	case Writing:
		return "writing"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}
