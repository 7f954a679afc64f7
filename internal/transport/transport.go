// Package transport abstracts the duplex message channel a device connection
// runs over. The protocol engine only sees frames, close information, and the
// send/close/kill operations; the concrete WebSocket wiring lives in the
// adapter.
package transport

// FrameKind discriminates what the peer sent
type FrameKind int

const (
	// FrameData is an application or protocol message
	FrameData FrameKind = iota
	// FramePing is a transport-level keepalive
	FramePing
)

// Frame is one inbound event from the peer
type Frame struct {
	Kind FrameKind
	Data []byte
}

// CloseInfo describes how a transport ended. It is valid once Frames() has
// been closed.
type CloseInfo struct {
	Code   int
	Reason string
}

// Transport is a bidirectional message channel to one device.
//
// Frames() delivers inbound frames in arrival order and is closed exactly
// once, when the transport is no longer usable; there must be at most one
// reader at a time. Close requests a graceful shutdown, Kill tears the
// connection down without negotiation. Both are safe to call more than once.
type Transport interface {
	Frames() <-chan Frame
	Send(data []byte) error
	Close() error
	Kill()
	CloseInfo() CloseInfo
	RemoteAddr() string
}
