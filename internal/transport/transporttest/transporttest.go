// Package transporttest provides an in-memory Transport for exercising the
// protocol engine without a network.
package transporttest

import (
	"errors"
	"sync"

	"github.com/codefionn/devicelink/internal/transport"
	"github.com/codefionn/devicelink/internal/wire"
)

// ErrSendOnClosed is returned by Send after the fake transport has closed
var ErrSendOnClosed = errors.New("send on closed transport")

// Conn is a scriptable in-memory Transport. The test side injects inbound
// frames with Deliver/Ping/PeerClose and inspects outbound traffic on Sent.
type Conn struct {
	// Sent receives every payload the engine writes, in order.
	Sent chan []byte

	frames chan transport.Frame

	mu      sync.Mutex
	closed  bool
	info    transport.CloseInfo
	sendErr error

	remoteAddr string
}

// New creates an open fake transport
func New() *Conn {
	return &Conn{
		Sent:       make(chan []byte, 64),
		frames:     make(chan transport.Frame, 64),
		remoteAddr: "10.0.0.9:52810",
	}
}

// SetRemoteAddr overrides the reported peer address
func (c *Conn) SetRemoteAddr(addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAddr = addr
}

// FailSends makes every subsequent Send return err
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Deliver injects an inbound data frame
func (c *Conn) Deliver(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames <- transport.Frame{Kind: transport.FrameData, Data: data}
}

// Ping injects a transport keepalive
func (c *Conn) Ping() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.frames <- transport.Frame{Kind: transport.FramePing}
}

// PeerClose simulates the peer closing the connection
func (c *Conn) PeerClose(code int, reason string) {
	c.shutdown(transport.CloseInfo{Code: code, Reason: reason})
}

// Closed reports whether the transport has ended
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) shutdown(info transport.CloseInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.info = info
	close(c.frames)
}

// Frames implements transport.Transport
func (c *Conn) Frames() <-chan transport.Frame {
	return c.frames
}

// Send implements transport.Transport
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.closed {
		return ErrSendOnClosed
	}
	c.Sent <- data
	return nil
}

// Close implements transport.Transport
func (c *Conn) Close() error {
	c.shutdown(transport.CloseInfo{Code: wire.CloseCodeNormal})
	return nil
}

// Kill implements transport.Transport
func (c *Conn) Kill() {
	c.shutdown(transport.CloseInfo{Code: wire.CloseCodeAbnormal})
}

// CloseInfo implements transport.Transport
func (c *Conn) CloseInfo() transport.CloseInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

// RemoteAddr implements transport.Transport
func (c *Conn) RemoteAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteAddr
}
