// Package manager accepts raw device transports, authenticates them, and
// maintains the registry of live sessions with at most one session per
// device.
package manager

import (
	"context"
	"net"
	"strings"
	"sync"

	"github.com/codefionn/devicelink/internal/handshake"
	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/session"
	"github.com/codefionn/devicelink/internal/transport"
)

// Options configures handshake and session behavior for every accepted
// transport
type Options struct {
	Handshake handshake.Options
	Session   session.Options
}

// PeerInfo carries the transport-level metadata the registry derives the
// client address from
type PeerInfo struct {
	// RemoteAddr is the transport's own peer address (host:port).
	RemoteAddr string
	// ForwardedFor is the X-Forwarded-For header value, if any.
	ForwardedFor string
}

// Manager is the connection registry. It runs the handshake on each accepted
// transport and arbitrates the per-device session slot: installing a new
// session for a device forcibly terminates the previous one first.
type Manager struct {
	finder handshake.Finder
	opts   Options

	mu          sync.Mutex
	connections map[string]*session.Session
	counter     int

	onConnection []func(*session.Session)
}

// New creates a manager resolving devices through finder
func New(finder handshake.Finder, opts Options) *Manager {
	return &Manager{
		finder:      finder,
		opts:        opts,
		connections: make(map[string]*session.Session),
	}
}

// OnConnection registers an observer for newly established sessions. The
// observer runs before the session starts consuming traffic, so handlers it
// attaches cannot miss messages.
func (m *Manager) OnConnection(fn func(*session.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onConnection = append(m.onConnection, fn)
}

// HandleTransport authenticates one raw transport and, on success, installs
// a session for the resolved device. It blocks until the handshake concludes
// and returns the installed session.
//
// A failed handshake terminates the transport and touches nothing else.
func (m *Manager) HandleTransport(ctx context.Context, t transport.Transport, peer PeerInfo) (*session.Session, error) {
	deviceID, err := handshake.Run(ctx, t, m.finder, m.opts.Handshake)
	if err != nil {
		logger.Warn("Handshake failed for %s: %v", t.RemoteAddr(), err)
		t.Kill()
		return nil, err
	}

	clientAddr := clientAddress(peer)

	m.mu.Lock()
	id := m.counter
	m.counter++

	sess := session.New(id, deviceID, clientAddr, t, m.opts.Session)

	// At most one live session per device: the stale one is killed before
	// the replacement becomes visible. Its close observer still fires, but
	// the generation check below keeps it from removing the new entry.
	if old := m.connections[deviceID]; old != nil {
		logger.Info("Device %s reconnected, killing session %d", deviceID, old.ID())
		old.Kill()
	}
	m.connections[deviceID] = sess

	observers := append([]func(*session.Session){}, m.onConnection...)
	m.mu.Unlock()

	logger.Info("Device %s connected from %s (session %d)", deviceID, clientAddr, id)
	for _, fn := range observers {
		fn(sess)
	}

	sess.OnClose(func(string) {
		m.remove(deviceID, sess)
	})
	sess.Start()

	return sess, nil
}

// remove deletes the registry entry for deviceID, but only while sess is
// still the current occupant. A session that was superseded must not delete
// its successor.
func (m *Manager) remove(deviceID string, sess *session.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[deviceID] == sess {
		delete(m.connections, deviceID)
	}
}

// Connection returns the live session for a device, if any
func (m *Manager) Connection(deviceID string) (*session.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.connections[deviceID]
	return sess, ok
}

// Len reports the number of live sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.connections)
}

// Shutdown gracefully closes every live session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.connections))
	for _, sess := range m.connections {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		if err := sess.Close(); err != nil {
			logger.Warn("Session %d close failed: %v", sess.ID(), err)
		}
	}
}

// clientAddress derives the client address from the peer metadata: the first
// hop of a comma-separated X-Forwarded-For list when present, otherwise the
// transport's own peer address with the port stripped.
func clientAddress(peer PeerInfo) string {
	if peer.ForwardedFor != "" {
		first := strings.TrimSpace(strings.Split(peer.ForwardedFor, ",")[0])
		if first != "" {
			return first
		}
	}

	if host, _, err := net.SplitHostPort(peer.RemoteAddr); err == nil {
		return host
	}
	return peer.RemoteAddr
}
