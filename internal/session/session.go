// Package session implements the per-connection message protocol that runs
// after a device has authenticated: correlated request/response exchange with
// receiver-side acks, timeouts, duplicate suppression, idle supervision, and
// a single teardown path that settles every in-flight request.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/transport"
	"github.com/codefionn/devicelink/internal/wire"
)

// Options configures an established connection
type Options struct {
	// IdleTimeout kills the connection when no inbound traffic arrives for
	// this long.
	IdleTimeout time.Duration
	// MessageTimeout bounds each phase of an outbound request: first the wait
	// for the ack, then (restarted on ack) the wait for the response.
	MessageTimeout time.Duration
	// QueueLimit is the size of the in-flight request ring.
	QueueLimit int
}

// Session owns one authenticated device transport.
//
// Inbound frames are processed sequentially by a single goroutine; Send may
// be called concurrently from any number of goroutines. Observers must be
// registered before Start; at teardown the whole subscription list is
// dropped and late registrations never fire.
type Session struct {
	id         int
	deviceID   string
	clientAddr string

	t    transport.Transport
	opts Options

	mu          sync.Mutex
	ring        []*pendingRequest
	byKey       map[matchKey][]*pendingRequest
	counter     int
	lastInbound *int
	closed      bool
	started     bool

	idleTimer *time.Timer

	onMessage []func(*wire.Message)
	onType    map[string][]func(*wire.Message)
	onGoodbye []func()
	onTimeout []func()
	onError   []func(error)
	onClose   []func(string)

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a session around an authenticated transport. The session is
// inert until Start is called.
func New(id int, deviceID, clientAddr string, t transport.Transport, opts Options) *Session {
	return &Session{
		id:         id,
		deviceID:   deviceID,
		clientAddr: clientAddr,
		t:          t,
		opts:       opts,
		ring:       make([]*pendingRequest, opts.QueueLimit),
		byKey:      make(map[matchKey][]*pendingRequest),
		onType:     make(map[string][]func(*wire.Message)),
		done:       make(chan struct{}),
	}
}

// ID returns the registry-assigned session id
func (s *Session) ID() int { return s.id }

// DeviceID returns the authenticated device identity
func (s *Session) DeviceID() string { return s.deviceID }

// ClientAddr returns the derived client address
func (s *Session) ClientAddr() string { return s.clientAddr }

// Done is closed once teardown has completed
func (s *Session) Done() <-chan struct{} { return s.done }

// Start arms the idle timer and begins consuming the transport
func (s *Session) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.idleTimer = time.AfterFunc(s.opts.IdleTimeout, s.idleExpired)
	s.mu.Unlock()

	go s.run()
}

// Close requests a graceful shutdown. Safe to call more than once.
func (s *Session) Close() error {
	return s.t.Close()
}

// Kill tears the connection down without negotiation. Safe to call more than
// once.
func (s *Session) Kill() {
	s.t.Kill()
}

// Observer registration

// OnMessage registers an observer for every inbound application message
func (s *Session) OnMessage(fn func(*wire.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onMessage = append(s.onMessage, fn)
}

// OnType registers an observer for inbound application messages of one type
func (s *Session) OnType(msgType string, fn func(*wire.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onType[msgType] = append(s.onType[msgType], fn)
}

// OnGoodbye registers an observer for the peer's intent-to-close notice
func (s *Session) OnGoodbye(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onGoodbye = append(s.onGoodbye, fn)
}

// OnTimeout registers an observer for the idle timeout
func (s *Session) OnTimeout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onTimeout = append(s.onTimeout, fn)
}

// OnError registers an observer for non-fatal protocol observations
func (s *Session) OnError(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onError = append(s.onError, fn)
}

// OnClose registers an observer for teardown; it receives the normalized
// close reason
func (s *Session) OnClose(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.onClose = append(s.onClose, fn)
}

// Send transmits a correlated request and blocks until the device responds,
// a timeout fires, or the connection closes. On success it returns the
// response payload with the correlation fields stripped.
func (s *Session) Send(msgType, key string, payload map[string]interface{}) (map[string]interface{}, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrConnectionClosed
	}

	id := s.counter
	if s.ring[id] != nil {
		s.mu.Unlock()
		return nil, ErrQueueFull
	}

	data, err := wire.NewRequest(id, msgType, key, payload).Encode()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	// The write happens under the lock so slot reservation and wire order
	// cannot interleave between competing senders. A write failure leaves the
	// slot unoccupied and the counter unchanged.
	if err := s.t.Send(data); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	p := &pendingRequest{
		id:      id,
		msgType: msgType,
		key:     key,
		gen:     1,
		done:    make(chan outcome, 1),
	}
	gen := p.gen
	p.timer = time.AfterFunc(s.opts.MessageTimeout, func() { s.expire(p, gen) })

	s.ring[id] = p
	k := matchKey{msgType: msgType, key: key}
	s.byKey[k] = append(s.byKey[k], p)
	s.counter = (s.counter + 1) % s.opts.QueueLimit
	s.mu.Unlock()

	o := <-p.done
	return o.payload, o.err
}

// Pending reports how many outbound requests are in flight
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.ring {
		if p != nil {
			n++
		}
	}
	return n
}

// run consumes the transport until it closes, then tears the session down
func (s *Session) run() {
	for frame := range s.t.Frames() {
		s.refreshIdle()
		if frame.Kind == transport.FramePing {
			continue
		}
		s.handleFrame(frame.Data)
	}

	info := s.t.CloseInfo()
	s.teardown(wire.CloseReason(info.Code, info.Reason))
}

func (s *Session) handleFrame(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		s.emitError(err)
		return
	}

	switch {
	case msg.Type == wire.TypeAck && msg.HasID():
		s.handleAck(*msg.ID)
	case msg.Type == wire.TypeGoodbye:
		s.emitGoodbye()
	case msg.HasCode() && msg.HasID() && msg.Type != "":
		s.handleResponse(msg)
	case msg.HasID() && msg.Type != "":
		s.handleRequest(msg)
	default:
		s.emitError(fmt.Errorf("wrong message format: %s", data))
	}
}

// handleAck moves a pending request from the ack phase to the response phase
func (s *Session) handleAck(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.slot(id)
	if p == nil || p.resolved || p.acked {
		return
	}

	p.acked = true
	p.gen++
	gen := p.gen
	p.timer.Stop()
	p.timer = time.AfterFunc(s.opts.MessageTimeout, func() { s.expire(p, gen) })
}

// handleRequest processes an inbound application request: ack it back first,
// suppress an immediate duplicate of the previous id, then deliver.
//
// Duplicate suppression remembers only the single most recent inbound id, so
// it catches an immediate retransmission but not interleaved replays.
func (s *Session) handleRequest(msg *wire.Message) {
	id := *msg.ID

	ack, err := wire.NewAck(id).Encode()
	if err == nil {
		err = s.t.Send(ack)
	}
	if err != nil {
		s.emitError(fmt.Errorf("ack for message %d: %w", id, err))
	}

	s.mu.Lock()
	if s.lastInbound != nil && *s.lastInbound == id {
		s.mu.Unlock()
		logger.Debug("Session %d: dropped duplicate of message %d from device %s", s.id, id, s.deviceID)
		return
	}
	last := id
	s.lastInbound = &last

	generic := append([]func(*wire.Message){}, s.onMessage...)
	typed := append([]func(*wire.Message){}, s.onType[msg.Type]...)
	s.mu.Unlock()

	for _, fn := range generic {
		fn(msg)
	}
	for _, fn := range typed {
		fn(msg)
	}
}

// handleResponse settles the oldest pending request with the same type and
// key. Devices do not echo the request id, so correlation is FIFO per
// (type, key); a response that matches nothing is dropped.
func (s *Session) handleResponse(msg *wire.Message) {
	k := matchKey{msgType: msg.Type, key: msg.Key}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byKey[k]
	if len(list) == 0 {
		logger.Debug("Session %d: unmatched response type=%q key=%q dropped", s.id, msg.Type, msg.Key)
		return
	}
	p := list[0]

	if *msg.Code != wire.CodeOK {
		s.resolveLocked(p, nil, wire.NewResponseError(*msg.Code))
		return
	}
	s.resolveLocked(p, responsePayload(msg), nil)
}

// expire fires when a pending request's current phase ran out of time
func (s *Session) expire(p *pendingRequest, gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.resolved || p.gen != gen {
		// Lost the race against the ack, the response, or teardown.
		return
	}
	if p.acked {
		s.resolveLocked(p, nil, ErrResponseTimeout)
	} else {
		s.resolveLocked(p, nil, ErrAckTimeout)
	}
}

// resolveLocked settles a pending request exactly once and frees its slot.
// Callers must hold s.mu.
func (s *Session) resolveLocked(p *pendingRequest, payload map[string]interface{}, err error) {
	p.resolved = true
	p.gen++
	if p.timer != nil {
		p.timer.Stop()
	}

	s.ring[p.id] = nil
	k := matchKey{msgType: p.msgType, key: p.key}
	list := s.byKey[k]
	for i, candidate := range list {
		if candidate == p {
			s.byKey[k] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.byKey[k]) == 0 {
		delete(s.byKey, k)
	}

	p.done <- outcome{payload: payload, err: err}
}

func (s *Session) slot(id int) *pendingRequest {
	if id < 0 || id >= len(s.ring) {
		return nil
	}
	return s.ring[id]
}

func (s *Session) refreshIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.idleTimer == nil {
		return
	}
	s.idleTimer.Reset(s.opts.IdleTimeout)
}

// idleExpired reports the idle timeout and forces the connection down
func (s *Session) idleExpired() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	observers := append([]func(){}, s.onTimeout...)
	s.mu.Unlock()

	logger.Info("Session %d: device %s idle timeout", s.id, s.deviceID)
	for _, fn := range observers {
		fn()
	}
	s.t.Kill()
}

// teardown is the single exit path. It settles every pending request with
// ErrConnectionClosed, stops the timers, drops the subscription list, and
// notifies close observers with the normalized reason.
func (s *Session) teardown(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		for _, p := range s.ring {
			if p != nil {
				s.resolveLocked(p, nil, ErrConnectionClosed)
			}
		}
		closeObservers := s.onClose
		s.onMessage = nil
		s.onType = nil
		s.onGoodbye = nil
		s.onTimeout = nil
		s.onError = nil
		s.onClose = nil
		s.mu.Unlock()

		logger.Info("Session %d: device %s closed (%s)", s.id, s.deviceID, reason)
		for _, fn := range closeObservers {
			fn(reason)
		}
		close(s.done)
	})
}

func (s *Session) emitGoodbye() {
	s.mu.Lock()
	observers := append([]func(){}, s.onGoodbye...)
	s.mu.Unlock()

	logger.Debug("Session %d: device %s sent goodbye", s.id, s.deviceID)
	for _, fn := range observers {
		fn()
	}
}

// emitError reports a non-fatal protocol observation
func (s *Session) emitError(err error) {
	s.mu.Lock()
	observers := append([]func(error){}, s.onError...)
	s.mu.Unlock()

	logger.Warn("Session %d: device %s: %v", s.id, s.deviceID, err)
	for _, fn := range observers {
		fn(err)
	}
}

// responsePayload rebuilds the delivered payload with the correlation fields
// (id, code) stripped
func responsePayload(msg *wire.Message) map[string]interface{} {
	payload := make(map[string]interface{}, len(msg.Payload)+2)
	for name, value := range msg.Payload {
		payload[name] = value
	}
	payload["type"] = msg.Type
	if msg.Key != "" {
		payload["key"] = msg.Key
	}
	return payload
}
