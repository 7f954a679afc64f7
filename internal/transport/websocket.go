package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codefionn/devicelink/internal/logger"
	"github.com/codefionn/devicelink/internal/wire"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// Inbound frames buffered between the read pump and the consumer.
	frameBuffer = 16
)

// wsTransport adapts a gorilla WebSocket connection to the Transport
// interface. A single read pump goroutine feeds the frames channel; writes
// are serialized by a mutex.
type wsTransport struct {
	conn   *websocket.Conn
	frames chan Frame

	// done releases a read pump blocked on a full frames channel once the
	// transport is torn down and nobody will ever drain it.
	done     chan struct{}
	doneOnce sync.Once

	writeMu sync.Mutex

	infoMu  sync.Mutex
	info    CloseInfo
	infoSet bool

	killOnce sync.Once
}

// WebSocket wraps an accepted gorilla connection and starts its read pump
func WebSocket(conn *websocket.Conn) Transport {
	t := &wsTransport{
		conn:   conn,
		frames: make(chan Frame, frameBuffer),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(appData string) error {
		select {
		case t.frames <- Frame{Kind: FramePing}:
		default:
			// Consumer is busy; the keepalive is only advisory.
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	go t.readPump()
	return t
}

func (t *wsTransport) readPump() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.setCloseInfo(closeInfoFromError(err))
			close(t.frames)
			_ = t.conn.Close()
			return
		}
		select {
		case t.frames <- Frame{Kind: FrameData, Data: data}:
		case <-t.done:
			close(t.frames)
			return
		}
	}
}

func closeInfoFromError(err error) CloseInfo {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		return CloseInfo{Code: closeErr.Code, Reason: closeErr.Text}
	}
	// Reads that fail without a close frame count as an abnormal closure.
	return CloseInfo{Code: wire.CloseCodeAbnormal}
}

// setCloseInfo records how the transport ended; the first cause wins
func (t *wsTransport) setCloseInfo(info CloseInfo) {
	t.infoMu.Lock()
	defer t.infoMu.Unlock()
	if t.infoSet {
		return
	}
	t.info = info
	t.infoSet = true
}

func (t *wsTransport) Frames() <-chan Frame {
	return t.frames
}

func (t *wsTransport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("transport write: %w", err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	t.setCloseInfo(CloseInfo{Code: wire.CloseCodeNormal})

	t.writeMu.Lock()
	payload := websocket.FormatCloseMessage(websocket.CloseNormalClosure, wire.ReasonClosed)
	err := t.conn.WriteControl(websocket.CloseMessage, payload, time.Now().Add(writeWait))
	t.writeMu.Unlock()

	if err != nil && err != websocket.ErrCloseSent {
		logger.Debug("Close frame write failed, dropping connection: %v", err)
	}

	// Closing the underlying connection unblocks a pump waiting in
	// ReadMessage; stop unblocks one waiting on a full frames channel.
	t.stop()
	return t.conn.Close()
}

func (t *wsTransport) Kill() {
	t.killOnce.Do(func() {
		t.setCloseInfo(CloseInfo{Code: wire.CloseCodeAbnormal})
		t.stop()
		_ = t.conn.Close()
	})
}

func (t *wsTransport) stop() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *wsTransport) CloseInfo() CloseInfo {
	t.infoMu.Lock()
	defer t.infoMu.Unlock()
	return t.info
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}
