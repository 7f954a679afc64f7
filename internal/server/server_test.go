package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/devicelink/internal/config"
	"github.com/codefionn/devicelink/internal/devices"
	"github.com/codefionn/devicelink/internal/handshake"
	"github.com/codefionn/devicelink/internal/manager"
	"github.com/codefionn/devicelink/internal/session"
	"github.com/codefionn/devicelink/internal/signature"
)

func testServer(t *testing.T) (*httptest.Server, *manager.Manager) {
	t.Helper()

	store := devices.NewStore()
	store.Add(handshake.Device{ID: "dev-1", PublicKey: "PK1", PrivateKey: "S1"})

	cfg := config.DefaultConfig()
	m := manager.New(store, manager.Options{
		Handshake: handshake.Options{
			Timeout:   cfg.HandshakeTimeout(),
			Algorithm: cfg.Handshake.Algorithm,
			NonceSize: cfg.Handshake.NonceSize,
		},
		Session: session.Options{
			IdleTimeout:    cfg.ConnectionTimeout(),
			MessageTimeout: cfg.MessageTimeout(),
			QueueLimit:     cfg.Connections.Messages.QueueLimit,
		},
	})

	srv := httptest.NewServer(New(cfg, m).Handler())
	t.Cleanup(srv.Close)
	return srv, m
}

func dialDevice(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	return raw
}

// authenticate performs the device side of the handshake
func authenticate(t *testing.T, conn *websocket.Conn, publicKey, privateKey string) {
	t.Helper()

	writeJSON(t, conn, map[string]interface{}{"type": "hello", "public_key": publicKey})

	challenge := readJSON(t, conn)
	require.Equal(t, "challenge", challenge["type"])
	nonce, _ := challenge["nonce"].(string)
	require.NotEmpty(t, nonce)

	sign, err := signature.Sign([]byte(privateKey), []byte(nonce), signature.AlgorithmSHA1)
	require.NoError(t, err)
	writeJSON(t, conn, map[string]interface{}{"type": "authenticate", "sign": sign})

	welcome := readJSON(t, conn)
	require.Equal(t, "welcome", welcome["type"])
}

func waitForSession(t *testing.T, m *manager.Manager, deviceID string) *session.Session {
	t.Helper()
	var sess *session.Session
	require.Eventually(t, func() bool {
		s, ok := m.Connection(deviceID)
		if ok {
			sess = s
		}
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	return sess
}

func TestDeviceConnectsOverWebSocket(t *testing.T) {
	srv, m := testServer(t)

	conn := dialDevice(t, srv, nil)
	authenticate(t, conn, "PK1", "S1")

	sess := waitForSession(t, m, "dev-1")
	assert.Equal(t, "dev-1", sess.DeviceID())
	assert.Equal(t, 0, sess.Pending())
}

func TestInboundMessageAckedOverWebSocket(t *testing.T) {
	srv, m := testServer(t)

	conn := dialDevice(t, srv, nil)
	authenticate(t, conn, "PK1", "S1")
	waitForSession(t, m, "dev-1")

	writeJSON(t, conn, map[string]interface{}{"type": "track", "id": 3, "lat": 1.25})

	ack := readJSON(t, conn)
	assert.Equal(t, "ack", ack["type"])
	assert.Equal(t, float64(3), ack["id"])
}

func TestOutboundRequestRoundTripOverWebSocket(t *testing.T) {
	srv, m := testServer(t)

	conn := dialDevice(t, srv, nil)
	authenticate(t, conn, "PK1", "S1")
	sess := waitForSession(t, m, "dev-1")

	result := make(chan map[string]interface{}, 1)
	errs := make(chan error, 1)
	go func() {
		payload, err := sess.Send("temperature", "probe", nil)
		if err != nil {
			errs <- err
			return
		}
		result <- payload
	}()

	request := readJSON(t, conn)
	require.Equal(t, "temperature", request["type"])
	id := request["id"]

	writeJSON(t, conn, map[string]interface{}{"type": "ack", "id": id})
	writeJSON(t, conn, map[string]interface{}{
		"type": "temperature", "key": "probe", "id": 40, "code": 0, "value": 19.0,
	})

	select {
	case payload := <-result:
		assert.Equal(t, 19.0, payload["value"])
	case err := <-errs:
		t.Fatalf("send failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("no response")
	}
}

func TestRejectedHandshakeDropsConnection(t *testing.T) {
	srv, m := testServer(t)

	conn := dialDevice(t, srv, nil)
	writeJSON(t, conn, map[string]interface{}{"type": "hello", "public_key": "stranger"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestForwardedForHeaderUsedAsClientAddress(t *testing.T) {
	srv, m := testServer(t)

	header := http.Header{}
	header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	conn := dialDevice(t, srv, header)
	authenticate(t, conn, "PK1", "S1")

	sess := waitForSession(t, m, "dev-1")
	assert.Equal(t, "203.0.113.7", sess.ClientAddr())
}

func TestHealthEndpoint(t *testing.T) {
	srv, m := testServer(t)

	conn := dialDevice(t, srv, nil)
	authenticate(t, conn, "PK1", "S1")
	waitForSession(t, m, "dev-1")

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["connections"])
}
