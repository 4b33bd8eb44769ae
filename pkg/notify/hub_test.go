package notify

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicepact/voicepact/pkg/contract"
)

type fakeStatusSource struct {
	status contract.Status
	err    error
}

func (f *fakeStatusSource) Status(contractID string) (*contract.StatusReport, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &contract.StatusReport{ContractID: contractID, Status: f.status}, nil
}

type wsEnv struct {
	hub    *Hub
	server *httptest.Server
	cancel context.CancelFunc
}

func newWSEnv(t *testing.T, status StatusSource) *wsEnv {
	t.Helper()
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(NewRouter(hub, status))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return &wsEnv{hub: hub, server: server, cancel: cancel}
}

func (e *wsEnv) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration is consumed by the Run goroutine; give it a beat before
	// the test starts publishing.
	time.Sleep(100 * time.Millisecond)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_PingPong(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "client-1")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping", "timestamp": "12345"}))

	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
	assert.Equal(t, "12345", msg["timestamp"])
}

func TestHub_ContractStatusQuery(t *testing.T) {
	env := newWSEnv(t, &fakeStatusSource{status: contract.StatusActive})
	conn := env.dial(t, "client-1")

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":        "contract_status",
		"contract_id": "AG-250115-AB12CD",
	}))

	msg := readJSON(t, conn)
	assert.Equal(t, "contract_status_response", msg["type"])
	assert.Equal(t, "AG-250115-AB12CD", msg["contract_id"])
	assert.Equal(t, "active", msg["status"])
}

func TestHub_InvalidJSONIgnored(t *testing.T) {
	env := newWSEnv(t, nil)
	conn := env.dial(t, "client-1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping", "timestamp": "1"}))

	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestDispatcher_ContractUpdateReachesPartyOnly(t *testing.T) {
	env := newWSEnv(t, nil)
	partyConn := env.dial(t, "+254700111222")
	otherConn := env.dial(t, "+254700999888")

	d := NewDispatcher(env.hub, nil)
	d.ContractUpdated("AG-250115-AB12CD", "confirmed", []string{"+254700111222"})

	msg := readJSON(t, partyConn)
	assert.Equal(t, "contract_update", msg["type"])
	assert.Equal(t, "confirmed", msg["status"])

	require.NoError(t, otherConn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, _, err := otherConn.ReadMessage()
	assert.Error(t, err, "non-parties must not receive the update")
}

func TestDispatcher_PaymentUpdateBroadcasts(t *testing.T) {
	env := newWSEnv(t, nil)
	first := env.dial(t, "+254700111222")
	second := env.dial(t, "+254700333444")

	d := NewDispatcher(env.hub, nil)
	d.PaymentUpdated("AG-250115-AB12CD", "locked", 50000)

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readJSON(t, conn)
		assert.Equal(t, "payment_update", msg["type"])
		assert.Equal(t, "locked", msg["status"])
		assert.Equal(t, float64(50000), msg["amount"])
	}
}
