package notify

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voicepact/voicepact/pkg/contract"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is phone-scoped, not origin-scoped; sessions carry no cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StatusSource answers contract_status queries from connected clients.
// Satisfied by the contract store.
type StatusSource interface {
	Status(contractID string) (*contract.StatusReport, error)
}

// Client is one websocket connection pumping through the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	id     string
	status StatusSource
	log    *zap.Logger
}

type inboundMessage struct {
	Type       string `json:"type"`
	Timestamp  string `json:"timestamp,omitempty"`
	ContractID string `json:"contract_id,omitempty"`
}

// readPump consumes client messages until the connection drops. Clients may
// send pings and contract_status queries; anything else is logged and
// ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("invalid websocket message", zap.String("client_id", c.id))
			continue
		}

		switch msg.Type {
		case "ping":
			c.reply(map[string]any{"type": "pong", "timestamp": msg.Timestamp})
		case "contract_status":
			c.replyContractStatus(msg.ContractID)
		default:
			c.log.Info("unknown websocket message type",
				zap.String("type", msg.Type), zap.String("client_id", c.id))
		}
	}
}

func (c *Client) replyContractStatus(contractID string) {
	if c.status == nil || contractID == "" {
		return
	}
	report, err := c.status.Status(contractID)
	if err != nil {
		c.reply(map[string]any{
			"type":        "contract_status_response",
			"contract_id": contractID,
			"error":       err.Error(),
		})
		return
	}
	c.reply(map[string]any{
		"type":        "contract_status_response",
		"contract_id": contractID,
		"status":      report.Status,
	})
}

func (c *Client) reply(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

// writePump flushes the send channel to the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS upgrades an HTTP request into a hub-managed websocket connection.
// The client ID is the phone number the connection acts for.
func ServeWS(hub *Hub, status StatusSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientID := chi.URLParam(r, "clientID")
		if clientID == "" {
			http.Error(w, "client id is required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			hub:    hub,
			conn:   conn,
			send:   make(chan []byte, 16),
			id:     clientID,
			status: status,
			log:    hub.log,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

// NewRouter creates a chi router for websocket connections. Mounted by the
// server under /ws.
func NewRouter(hub *Hub, status StatusSource) chi.Router {
	r := chi.NewRouter()
	r.Get("/{clientID}", ServeWS(hub, status))
	return r
}
