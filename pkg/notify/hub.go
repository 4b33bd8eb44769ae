// Package notify fans contract and payment events out to connected
// websocket clients and outbound SMS, decoupled from the transactions that
// produce the events.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// envelope is a message addressed to one client ID, or to everyone when
// ClientID is empty. Clients identify as the phone number they act for.
type envelope struct {
	ClientID string
	Payload  []byte
}

// Hub tracks connected websocket clients and routes messages to them. All
// registration and delivery happens on the Run goroutine, so no locks.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	outbound   chan envelope
	log        *zap.Logger
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan envelope, 64),
		log:        log,
	}
}

// Run dispatches hub traffic until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			return
		case c := <-h.register:
			if h.clients[c.id] == nil {
				h.clients[c.id] = make(map[*Client]struct{})
			}
			h.clients[c.id][c] = struct{}{}
			h.log.Info("websocket client connected", zap.String("client_id", c.id))
		case c := <-h.unregister:
			if set, ok := h.clients[c.id]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
					if len(set) == 0 {
						delete(h.clients, c.id)
					}
					h.log.Info("websocket client disconnected", zap.String("client_id", c.id))
				}
			}
		case env := <-h.outbound:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	send := func(c *Client) {
		select {
		case c.send <- env.Payload:
		default:
			// Slow consumer; drop the message rather than block the hub.
			h.log.Warn("websocket send buffer full, dropping message",
				zap.String("client_id", c.id))
		}
	}
	if env.ClientID != "" {
		for c := range h.clients[env.ClientID] {
			send(c)
		}
		return
	}
	for _, set := range h.clients {
		for c := range set {
			send(c)
		}
	}
}

// Send queues a message for one client ID. A no-op when nobody with that ID
// is connected.
func (h *Hub) Send(clientID string, payload []byte) {
	h.outbound <- envelope{ClientID: clientID, Payload: payload}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(payload []byte) {
	h.outbound <- envelope{Payload: payload}
}
