// Package websocket streams notifications to live visualization clients.
package websocket

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/talkincode/resilienced/internal/metrics"
	"github.com/talkincode/resilienced/internal/notify"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Encoded messages waiting for fan-out
	broadcast chan []byte

	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new WebSocket hub
func NewHub(ctx context.Context) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run starts the hub, it returns when the hub is stopped
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetLiveClients(n)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client buffer full, drop the client
					close(client.send)
					delete(h.clients, client)
					metrics.NotificationDropped()
					zap.L().Warn("visualization client too slow, disconnected",
						zap.String("namespace", "websocket"),
						zap.String("client", client.id))
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetLiveClients(n)
		}
	}
}

// Stop stops the hub and closes every client
func (h *Hub) Stop() {
	h.cancel()
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	metrics.SetLiveClients(0)
}

// Broadcast encodes payload and queues it for every client. It never blocks:
// when the queue is full the message is dropped.
func (h *Hub) Broadcast(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}
	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	default:
	}
	select {
	case h.broadcast <- data:
	default:
		metrics.NotificationDropped()
		zap.L().Warn("notification dropped, broadcast queue full", zap.String("namespace", "websocket"))
	}
	return nil
}

// Attach forwards every payload published on topic to the clients. The
// returned function detaches the hub.
func (h *Hub) Attach(bus *notify.Bus, topic string) (func(), error) {
	return bus.Subscribe(topic, func(payload interface{}) {
		if err := h.Broadcast(payload); err != nil && !errors.Is(err, context.Canceled) {
			zap.L().Error("broadcast notification failed",
				zap.String("namespace", "websocket"),
				zap.String("topic", topic),
				zap.Error(err))
		}
	})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// add registers c unless the hub is stopped, then c is closed instead
func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		close(c.send)
		return false
	}
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetLiveClients(n)
	return true
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) join(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}
