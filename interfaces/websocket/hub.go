package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/observability"
)

// Hub maintains the active connections, grouped by the map each session
// subscribed to. A client may hold several connections to the same map;
// broadcast excludes every connection of the originating client so a
// session never echoes its own operation back at itself.
type Hub struct {
	rooms map[string]map[*Client]bool // mapID -> set of clients
	mu    sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *roomMessage

	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
	metrics *observability.Metrics
}

type roomMessage struct {
	mapID          string
	originClientID string
	data           []byte
}

// NewHub creates a hub.
func NewHub(logger *zap.Logger, metrics *observability.Metrics) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		broadcast:  make(chan *roomMessage, 1000),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run is the hub's main event loop.
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastToRoom(msg)

		case <-ticker.C:
			h.pingAll()
		}
	}
}

// Stop shuts the hub down.
func (h *Hub) Stop() {
	h.cancel()
}

// drop hands a client to the unregister path. Once the hub has shut
// down nobody drains the channel any more and closeAllConnections has
// already released every connection, so the send is skipped instead of
// blocking the caller's goroutine.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// SendToMap queues a message for every subscriber of the map except the
// originating client's connections.
func (h *Hub) SendToMap(mapID, originClientID string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast: %w", err)
	}
	select {
	case h.broadcast <- &roomMessage{mapID: mapID, originClientID: originClientID, data: data}:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("broadcast channel full, message dropped")
	}
}

// SubscriberCount returns the number of connections on a map.
func (h *Hub) SubscriberCount(mapID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[mapID])
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[client.mapID] == nil {
		h.rooms[client.mapID] = make(map[*Client]bool)
	}
	h.rooms[client.mapID][client] = true
	h.metrics.ConnectionOpened()

	h.logger.Info("client registered",
		zap.String("mapID", client.mapID),
		zap.String("clientID", client.clientID),
		zap.String("connectionID", client.id),
		zap.Int("mapConnections", len(h.rooms[client.mapID])),
	)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.rooms[client.mapID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.rooms, client.mapID)
	}
	h.metrics.ConnectionClosed()

	h.logger.Info("client unregistered",
		zap.String("mapID", client.mapID),
		zap.String("clientID", client.clientID),
		zap.String("connectionID", client.id),
		zap.Int("remainingConnections", len(clients)),
	)
}

func (h *Hub) broadcastToRoom(msg *roomMessage) {
	h.mu.RLock()
	clients := h.rooms[msg.mapID]
	h.mu.RUnlock()

	for client := range clients {
		if client.clientID == msg.originClientID {
			continue
		}
		select {
		case client.send <- msg.data:
		default:
			// Send buffer full: the client cannot keep up, drop it.
			h.logger.Warn("closing slow client",
				zap.String("mapID", client.mapID),
				zap.String("clientID", client.clientID),
				zap.String("connectionID", client.id),
			)
			go func(c *Client) {
				h.drop(c)
				c.conn.Close()
			}(client)
		}
	}
}

func (h *Hub) pingAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ping := []byte(`{"type":"` + MessagePing + `"}`)
	for _, clients := range h.rooms {
		for client := range clients {
			select {
			case client.send <- ping:
			default:
			}
		}
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for mapID, clients := range h.rooms {
		for client := range clients {
			close(client.send)
			client.conn.Close()
		}
		delete(h.rooms, mapID)
	}
}

// Broadcaster adapts the hub to the ports.Broadcaster interface the
// application layer depends on.
type Broadcaster struct {
	hub    *Hub
	logger *zap.Logger
}

// NewBroadcaster wraps the hub.
func NewBroadcaster(hub *Hub, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{hub: hub, logger: logger}
}

var _ ports.Broadcaster = (*Broadcaster)(nil)

// BroadcastOperation fans an event out to the map's subscribers.
func (b *Broadcaster) BroadcastOperation(mapID, originClientID string, event ports.OutboundEvent) {
	if err := b.hub.SendToMap(mapID, originClientID, event); err != nil {
		b.logger.Error("broadcast failed",
			zap.Error(err),
			zap.String("mapID", mapID),
			zap.String("event", event.Type),
		)
	}
}
