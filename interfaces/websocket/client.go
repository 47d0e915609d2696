package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Send buffer size
	sendBufferSize = 256

	mergeTimeout = 10 * time.Second
)

// Client is one WebSocket connection subscribed to one map.
type Client struct {
	id       string
	clientID string
	mapID    string
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	engine   *appsync.MergeEngine
	logger   *zap.Logger
}

// NewClient creates a client for an upgraded connection.
func NewClient(clientID, mapID string, hub *Hub, conn *websocket.Conn, engine *appsync.MergeEngine, logger *zap.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		id:       id,
		clientID: clientID,
		mapID:    mapID,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		engine:   engine,
		logger: logger.With(
			zap.String("mapID", mapID),
			zap.String("clientID", clientID),
			zap.String("connectionID", id),
		),
	}
}

// Start registers with the hub and begins the read and write pumps.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	go c.readPump()
	c.sendConnectionEstablished()
}

// ID returns the connection ID.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error", zap.Error(err))
			}
			break
		}
		if messageType != websocket.TextMessage {
			c.logger.Warn("binary messages not supported")
			continue
		}
		c.handleMessage(bytes.TrimSpace(message))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("failed to write message", zap.Error(err))
				return
			}
			// Drain whatever else is queued into the same write window.
			n := len(c.send)
			for i := 0; i < n; i++ {
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					c.logger.Error("failed to write queued message", zap.Error(err))
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		c.sendError("", "malformed message: "+err.Error())
		return
	}

	switch env.Type {
	case MessageOperation:
		c.handleOperation(env)
	case MessagePong:
	default:
		c.sendError(env.RequestID, "unknown message type "+env.Type)
	}
}

// handleOperation submits the session's operation to the merge engine
// and answers with an ack or a typed rejection. Accepted operations are
// fanned out to the map's other subscribers.
func (c *Client) handleOperation(env *Envelope) {
	payload, err := ParseOperation(env.Payload)
	if err != nil {
		c.sendError(env.RequestID, "malformed operation: "+err.Error())
		return
	}

	op := &mindmap.Operation{
		ID:       payload.OperationID,
		Type:     mindmap.OperationType(payload.Type),
		MapID:    c.mapID,
		ClientID: c.clientID,
		Clock:    payload.Clock,
		Node:     payload.Node,
		Edge:     payload.Edge,
	}

	ctx, cancel := context.WithTimeout(context.Background(), mergeTimeout)
	defer cancel()
	res, err := c.engine.Merge(ctx, op)
	if err != nil {
		c.logger.Error("merge failed", zap.Error(err), zap.String("operationID", op.ID))
		c.sendError(env.RequestID, "operation could not be processed")
		return
	}

	ack := &AckPayload{
		OperationID: op.ID,
		Accepted:    res.Accepted,
		Reason:      res.Reason,
		CyclePath:   res.CyclePath,
		MergedClock: res.MergedClock,
		Seq:         res.Seq,
		Conflict:    res.Conflict,
		Node:        res.Node,
		Edge:        res.Edge,
	}
	msgType := MessageAck
	if !res.Accepted {
		msgType = MessageRejected
	}
	c.sendJSON(msgType, env.RequestID, ack)

	if !res.Accepted {
		return
	}
	event := ports.OutboundEvent{
		Type:        ports.EventOperationApplied,
		MapID:       c.mapID,
		Seq:         res.Seq,
		OperationID: op.ID,
		OpType:      op.Type,
		ClientID:    c.clientID,
		MergedClock: res.MergedClock,
		Node:        res.Node,
		Edge:        res.Edge,
	}
	if err := c.hub.SendToMap(c.mapID, c.clientID, event); err != nil {
		c.logger.Error("failed to broadcast accepted operation", zap.Error(err))
	}
}

func (c *Client) sendJSON(msgType, requestID string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to marshal outbound message", zap.Error(err))
		return
	}
	frame, err := json.Marshal(&Envelope{Type: msgType, RequestID: requestID, Payload: body})
	if err != nil {
		c.logger.Error("failed to marshal outbound frame", zap.Error(err))
		return
	}
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msgType))
	}
}

func (c *Client) sendError(requestID, message string) {
	c.sendJSON(MessageError, requestID, map[string]string{"message": message})
}

func (c *Client) sendConnectionEstablished() {
	c.sendJSON(MessageConnected, "", map[string]string{
		"connectionId": c.id,
		"clientId":     c.clientID,
		"mapId":        c.mapID,
	})
}
