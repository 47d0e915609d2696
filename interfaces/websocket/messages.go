// Package websocket carries the realtime editing protocol: sessions
// subscribe to one map per connection, submit operations, and receive
// every accepted operation of other sessions plus typed acks for their
// own.
package websocket

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

// Inbound message types.
const (
	MessageOperation = "OPERATION"
	MessagePong      = "pong"
)

// Outbound message types.
const (
	MessageConnected = "CONNECTION_ESTABLISHED"
	MessageAck       = "OPERATION_ACK"
	MessageRejected  = "OPERATION_REJECTED"
	MessageError     = "ERROR"
	MessagePing      = "ping"
)

// Envelope is the framing of every inbound message.
type Envelope struct {
	Type      string          `json:"type" validate:"required"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// OperationPayload is the body of an OPERATION message. The clientId is
// taken from the session, never from the payload.
type OperationPayload struct {
	OperationID string               `json:"operationId,omitempty"`
	Type        string               `json:"opType" validate:"required"`
	Clock       clock.Clock          `json:"clock" validate:"required"`
	Node        *mindmap.NodePayload `json:"node,omitempty"`
	Edge        *mindmap.EdgePayload `json:"edge,omitempty"`
}

// AckPayload is the body of an OPERATION_ACK or OPERATION_REJECTED
// message sent back to the originating session.
type AckPayload struct {
	OperationID string               `json:"operationId"`
	Accepted    bool                 `json:"accepted"`
	Reason      mindmap.RejectReason `json:"reason,omitempty"`
	CyclePath   []string             `json:"cyclePath,omitempty"`
	MergedClock clock.Clock          `json:"mergedClock,omitempty"`
	Seq         int64                `json:"seq,omitempty"`
	Conflict    bool                 `json:"conflict,omitempty"`
	Node        *mindmap.Node        `json:"node,omitempty"`
	Edge        *mindmap.Edge        `json:"edge,omitempty"`
}

var validate = validator.New()

// ParseEnvelope decodes and validates an inbound frame.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if err := validate.Struct(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// ParseOperation decodes and validates an OPERATION payload.
func ParseOperation(raw json.RawMessage) (*OperationPayload, error) {
	var p OperationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	if err := validate.Struct(&p); err != nil {
		return nil, err
	}
	return &p, nil
}
