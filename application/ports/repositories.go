// Package ports declares the interfaces the synchronization core needs
// from the outside world: persistence for maps and the operation
// journal, and a broadcast capability for fanning accepted operations
// out to subscribed sessions. The core depends only on these
// interfaces; infrastructure supplies the implementations.
package ports

import (
	"context"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

// MapRepository stores the authoritative map, node and edge records.
//
// Lookup methods return (nil, nil) when the entity does not exist; an
// error always means a storage fault, never a domain condition. Save
// methods replace the stored record with the given value.
type MapRepository interface {
	CreateMap(ctx context.Context, m *mindmap.MindMap) error
	GetMap(ctx context.Context, mapID string) (*mindmap.MindMap, error)
	SaveMap(ctx context.Context, m *mindmap.MindMap) error

	GetNode(ctx context.Context, mapID, nodeID string) (*mindmap.Node, error)
	SaveNode(ctx context.Context, n *mindmap.Node) error
	ActiveNodes(ctx context.Context, mapID string) ([]*mindmap.Node, error)

	GetEdge(ctx context.Context, mapID, edgeID string) (*mindmap.Edge, error)
	SaveEdge(ctx context.Context, e *mindmap.Edge) error
	ActiveEdges(ctx context.Context, mapID string) ([]*mindmap.Edge, error)

	// ActiveEdgeBetween returns the active edge joining a and b in either
	// direction, or nil if the pair is unconnected.
	ActiveEdgeBetween(ctx context.Context, mapID, a, b string) (*mindmap.Edge, error)

	// IncidentActiveEdges returns the active edges touching the node.
	IncidentActiveEdges(ctx context.Context, mapID, nodeID string) ([]*mindmap.Edge, error)
}

// OperationLog is the append-only per-map journal of accepted mutations.
type OperationLog interface {
	// Append assigns the record the next server sequence number for its
	// map, strictly greater than every sequence previously issued for
	// that map even under concurrent appenders, and persists it. The
	// merge engine must not commit authoritative state unless Append
	// returned nil.
	Append(ctx context.Context, rec *mindmap.Record) error

	// GetByID returns a record by its operation ID, or nil if unknown.
	GetByID(ctx context.Context, operationID string) (*mindmap.Record, error)

	// ListSince returns records with status applied and seq > sinceSeq,
	// ascending by seq, for catch-up replay.
	ListSince(ctx context.Context, mapID string, sinceSeq int64) ([]*mindmap.Record, error)

	// ListByMap returns up to limit records newest-first. A beforeSeq of
	// zero starts from the newest record.
	ListByMap(ctx context.Context, mapID string, limit int, beforeSeq int64) ([]*mindmap.Record, error)

	// ListConflicts returns records accepted while concurrent with the
	// map clock, ascending by seq.
	ListConflicts(ctx context.Context, mapID string) ([]*mindmap.Record, error)

	// UpdateStatus transitions a record's status.
	UpdateStatus(ctx context.Context, operationID string, status mindmap.RecordStatus) error
}

// OutboundEvent is the result value handed to the broadcast collaborator
// after the per-map critical section has released.
type OutboundEvent struct {
	Type        string                `json:"type"`
	MapID       string                `json:"mapId"`
	Seq         int64                 `json:"seq,omitempty"`
	OperationID string                `json:"operationId,omitempty"`
	OpType      mindmap.OperationType `json:"opType,omitempty"`
	ClientID    string                `json:"clientId,omitempty"`
	MergedClock clock.Clock           `json:"mergedClock,omitempty"`
	Node        *mindmap.Node         `json:"node,omitempty"`
	Edge        *mindmap.Edge         `json:"edge,omitempty"`
}

// Event types fanned out to map subscribers.
const (
	EventOperationApplied    = "OPERATION_APPLIED"
	EventOperationRolledBack = "OPERATION_ROLLED_BACK"
)

// Broadcaster fans an event out to every session subscribed to the map,
// excluding the originator. The core holds no connection handles; this
// capability is injected from the interfaces layer.
type Broadcaster interface {
	BroadcastOperation(mapID, originClientID string, event OutboundEvent)
}
