package mindmap

import (
	"time"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
)

// OperationType is the closed set of mutations the merge engine accepts.
// Every switch over it handles all members plus an explicit default, so
// an unrecognized type is a typed rejection rather than a silent no-op.
type OperationType string

const (
	OpAddNode    OperationType = "ADD_NODE"
	OpUpdateNode OperationType = "UPDATE_NODE"
	OpMoveNode   OperationType = "MOVE_NODE"
	OpDeleteNode OperationType = "DELETE_NODE"
	OpAddEdge    OperationType = "ADD_EDGE"
	OpDeleteEdge OperationType = "DELETE_EDGE"
)

// Valid reports whether the type is a member of the closed set.
func (t OperationType) Valid() bool {
	switch t {
	case OpAddNode, OpUpdateNode, OpMoveNode, OpDeleteNode, OpAddEdge, OpDeleteEdge:
		return true
	}
	return false
}

// IsNodeOp reports whether the operation targets a node.
func (t OperationType) IsNodeOp() bool {
	switch t {
	case OpAddNode, OpUpdateNode, OpMoveNode, OpDeleteNode:
		return true
	}
	return false
}

// IsAdd reports whether the operation creates its target entity.
func (t OperationType) IsAdd() bool {
	return t == OpAddNode || t == OpAddEdge
}

// NodePayload carries the node fields of a node operation.
type NodePayload struct {
	NodeID string  `json:"nodeId"`
	Label  string  `json:"label"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Color  string  `json:"color,omitempty"`
	Shape  Shape   `json:"shape,omitempty"`
}

// EdgePayload carries the edge fields of an edge operation.
type EdgePayload struct {
	EdgeID   string `json:"edgeId"`
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
}

// Operation is one client edit as it arrives at the merge engine:
// the intent, the map it targets, the client that issued it, and the
// vector clock that client believed was current when it issued it.
type Operation struct {
	ID       string        `json:"id"`
	Type     OperationType `json:"type"`
	MapID    string        `json:"mapId"`
	ClientID string        `json:"clientId"`
	Clock    clock.Clock   `json:"clock"`
	Node     *NodePayload  `json:"node,omitempty"`
	Edge     *EdgePayload  `json:"edge,omitempty"`
}

// EntityID returns the ID of the entity the operation targets.
func (o *Operation) EntityID() string {
	if o.Type.IsNodeOp() {
		if o.Node == nil {
			return ""
		}
		return o.Node.NodeID
	}
	if o.Edge == nil {
		return ""
	}
	return o.Edge.EdgeID
}

// RecordStatus is the lifecycle state of a journal record.
type RecordStatus string

const (
	StatusApplied    RecordStatus = "applied"
	StatusRolledBack RecordStatus = "rolled_back"
)

// NodeState is a value snapshot of a node's mutable fields.
type NodeState struct {
	Label     string      `json:"label"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Color     string      `json:"color,omitempty"`
	Shape     Shape       `json:"shape"`
	Deleted   bool        `json:"deleted"`
	Version   int64       `json:"version"`
	UpdatedBy string      `json:"updatedBy"`
	Clock     clock.Clock `json:"clock"`
}

// EdgeState is a value snapshot of an edge's mutable fields.
type EdgeState struct {
	SourceID  string      `json:"sourceId"`
	TargetID  string      `json:"targetId"`
	Deleted   bool        `json:"deleted"`
	Version   int64       `json:"version"`
	UpdatedBy string      `json:"updatedBy"`
	Clock     clock.Clock `json:"clock"`
}

// Snapshot is the prior-state record stored on a journal entry so the
// rollback engine can reverse the operation without consulting any
// external state. ADD_* records carry no snapshot: reversal of an add
// is a soft delete. CascadedEdgeIDs lists the active edges a
// DELETE_NODE soft-deleted in the same atomic step.
type Snapshot struct {
	Node            *NodeState `json:"node,omitempty"`
	Edge            *EdgeState `json:"edge,omitempty"`
	CascadedEdgeIDs []string   `json:"cascadedEdgeIds,omitempty"`
}

// Record is one accepted mutation in the per-map append-only journal.
// Records are created at acceptance time and mutated only by the
// rollback engine (status transition); they are never deleted.
type Record struct {
	ID        string        `json:"id"`
	MapID     string        `json:"mapId"`
	Seq       int64         `json:"seq"`
	Type      OperationType `json:"type"`
	EntityID  string        `json:"entityId"`
	ClientID  string        `json:"clientId"`
	Clock     clock.Clock   `json:"clock"`
	Previous  *Snapshot     `json:"previous,omitempty"`
	Status    RecordStatus  `json:"status"`
	Conflict  bool          `json:"conflict"`
	AppliedAt time.Time     `json:"appliedAt"`
}
