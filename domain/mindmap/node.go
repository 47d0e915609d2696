// Package mindmap holds the authoritative entities of a shared mind map
// and the operation vocabulary the merge engine speaks: nodes, edges,
// the map aggregate, inbound operations, journal records and typed
// rejection results.
package mindmap

import (
	"time"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
)

// Shape is the visual shape of a node on the canvas.
type Shape string

const (
	ShapeCircle    Shape = "circle"
	ShapeRectangle Shape = "rectangle"
	ShapeDiamond   Shape = "diamond"
	ShapeRounded   Shape = "rounded"
)

// Valid reports whether the shape is one of the supported values.
func (s Shape) Valid() bool {
	switch s {
	case ShapeCircle, ShapeRectangle, ShapeDiamond, ShapeRounded:
		return true
	}
	return false
}

// Node is a single idea on the map. Nodes are never physically removed:
// deletion sets the soft-delete flag so that concurrent in-flight
// operations and the journal keep valid references.
type Node struct {
	ID        string      `json:"id"`
	MapID     string      `json:"mapId"`
	Label     string      `json:"label"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Color     string      `json:"color,omitempty"`
	Shape     Shape       `json:"shape"`
	Deleted   bool        `json:"deleted"`
	Version   int64       `json:"version"`
	UpdatedBy string      `json:"updatedBy"`
	Clock     clock.Clock `json:"clock"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewNode constructs an active node owned by mapID, created by clientID
// at the given clock.
func NewNode(id, mapID, label string, x, y float64, color string, shape Shape, clientID string, c clock.Clock) *Node {
	if shape == "" {
		shape = ShapeCircle
	}
	now := time.Now().UTC()
	return &Node{
		ID:        id,
		MapID:     mapID,
		Label:     label,
		X:         x,
		Y:         y,
		Color:     color,
		Shape:     shape,
		Version:   1,
		UpdatedBy: clientID,
		Clock:     c.Copy(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent copy of the node.
func (n *Node) Clone() *Node {
	out := *n
	out.Clock = n.Clock.Copy()
	return &out
}

// Snapshot captures the node's mutable state before a write, for reversal.
func (n *Node) Snapshot() *NodeState {
	return &NodeState{
		Label:     n.Label,
		X:         n.X,
		Y:         n.Y,
		Color:     n.Color,
		Shape:     n.Shape,
		Deleted:   n.Deleted,
		Version:   n.Version,
		UpdatedBy: n.UpdatedBy,
		Clock:     n.Clock.Copy(),
	}
}

// Restore overwrites the node's mutable state with a prior snapshot.
func (n *Node) Restore(s *NodeState) {
	n.Label = s.Label
	n.X = s.X
	n.Y = s.Y
	n.Color = s.Color
	n.Shape = s.Shape
	n.Deleted = s.Deleted
	n.Version = s.Version
	n.UpdatedBy = s.UpdatedBy
	n.Clock = s.Clock.Copy()
	n.UpdatedAt = time.Now().UTC()
}

// touch records a new accepted write from clientID at clock c. The
// entity clock absorbs the operation clock so later writes are compared
// against everything this node has seen.
func (n *Node) touch(clientID string, c clock.Clock) {
	n.Version++
	n.UpdatedBy = clientID
	n.Clock = n.Clock.Merge(c)
	n.UpdatedAt = time.Now().UTC()
}

// ApplyUpdate overwrites label and style. Whole-record last-writer-wins:
// the caller has already decided this write is admissible.
func (n *Node) ApplyUpdate(label, color string, shape Shape, clientID string, c clock.Clock) {
	n.Label = label
	n.Color = color
	if shape != "" {
		n.Shape = shape
	}
	n.touch(clientID, c)
}

// MoveTo changes the node's position.
func (n *Node) MoveTo(x, y float64, clientID string, c clock.Clock) {
	n.X = x
	n.Y = y
	n.touch(clientID, c)
}

// SoftDelete marks the node inactive.
func (n *Node) SoftDelete(clientID string, c clock.Clock) {
	n.Deleted = true
	n.touch(clientID, c)
}
