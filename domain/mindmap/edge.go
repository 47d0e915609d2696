package mindmap

import (
	"time"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
)

// Edge is a directed connection between two nodes of the same map.
// Structural invariants (no self-loop, no duplicate active edge between
// the same unordered pair, no directed cycle over active edges) are
// enforced by the merge engine before an edge is ever persisted; the
// entity itself only carries state.
type Edge struct {
	ID        string      `json:"id"`
	MapID     string      `json:"mapId"`
	SourceID  string      `json:"sourceId"`
	TargetID  string      `json:"targetId"`
	Deleted   bool        `json:"deleted"`
	Version   int64       `json:"version"`
	UpdatedBy string      `json:"updatedBy"`
	Clock     clock.Clock `json:"clock"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewEdge constructs an active edge from source to target.
func NewEdge(id, mapID, sourceID, targetID, clientID string, c clock.Clock) *Edge {
	now := time.Now().UTC()
	return &Edge{
		ID:        id,
		MapID:     mapID,
		SourceID:  sourceID,
		TargetID:  targetID,
		Version:   1,
		UpdatedBy: clientID,
		Clock:     c.Copy(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent copy of the edge.
func (e *Edge) Clone() *Edge {
	out := *e
	out.Clock = e.Clock.Copy()
	return &out
}

// Snapshot captures the edge's mutable state before a write, for reversal.
func (e *Edge) Snapshot() *EdgeState {
	return &EdgeState{
		SourceID:  e.SourceID,
		TargetID:  e.TargetID,
		Deleted:   e.Deleted,
		Version:   e.Version,
		UpdatedBy: e.UpdatedBy,
		Clock:     e.Clock.Copy(),
	}
}

// Restore overwrites the edge's mutable state with a prior snapshot.
func (e *Edge) Restore(s *EdgeState) {
	e.SourceID = s.SourceID
	e.TargetID = s.TargetID
	e.Deleted = s.Deleted
	e.Version = s.Version
	e.UpdatedBy = s.UpdatedBy
	e.Clock = s.Clock.Copy()
	e.UpdatedAt = time.Now().UTC()
}

// SoftDelete marks the edge inactive.
func (e *Edge) SoftDelete(clientID string, c clock.Clock) {
	e.Deleted = true
	e.Version++
	e.UpdatedBy = clientID
	e.Clock = e.Clock.Merge(c)
	e.UpdatedAt = time.Now().UTC()
}

// Connects reports whether the edge joins a and b in either direction.
func (e *Edge) Connects(a, b string) bool {
	return (e.SourceID == a && e.TargetID == b) || (e.SourceID == b && e.TargetID == a)
}

// Touches reports whether the edge is incident to the given node.
func (e *Edge) Touches(nodeID string) bool {
	return e.SourceID == nodeID || e.TargetID == nodeID
}
