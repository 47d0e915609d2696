package mindmap

import (
	"time"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
)

// Stats are the map's aggregate counters, maintained incrementally by
// the merge and rollback engines rather than recomputed per operation.
type Stats struct {
	ActiveNodes int `json:"activeNodes"`
	ActiveEdges int `json:"activeEdges"`
}

// MindMap is the per-map authority record: the authoritative vector
// clock every incoming operation is admitted against, a monotonic
// version counter, and the aggregate stats.
type MindMap struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Clock     clock.Clock `json:"clock"`
	Version   int64       `json:"version"`
	Stats     Stats       `json:"stats"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewMindMap constructs an empty map with a fresh clock.
func NewMindMap(id, name string) *MindMap {
	now := time.Now().UTC()
	return &MindMap{
		ID:        id,
		Name:      name,
		Clock:     clock.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns an independent copy of the map record.
func (m *MindMap) Clone() *MindMap {
	out := *m
	out.Clock = m.Clock.Copy()
	return &out
}

// Absorb merges an accepted operation's clock into the authoritative
// clock and advances the map version. A client's own counter in the
// authoritative clock never decreases because Merge takes per-key maxima.
func (m *MindMap) Absorb(c clock.Clock) {
	m.Clock = m.Clock.Merge(c)
	m.Version++
	m.UpdatedAt = time.Now().UTC()
}

// Advance bumps the map version without touching the clock. Rollback is
// a new causal event, not time travel: it moves the version forward and
// never rewinds the clock.
func (m *MindMap) Advance() {
	m.Version++
	m.UpdatedAt = time.Now().UTC()
}
