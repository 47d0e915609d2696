// Package memory provides in-memory implementations of the persistence
// ports, used by the tests and by single-process deployments where
// durability is not required.
package memory

import (
	"context"
	"sync"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

type mapEntry struct {
	meta  *mindmap.MindMap
	nodes map[string]*mindmap.Node
	edges map[string]*mindmap.Edge
}

// MapStore is an in-memory MapRepository. All values crossing the
// boundary are cloned so callers never share mutable state with the
// store.
type MapStore struct {
	mu   sync.RWMutex
	maps map[string]*mapEntry
}

// NewMapStore creates an empty in-memory map store.
func NewMapStore() *MapStore {
	return &MapStore{maps: make(map[string]*mapEntry)}
}

// CreateMap registers a new map record.
func (s *MapStore) CreateMap(ctx context.Context, m *mindmap.MindMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.maps[m.ID]; ok {
		return pkgerrors.NewConflict("map " + m.ID + " already exists")
	}
	s.maps[m.ID] = &mapEntry{
		meta:  m.Clone(),
		nodes: make(map[string]*mindmap.Node),
		edges: make(map[string]*mindmap.Edge),
	}
	return nil
}

// GetMap returns the map record, or nil if unknown.
func (s *MapStore) GetMap(ctx context.Context, mapID string) (*mindmap.MindMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	return entry.meta.Clone(), nil
}

// SaveMap replaces the stored map record.
func (s *MapStore) SaveMap(ctx context.Context, m *mindmap.MindMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.maps[m.ID]
	if !ok {
		return pkgerrors.NewNotFound("map " + m.ID + " not found")
	}
	entry.meta = m.Clone()
	return nil
}

// GetNode returns the node, deleted or not, or nil if unknown.
func (s *MapStore) GetNode(ctx context.Context, mapID, nodeID string) (*mindmap.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	n, ok := entry.nodes[nodeID]
	if !ok {
		return nil, nil
	}
	return n.Clone(), nil
}

// SaveNode replaces the stored node record.
func (s *MapStore) SaveNode(ctx context.Context, n *mindmap.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.maps[n.MapID]
	if !ok {
		return pkgerrors.NewNotFound("map " + n.MapID + " not found")
	}
	entry.nodes[n.ID] = n.Clone()
	return nil
}

// ActiveNodes returns all non-deleted nodes of the map.
func (s *MapStore) ActiveNodes(ctx context.Context, mapID string) ([]*mindmap.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	out := make([]*mindmap.Node, 0, len(entry.nodes))
	for _, n := range entry.nodes {
		if !n.Deleted {
			out = append(out, n.Clone())
		}
	}
	return out, nil
}

// GetEdge returns the edge, deleted or not, or nil if unknown.
func (s *MapStore) GetEdge(ctx context.Context, mapID, edgeID string) (*mindmap.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	e, ok := entry.edges[edgeID]
	if !ok {
		return nil, nil
	}
	return e.Clone(), nil
}

// SaveEdge replaces the stored edge record.
func (s *MapStore) SaveEdge(ctx context.Context, e *mindmap.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.maps[e.MapID]
	if !ok {
		return pkgerrors.NewNotFound("map " + e.MapID + " not found")
	}
	entry.edges[e.ID] = e.Clone()
	return nil
}

// ActiveEdges returns all non-deleted edges of the map.
func (s *MapStore) ActiveEdges(ctx context.Context, mapID string) ([]*mindmap.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	out := make([]*mindmap.Edge, 0, len(entry.edges))
	for _, e := range entry.edges {
		if !e.Deleted {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

// ActiveEdgeBetween returns the active edge joining a and b in either
// direction, or nil if the pair is unconnected.
func (s *MapStore) ActiveEdgeBetween(ctx context.Context, mapID, a, b string) (*mindmap.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	for _, e := range entry.edges {
		if e.Deleted {
			continue
		}
		if (e.SourceID == a && e.TargetID == b) || (e.SourceID == b && e.TargetID == a) {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

// IncidentActiveEdges returns the active edges touching the node.
func (s *MapStore) IncidentActiveEdges(ctx context.Context, mapID, nodeID string) ([]*mindmap.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.maps[mapID]
	if !ok {
		return nil, nil
	}
	var out []*mindmap.Edge
	for _, e := range entry.edges {
		if e.Deleted {
			continue
		}
		if e.SourceID == nodeID || e.TargetID == nodeID {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}
