package sync

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

// MapSnapshot is the full authoritative state handed to a session on
// connect or reconnect: every active node and edge, the map clock, and
// the latest journal sequence so the client can ask for incremental
// catch-up afterwards.
type MapSnapshot struct {
	MapID   string          `json:"mapId"`
	Name    string          `json:"name"`
	Clock   clock.Clock     `json:"clock"`
	Version int64           `json:"version"`
	Seq     int64           `json:"seq"`
	Stats   mindmap.Stats   `json:"stats"`
	Nodes   []*mindmap.Node `json:"nodes"`
	Edges   []*mindmap.Edge `json:"edges"`
}

// SyncService serves the read side of the core: snapshots for joining
// sessions, incremental catch-up from the journal, and the audit views
// over history and conflicts.
type SyncService struct {
	repo   ports.MapRepository
	log    ports.OperationLog
	locks  *LockRegistry
	logger *zap.Logger
}

// NewSyncService creates a sync service sharing the engines' lock
// registry so snapshots are taken inside the map's critical section.
func NewSyncService(repo ports.MapRepository, log ports.OperationLog, locks *LockRegistry, logger *zap.Logger) *SyncService {
	return &SyncService{repo: repo, log: log, locks: locks, logger: logger}
}

// CreateMap registers a new empty map. A blank id gets a generated one.
func (s *SyncService) CreateMap(ctx context.Context, id, name string) (*mindmap.MindMap, error) {
	if id == "" {
		id = uuid.NewString()
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	existing, err := s.repo.GetMap(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load map")
	}
	if existing != nil {
		return nil, pkgerrors.NewConflict("map " + id + " already exists")
	}

	m := mindmap.NewMindMap(id, name)
	if err := s.repo.CreateMap(ctx, m); err != nil {
		return nil, pkgerrors.Wrap(err, "create map")
	}
	s.logger.Info("map created", zap.String("mapID", id), zap.String("name", name))
	return m, nil
}

// GetMap returns the map authority record, or a not-found error.
func (s *SyncService) GetMap(ctx context.Context, mapID string) (*mindmap.MindMap, error) {
	m, err := s.repo.GetMap(ctx, mapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load map")
	}
	if m == nil {
		return nil, pkgerrors.NewNotFound("map " + mapID + " not found")
	}
	return m, nil
}

// Snapshot captures the map's full active state. It runs inside the
// map's critical section so the nodes, edges, clock and sequence are
// mutually consistent; soft-deleted entities are not included.
func (s *SyncService) Snapshot(ctx context.Context, mapID string) (*MapSnapshot, error) {
	unlock := s.locks.Lock(mapID)
	defer unlock()

	m, err := s.repo.GetMap(ctx, mapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load map")
	}
	if m == nil {
		return nil, pkgerrors.NewNotFound("map " + mapID + " not found")
	}

	nodes, err := s.repo.ActiveNodes(ctx, mapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load nodes")
	}
	edges, err := s.repo.ActiveEdges(ctx, mapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load edges")
	}
	seq, err := s.latestSeq(ctx, mapID)
	if err != nil {
		return nil, err
	}

	if nodes == nil {
		nodes = []*mindmap.Node{}
	}
	if edges == nil {
		edges = []*mindmap.Edge{}
	}
	return &MapSnapshot{
		MapID:   m.ID,
		Name:    m.Name,
		Clock:   m.Clock.Copy(),
		Version: m.Version,
		Seq:     seq,
		Stats:   m.Stats,
		Nodes:   nodes,
		Edges:   edges,
	}, nil
}

// OperationsSince returns the applied records after sinceSeq in
// ascending sequence order, for incremental catch-up after a
// disconnect. Rolled-back records are excluded; the reversal itself was
// broadcast as its own event.
func (s *SyncService) OperationsSince(ctx context.Context, mapID string, sinceSeq int64) ([]*mindmap.Record, error) {
	if _, err := s.GetMap(ctx, mapID); err != nil {
		return nil, err
	}
	recs, err := s.log.ListSince(ctx, mapID, sinceSeq)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list operations")
	}
	if recs == nil {
		recs = []*mindmap.Record{}
	}
	return recs, nil
}

// History returns up to limit journal records newest-first, including
// rolled-back ones, for the audit view. beforeSeq of zero starts at the
// newest record.
func (s *SyncService) History(ctx context.Context, mapID string, limit int, beforeSeq int64) ([]*mindmap.Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if _, err := s.GetMap(ctx, mapID); err != nil {
		return nil, err
	}
	recs, err := s.log.ListByMap(ctx, mapID, limit, beforeSeq)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list history")
	}
	if recs == nil {
		recs = []*mindmap.Record{}
	}
	return recs, nil
}

// Conflicts returns the records that were admitted while concurrent
// with the authoritative clock, ascending by seq.
func (s *SyncService) Conflicts(ctx context.Context, mapID string) ([]*mindmap.Record, error) {
	if _, err := s.GetMap(ctx, mapID); err != nil {
		return nil, err
	}
	recs, err := s.log.ListConflicts(ctx, mapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list conflicts")
	}
	if recs == nil {
		recs = []*mindmap.Record{}
	}
	return recs, nil
}

// Operation returns one journal record by its operation ID.
func (s *SyncService) Operation(ctx context.Context, operationID string) (*mindmap.Record, error) {
	rec, err := s.log.GetByID(ctx, operationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load operation")
	}
	if rec == nil {
		return nil, pkgerrors.NewNotFound("operation " + operationID + " not found")
	}
	return rec, nil
}

func (s *SyncService) latestSeq(ctx context.Context, mapID string) (int64, error) {
	recs, err := s.log.ListByMap(ctx, mapID, 1, 0)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "read latest seq")
	}
	if len(recs) == 0 {
		return 0, nil
	}
	return recs[0].Seq, nil
}
