package sync

import (
	"context"

	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/observability"
)

// RollbackEngine reverses a journaled operation from its recorded prior
// state: adds become soft deletes, updates and moves restore the
// snapshot, deletes are un-deleted with their state restored. A
// rollback is a new causal event (the map version moves forward and
// the authoritative clock is never rewound) and it does not cascade to
// operations that causally depend on the one being reversed.
type RollbackEngine struct {
	repo    ports.MapRepository
	log     ports.OperationLog
	locks   *LockRegistry
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewRollbackEngine creates a rollback engine sharing the merge
// engine's lock registry.
func NewRollbackEngine(
	repo ports.MapRepository,
	log ports.OperationLog,
	locks *LockRegistry,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *RollbackEngine {
	return &RollbackEngine{repo: repo, log: log, locks: locks, logger: logger, metrics: metrics}
}

// Rollback reverses the operation with the given ID. Failure to find
// the record or a double rollback are typed results; errors are storage
// faults.
func (e *RollbackEngine) Rollback(ctx context.Context, operationID string) (*mindmap.RollbackResult, error) {
	rec, err := e.log.GetByID(ctx, operationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load operation record")
	}
	if rec == nil {
		e.metrics.RecordRollback(false)
		return &mindmap.RollbackResult{Reason: mindmap.ReasonNotFound}, nil
	}

	unlock := e.locks.Lock(rec.MapID)
	defer unlock()

	// Re-read under the lock: a concurrent rollback may have already
	// transitioned the record.
	rec, err = e.log.GetByID(ctx, operationID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load operation record")
	}
	if rec == nil {
		e.metrics.RecordRollback(false)
		return &mindmap.RollbackResult{Reason: mindmap.ReasonNotFound}, nil
	}
	if rec.Status == mindmap.StatusRolledBack {
		e.metrics.RecordRollback(false)
		return &mindmap.RollbackResult{Reason: mindmap.ReasonAlreadyRolledBack, Record: rec}, nil
	}

	m, err := e.repo.GetMap(ctx, rec.MapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load map")
	}
	if m == nil {
		return nil, pkgerrors.NewInternal("journal references missing map "+rec.MapID, nil)
	}

	nodeDelta, edgeDelta, err := e.reverse(ctx, rec)
	if err != nil {
		e.metrics.RecordRollback(false)
		return nil, err
	}

	if err := e.log.UpdateStatus(ctx, rec.ID, mindmap.StatusRolledBack); err != nil {
		return nil, pkgerrors.Wrap(err, "mark record rolled back")
	}
	rec.Status = mindmap.StatusRolledBack

	m.Stats.ActiveNodes += nodeDelta
	m.Stats.ActiveEdges += edgeDelta
	m.Advance()
	if err := e.repo.SaveMap(ctx, m); err != nil {
		return nil, pkgerrors.Wrap(err, "save map")
	}

	e.logger.Info("operation rolled back",
		zap.String("mapID", rec.MapID),
		zap.String("operationID", rec.ID),
		zap.String("type", string(rec.Type)),
		zap.Int64("seq", rec.Seq),
	)
	e.metrics.RecordRollback(true)
	return &mindmap.RollbackResult{Success: true, Record: rec}, nil
}

// reverse undoes the record's effect and returns the stats delta.
func (e *RollbackEngine) reverse(ctx context.Context, rec *mindmap.Record) (nodeDelta, edgeDelta int, err error) {
	switch rec.Type {
	case mindmap.OpAddNode:
		return e.reverseAddNode(ctx, rec)
	case mindmap.OpUpdateNode, mindmap.OpMoveNode:
		return e.reverseNodeChange(ctx, rec)
	case mindmap.OpDeleteNode:
		return e.reverseDeleteNode(ctx, rec)
	case mindmap.OpAddEdge:
		return e.reverseAddEdge(ctx, rec)
	case mindmap.OpDeleteEdge:
		return e.reverseDeleteEdge(ctx, rec)
	default:
		return 0, 0, pkgerrors.NewInternal("journal record has unknown type "+string(rec.Type), nil)
	}
}

func (e *RollbackEngine) reverseAddNode(ctx context.Context, rec *mindmap.Record) (int, int, error) {
	n, err := e.repo.GetNode(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load node")
	}
	if n == nil {
		return 0, 0, pkgerrors.NewInternal("journal references missing node "+rec.EntityID, nil)
	}
	if n.Deleted {
		// Reversal target already inactive; nothing to adjust.
		return 0, 0, nil
	}

	// Soft-delete the created node; edges attached to it since the add
	// would dangle on an inactive endpoint, so they cascade exactly as
	// a DELETE_NODE would.
	incident, err := e.repo.IncidentActiveEdges(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load incident edges")
	}
	n.SoftDelete(rec.ClientID, rec.Clock)
	if err := e.repo.SaveNode(ctx, n); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "save node")
	}
	for _, ed := range incident {
		ed.SoftDelete(rec.ClientID, rec.Clock)
		if err := e.repo.SaveEdge(ctx, ed); err != nil {
			return 0, 0, pkgerrors.Wrap(err, "save edge")
		}
	}
	return -1, -len(incident), nil
}

func (e *RollbackEngine) reverseNodeChange(ctx context.Context, rec *mindmap.Record) (int, int, error) {
	if rec.Previous == nil || rec.Previous.Node == nil {
		return 0, 0, pkgerrors.NewInternal("record "+rec.ID+" missing node snapshot", nil)
	}
	n, err := e.repo.GetNode(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load node")
	}
	if n == nil {
		return 0, 0, pkgerrors.NewInternal("journal references missing node "+rec.EntityID, nil)
	}
	wasActive := !n.Deleted
	n.Restore(rec.Previous.Node)
	if err := e.repo.SaveNode(ctx, n); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "save node")
	}
	// UPDATE/MOVE snapshots were taken on an active node; restoring one
	// over a node deleted in the meantime reactivates it.
	if !wasActive && !n.Deleted {
		return 1, 0, nil
	}
	return 0, 0, nil
}

func (e *RollbackEngine) reverseDeleteNode(ctx context.Context, rec *mindmap.Record) (int, int, error) {
	if rec.Previous == nil || rec.Previous.Node == nil {
		return 0, 0, pkgerrors.NewInternal("record "+rec.ID+" missing node snapshot", nil)
	}
	n, err := e.repo.GetNode(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load node")
	}
	if n == nil {
		return 0, 0, pkgerrors.NewInternal("journal references missing node "+rec.EntityID, nil)
	}

	n.Restore(rec.Previous.Node)
	if err := e.repo.SaveNode(ctx, n); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "save node")
	}

	// Restore the edges the delete cascaded, where they are still the
	// way the cascade left them.
	restored := 0
	for _, edgeID := range rec.Previous.CascadedEdgeIDs {
		ed, err := e.repo.GetEdge(ctx, rec.MapID, edgeID)
		if err != nil {
			return 0, 0, pkgerrors.Wrap(err, "load cascaded edge")
		}
		if ed == nil || !ed.Deleted {
			continue
		}
		ed.Deleted = false
		ed.Version++
		ed.UpdatedBy = rec.ClientID
		if err := e.repo.SaveEdge(ctx, ed); err != nil {
			return 0, 0, pkgerrors.Wrap(err, "save cascaded edge")
		}
		restored++
	}
	return 1, restored, nil
}

func (e *RollbackEngine) reverseAddEdge(ctx context.Context, rec *mindmap.Record) (int, int, error) {
	ed, err := e.repo.GetEdge(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load edge")
	}
	if ed == nil {
		return 0, 0, pkgerrors.NewInternal("journal references missing edge "+rec.EntityID, nil)
	}
	if ed.Deleted {
		return 0, 0, nil
	}
	ed.SoftDelete(rec.ClientID, rec.Clock)
	if err := e.repo.SaveEdge(ctx, ed); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "save edge")
	}
	return 0, -1, nil
}

func (e *RollbackEngine) reverseDeleteEdge(ctx context.Context, rec *mindmap.Record) (int, int, error) {
	if rec.Previous == nil || rec.Previous.Edge == nil {
		return 0, 0, pkgerrors.NewInternal("record "+rec.ID+" missing edge snapshot", nil)
	}
	ed, err := e.repo.GetEdge(ctx, rec.MapID, rec.EntityID)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(err, "load edge")
	}
	if ed == nil {
		return 0, 0, pkgerrors.NewInternal("journal references missing edge "+rec.EntityID, nil)
	}
	wasDeleted := ed.Deleted
	ed.Restore(rec.Previous.Edge)
	if err := e.repo.SaveEdge(ctx, ed); err != nil {
		return 0, 0, pkgerrors.Wrap(err, "save edge")
	}
	if wasDeleted && !ed.Deleted {
		return 0, 1, nil
	}
	return 0, 0, nil
}
