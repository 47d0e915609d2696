// Package sync implements the causal synchronization core: the merge
// engine that admits concurrent client operations against a map's
// vector clock, the rollback engine that reverses journaled operations,
// and the catch-up service clients replay state from.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/services"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/observability"
)

// MergeEngine is the single write path for a map. For each operation it
// decides accept/reject against the authoritative vector clock, applies
// the mutation, has the graph checker veto structurally unsafe results,
// journals the accepted record, and folds the operation's clock into
// the map clock. Everything up to and including the journal append and
// state commit runs inside the map's critical section; broadcasting is
// the caller's business and happens after Merge returns.
type MergeEngine struct {
	repo    ports.MapRepository
	log     ports.OperationLog
	checker *services.GraphChecker
	locks   *LockRegistry
	logger  *zap.Logger
	metrics *observability.Metrics

	limitsMu stdsync.RWMutex
	limits   mindmap.Limits
}

// NewMergeEngine creates a merge engine.
func NewMergeEngine(
	repo ports.MapRepository,
	log ports.OperationLog,
	checker *services.GraphChecker,
	locks *LockRegistry,
	limits mindmap.Limits,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *MergeEngine {
	return &MergeEngine{
		repo:    repo,
		log:     log,
		checker: checker,
		locks:   locks,
		limits:  limits,
		logger:  logger,
		metrics: metrics,
	}
}

// SetLimits swaps the structural bounds at runtime (config hot reload).
func (e *MergeEngine) SetLimits(l mindmap.Limits) {
	e.limitsMu.Lock()
	e.limits = l
	e.limitsMu.Unlock()
}

// Limits returns the bounds in effect.
func (e *MergeEngine) Limits() mindmap.Limits {
	e.limitsMu.RLock()
	defer e.limitsMu.RUnlock()
	return e.limits
}

// mutation is the outcome of dispatching one operation before commit:
// the entities to persist, the prior-state snapshot for the journal,
// and the stats delta to fold into the map.
type mutation struct {
	nodes     []*mindmap.Node
	edges     []*mindmap.Edge
	previous  *mindmap.Snapshot
	nodeDelta int
	edgeDelta int
	result    *mindmap.MergeResult
}

// Merge admits one operation. The returned MergeResult carries the
// typed rejection reason when the operation is refused; a non-nil error
// means a storage fault and implies no state was changed.
func (e *MergeEngine) Merge(ctx context.Context, op *mindmap.Operation) (*mindmap.MergeResult, error) {
	started := time.Now()

	if !op.Type.Valid() {
		res := mindmap.Reject(mindmap.ReasonUnknownOperation)
		e.observe(op, res, started)
		return res, nil
	}
	if op.ID == "" {
		op.ID = uuid.New().String()
	}

	unlock := e.locks.Lock(op.MapID)
	defer unlock()

	m, err := e.repo.GetMap(ctx, op.MapID)
	if err != nil {
		e.metrics.RecordMergeError(string(op.Type))
		return nil, pkgerrors.Wrap(err, "load map")
	}
	if m == nil {
		res := mindmap.Reject(mindmap.ReasonNotFound)
		e.observe(op, res, started)
		return res, nil
	}

	// A retransmitted operation ID was already journaled; whatever its
	// clock says, the replay carries no new information.
	prior, err := e.log.GetByID(ctx, op.ID)
	if err != nil {
		e.metrics.RecordMergeError(string(op.Type))
		return nil, pkgerrors.Wrap(err, "check journal")
	}
	if prior != nil {
		res := mindmap.Reject(mindmap.ReasonStale)
		e.observe(op, res, started)
		return res, nil
	}

	// Admission: an operation strictly older than the authoritative
	// clock carries no new information. Concurrent clocks are admitted
	// under last-writer-wins and flagged on the journal record.
	rel := op.Clock.Compare(m.Clock)
	if rel == clock.Before {
		res := mindmap.Reject(mindmap.ReasonStale)
		e.observe(op, res, started)
		return res, nil
	}

	mut, err := e.dispatch(ctx, m, op)
	if err != nil {
		e.metrics.RecordMergeError(string(op.Type))
		return nil, err
	}
	if !mut.result.Accepted {
		e.observe(op, mut.result, started)
		return mut.result, nil
	}

	// Journal first: accepting an operation without durably logging it
	// would silently lose causal history. A failed append aborts the
	// merge with no authoritative state change.
	rec := &mindmap.Record{
		ID:        op.ID,
		MapID:     op.MapID,
		Type:      op.Type,
		EntityID:  op.EntityID(),
		ClientID:  op.ClientID,
		Clock:     op.Clock.Copy(),
		Previous:  mut.previous,
		Status:    mindmap.StatusApplied,
		Conflict:  rel == clock.Concurrent,
		AppliedAt: time.Now().UTC(),
	}
	if err := e.log.Append(ctx, rec); err != nil {
		e.metrics.RecordJournalFailure()
		e.metrics.RecordMergeError(string(op.Type))
		return nil, pkgerrors.Wrap(err, "journal append")
	}

	for _, n := range mut.nodes {
		if err := e.repo.SaveNode(ctx, n); err != nil {
			return nil, pkgerrors.Wrap(err, "save node")
		}
	}
	for _, ed := range mut.edges {
		if err := e.repo.SaveEdge(ctx, ed); err != nil {
			return nil, pkgerrors.Wrap(err, "save edge")
		}
	}

	m.Stats.ActiveNodes += mut.nodeDelta
	m.Stats.ActiveEdges += mut.edgeDelta
	m.Absorb(op.Clock)
	if err := e.repo.SaveMap(ctx, m); err != nil {
		return nil, pkgerrors.Wrap(err, "save map")
	}

	mut.result.MergedClock = m.Clock.Copy()
	mut.result.Seq = rec.Seq
	mut.result.Conflict = rec.Conflict

	e.logger.Debug("operation merged",
		zap.String("mapID", op.MapID),
		zap.String("operationID", op.ID),
		zap.String("type", string(op.Type)),
		zap.String("clientID", op.ClientID),
		zap.Int64("seq", rec.Seq),
		zap.Bool("conflict", rec.Conflict),
	)
	e.observe(op, mut.result, started)
	return mut.result, nil
}

func (e *MergeEngine) observe(op *mindmap.Operation, res *mindmap.MergeResult, started time.Time) {
	e.metrics.RecordMerge(string(op.Type), res.Accepted, string(res.Reason), time.Since(started))
}

// dispatch applies the per-type merge rules and returns the planned
// mutation. It never writes; commit order is journal, entities, map.
func (e *MergeEngine) dispatch(ctx context.Context, m *mindmap.MindMap, op *mindmap.Operation) (*mutation, error) {
	switch op.Type {
	case mindmap.OpAddNode:
		return e.addNode(ctx, m, op)
	case mindmap.OpUpdateNode, mindmap.OpMoveNode:
		return e.changeNode(ctx, op)
	case mindmap.OpDeleteNode:
		return e.deleteNode(ctx, op)
	case mindmap.OpAddEdge:
		return e.addEdge(ctx, m, op)
	case mindmap.OpDeleteEdge:
		return e.deleteEdge(ctx, op)
	default:
		return &mutation{result: mindmap.Reject(mindmap.ReasonUnknownOperation)}, nil
	}
}

func reject(reason mindmap.RejectReason) *mutation {
	return &mutation{result: mindmap.Reject(reason)}
}

func (e *MergeEngine) addNode(ctx context.Context, m *mindmap.MindMap, op *mindmap.Operation) (*mutation, error) {
	p := op.Node
	if p == nil || p.NodeID == "" {
		return nil, pkgerrors.NewValidation("ADD_NODE requires a node payload")
	}
	limits := e.Limits()
	if !limits.ValidLabel(p.Label) {
		return reject(mindmap.ReasonContentTooLong), nil
	}
	if !limits.ValidPosition(p.X, p.Y) {
		return reject(mindmap.ReasonInvalidPosition), nil
	}
	if p.Shape != "" && !p.Shape.Valid() {
		return nil, pkgerrors.NewValidation("unknown node shape")
	}
	if m.Stats.ActiveNodes >= limits.MaxNodesPerMap {
		return reject(mindmap.ReasonLimitExceeded), nil
	}

	existing, err := e.repo.GetNode(ctx, op.MapID, p.NodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load node")
	}
	if existing != nil && !existing.Deleted {
		return reject(mindmap.ReasonAlreadyExists), nil
	}

	// A soft-deleted ID may be revived as a fresh node; reversal of an
	// add is a soft delete either way, so no prior state is recorded.
	n := mindmap.NewNode(p.NodeID, op.MapID, p.Label, p.X, p.Y, p.Color, p.Shape, op.ClientID, op.Clock)
	return &mutation{
		nodes:     []*mindmap.Node{n},
		nodeDelta: 1,
		result:    &mindmap.MergeResult{Accepted: true, Node: n},
	}, nil
}

func (e *MergeEngine) changeNode(ctx context.Context, op *mindmap.Operation) (*mutation, error) {
	p := op.Node
	if p == nil || p.NodeID == "" {
		return nil, pkgerrors.NewValidation(string(op.Type) + " requires a node payload")
	}

	n, err := e.repo.GetNode(ctx, op.MapID, p.NodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load node")
	}
	if n == nil || n.Deleted {
		return reject(mindmap.ReasonNotFound), nil
	}

	// Per-entity last-writer-wins: only a write the node has already
	// causally absorbed is refused. Concurrent and equal clocks favor
	// the incoming write: there is no wall clock and no per-field
	// merge, so ties go to whoever reaches the authority last.
	if n.Clock.Compare(op.Clock) == clock.After {
		return reject(mindmap.ReasonStale), nil
	}

	limits := e.Limits()
	prev := &mindmap.Snapshot{Node: n.Snapshot()}

	switch op.Type {
	case mindmap.OpUpdateNode:
		if !limits.ValidLabel(p.Label) {
			return reject(mindmap.ReasonContentTooLong), nil
		}
		if p.Shape != "" && !p.Shape.Valid() {
			return nil, pkgerrors.NewValidation("unknown node shape")
		}
		n.ApplyUpdate(p.Label, p.Color, p.Shape, op.ClientID, op.Clock)
	case mindmap.OpMoveNode:
		if !limits.ValidPosition(p.X, p.Y) {
			return reject(mindmap.ReasonInvalidPosition), nil
		}
		n.MoveTo(p.X, p.Y, op.ClientID, op.Clock)
	}

	return &mutation{
		nodes:    []*mindmap.Node{n},
		previous: prev,
		result:   &mindmap.MergeResult{Accepted: true, Node: n},
	}, nil
}

func (e *MergeEngine) deleteNode(ctx context.Context, op *mindmap.Operation) (*mutation, error) {
	p := op.Node
	if p == nil || p.NodeID == "" {
		return nil, pkgerrors.NewValidation("DELETE_NODE requires a node payload")
	}

	n, err := e.repo.GetNode(ctx, op.MapID, p.NodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load node")
	}
	if n == nil || n.Deleted {
		return reject(mindmap.ReasonNotFound), nil
	}

	incident, err := e.repo.IncidentActiveEdges(ctx, op.MapID, p.NodeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load incident edges")
	}

	prev := &mindmap.Snapshot{Node: n.Snapshot()}
	n.SoftDelete(op.ClientID, op.Clock)

	// Cascade: incident active edges are soft-deleted in the same
	// atomic step, and their IDs recorded so rollback can restore them.
	edges := make([]*mindmap.Edge, 0, len(incident))
	for _, ed := range incident {
		prev.CascadedEdgeIDs = append(prev.CascadedEdgeIDs, ed.ID)
		ed.SoftDelete(op.ClientID, op.Clock)
		edges = append(edges, ed)
	}

	return &mutation{
		nodes:     []*mindmap.Node{n},
		edges:     edges,
		previous:  prev,
		nodeDelta: -1,
		edgeDelta: -len(edges),
		result:    &mindmap.MergeResult{Accepted: true, Node: n},
	}, nil
}

func (e *MergeEngine) addEdge(ctx context.Context, m *mindmap.MindMap, op *mindmap.Operation) (*mutation, error) {
	p := op.Edge
	if p == nil || p.EdgeID == "" || p.SourceID == "" || p.TargetID == "" {
		return nil, pkgerrors.NewValidation("ADD_EDGE requires an edge payload")
	}
	if p.SourceID == p.TargetID {
		return reject(mindmap.ReasonSelfLoop), nil
	}
	if m.Stats.ActiveEdges >= e.Limits().MaxEdgesPerMap {
		return reject(mindmap.ReasonLimitExceeded), nil
	}

	source, err := e.repo.GetNode(ctx, op.MapID, p.SourceID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load source node")
	}
	target, err := e.repo.GetNode(ctx, op.MapID, p.TargetID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load target node")
	}
	if source == nil || source.Deleted || target == nil || target.Deleted {
		return reject(mindmap.ReasonNotFound), nil
	}

	existing, err := e.repo.GetEdge(ctx, op.MapID, p.EdgeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load edge")
	}
	if existing != nil && !existing.Deleted {
		return reject(mindmap.ReasonAlreadyExists), nil
	}

	dup, err := e.repo.ActiveEdgeBetween(ctx, op.MapID, p.SourceID, p.TargetID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "check duplicate edge")
	}
	if dup != nil {
		return reject(mindmap.ReasonDuplicateEdge), nil
	}

	// Cycle veto runs against the adjacency with the candidate edge
	// already inserted, before anything is committed.
	active, err := e.repo.ActiveEdges(ctx, op.MapID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load active edges")
	}
	adj := services.BuildAdjacency(active)
	if e.checker.WouldCreateCycle(adj, p.SourceID, p.TargetID) {
		path := e.checker.DetectCycle(adj.WithEdge(p.SourceID, p.TargetID))
		return &mutation{result: mindmap.RejectCycle(path)}, nil
	}

	ed := mindmap.NewEdge(p.EdgeID, op.MapID, p.SourceID, p.TargetID, op.ClientID, op.Clock)
	return &mutation{
		edges:     []*mindmap.Edge{ed},
		edgeDelta: 1,
		result:    &mindmap.MergeResult{Accepted: true, Edge: ed},
	}, nil
}

func (e *MergeEngine) deleteEdge(ctx context.Context, op *mindmap.Operation) (*mutation, error) {
	p := op.Edge
	if p == nil || p.EdgeID == "" {
		return nil, pkgerrors.NewValidation("DELETE_EDGE requires an edge payload")
	}

	ed, err := e.repo.GetEdge(ctx, op.MapID, p.EdgeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load edge")
	}
	if ed == nil || ed.Deleted {
		return reject(mindmap.ReasonNotFound), nil
	}

	prev := &mindmap.Snapshot{Edge: ed.Snapshot()}
	ed.SoftDelete(op.ClientID, op.Clock)

	return &mutation{
		edges:     []*mindmap.Edge{ed},
		previous:  prev,
		edgeDelta: -1,
		result:    &mindmap.MergeResult{Accepted: true, Edge: ed},
	}, nil
}
