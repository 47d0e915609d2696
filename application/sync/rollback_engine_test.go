package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

func (f *engineFixture) newRollbackEngine() *RollbackEngine {
	return NewRollbackEngine(f.repo, f.log, f.locks, zap.NewNop(), nil)
}

func TestRollbackUnknownOperation(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()

	res, err := rb.Rollback(context.Background(), "ghost")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, mindmap.ReasonNotFound, res.Reason)
}

func TestRollbackAddNodeSoftDeletes(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	f.seedChain(t, []string{"n1"})

	res, err := rb.Rollback(ctx, "seed-n-n1")

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, mindmap.StatusRolledBack, res.Record.Status)

	n, err := f.repo.GetNode(ctx, "map-1", "n1")
	require.NoError(t, err)
	assert.True(t, n.Deleted)

	m, err := f.repo.GetMap(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, 0, m.Stats.ActiveNodes)
	assert.Equal(t, uint64(1), m.Clock["seed"], "rollback never rewinds the clock")
}

// Rolling back the creation of a connected node cascades to the edges
// attached to it, same as a delete would.
func TestRollbackAddNodeCascadesIncidentEdges(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	f.seedChain(t, []string{"n1", "n2", "n3"})

	res, err := rb.Rollback(ctx, "seed-n-n2")

	require.NoError(t, err)
	require.True(t, res.Success)

	edges, err := f.repo.ActiveEdges(ctx, "map-1")
	require.NoError(t, err)
	assert.Empty(t, edges)

	m, err := f.repo.GetMap(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Stats.ActiveNodes)
	assert.Equal(t, 0, m.Stats.ActiveEdges)
}

func TestRollbackMoveRestoresPosition(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1"})

	res, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-move", Type: mindmap.OpMoveNode, MapID: "map-1", ClientID: "alice",
		Clock: base.Tick("alice"),
		Node:  &mindmap.NodePayload{NodeID: "n1", X: 500, Y: 600},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	rres, err := rb.Rollback(ctx, "op-move")

	require.NoError(t, err)
	require.True(t, rres.Success)
	n, err := f.repo.GetNode(ctx, "map-1", "n1")
	require.NoError(t, err)
	assert.Equal(t, float64(10), n.X)
	assert.Equal(t, float64(20), n.Y)
}

// Scenario: delete a connected node, then roll the delete back. The
// node and every edge the delete cascaded come back.
func TestRollbackDeleteNodeRestoresCascadedEdges(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1", "n2", "n3"})

	res, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-del", Type: mindmap.OpDeleteNode, MapID: "map-1", ClientID: "alice",
		Clock: base.Tick("alice"),
		Node:  &mindmap.NodePayload{NodeID: "n2"},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	rres, err := rb.Rollback(ctx, "op-del")

	require.NoError(t, err)
	require.True(t, rres.Success)

	n2, err := f.repo.GetNode(ctx, "map-1", "n2")
	require.NoError(t, err)
	assert.False(t, n2.Deleted)

	edges, err := f.repo.ActiveEdges(ctx, "map-1")
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	m, err := f.repo.GetMap(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, 3, m.Stats.ActiveNodes)
	assert.Equal(t, 2, m.Stats.ActiveEdges)
}

func TestRollbackDeleteEdgeRestores(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1", "n2"})

	res, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-del-edge", Type: mindmap.OpDeleteEdge, MapID: "map-1", ClientID: "alice",
		Clock: base.Tick("alice"),
		Edge:  &mindmap.EdgePayload{EdgeID: "en1n2"},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	rres, err := rb.Rollback(ctx, "op-del-edge")

	require.NoError(t, err)
	require.True(t, rres.Success)
	e, err := f.repo.GetEdge(ctx, "map-1", "en1n2")
	require.NoError(t, err)
	assert.False(t, e.Deleted)
}

func TestRollbackTwiceRejected(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	f.seedChain(t, []string{"n1"})

	res, err := rb.Rollback(ctx, "seed-n-n1")
	require.NoError(t, err)
	require.True(t, res.Success)

	res, err = rb.Rollback(ctx, "seed-n-n1")

	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, mindmap.ReasonAlreadyRolledBack, res.Reason)
}

// After an add is rolled back, a later operation may reuse the ID as a
// fresh entity.
func TestRollbackThenRemergeSameNodeID(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1"})

	res, err := rb.Rollback(ctx, "seed-n-n1")
	require.NoError(t, err)
	require.True(t, res.Success)

	mres, err := f.engine.Merge(ctx, addNodeOp("op-again", "n1", "alice", base.Tick("alice")))

	require.NoError(t, err)
	assert.True(t, mres.Accepted)
	n, err := f.repo.GetNode(ctx, "map-1", "n1")
	require.NoError(t, err)
	assert.False(t, n.Deleted)
	assert.Equal(t, "Node n1", n.Label)
}

func TestRollbackIsForwardEvent(t *testing.T) {
	f := newEngineFixture(t)
	rb := f.newRollbackEngine()
	ctx := context.Background()
	f.seedChain(t, []string{"n1"})

	before, err := f.repo.GetMap(ctx, "map-1")
	require.NoError(t, err)

	_, err = rb.Rollback(ctx, "seed-n-n1")
	require.NoError(t, err)

	after, err := f.repo.GetMap(ctx, "map-1")
	require.NoError(t, err)
	assert.Equal(t, before.Version+1, after.Version)
	assert.True(t, before.Clock.Equal(after.Clock))
}
