package sync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	pkgerrors "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/errors"
)

func (f *engineFixture) newSyncService() *SyncService {
	return NewSyncService(f.repo, f.log, f.locks, zap.NewNop())
}

func TestCreateMap(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()
	ctx := context.Background()

	m, err := svc.CreateMap(ctx, "", "Brainstorm")

	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "Brainstorm", m.Name)
	assert.Equal(t, int64(0), m.Version)

	_, err = svc.CreateMap(ctx, m.ID, "Again")
	assert.True(t, pkgerrors.IsConflict(err))
}

func TestSnapshotExcludesDeleted(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1", "n2", "n3"})

	res, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-del", Type: mindmap.OpDeleteNode, MapID: "map-1", ClientID: "alice",
		Clock: base.Tick("alice"),
		Node:  &mindmap.NodePayload{NodeID: "n3"},
	})
	require.NoError(t, err)
	require.True(t, res.Accepted)

	snap, err := svc.Snapshot(ctx, "map-1")

	require.NoError(t, err)
	assert.Len(t, snap.Nodes, 2)
	assert.Len(t, snap.Edges, 1)
	assert.Equal(t, res.Seq, snap.Seq)
	assert.Equal(t, uint64(1), snap.Clock["alice"])
	assert.Equal(t, 2, snap.Stats.ActiveNodes)
}

func TestSnapshotUnknownMap(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()

	_, err := svc.Snapshot(context.Background(), "ghost")

	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestOperationsSinceReplaysAppliedOnly(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()
	rb := f.newRollbackEngine()
	ctx := context.Background()
	f.seedChain(t, []string{"n1", "n2"})

	// seed-n-n1 (seq 1), seed-n-n2 (2), seed-e-n2 (3); roll back the edge.
	res, err := rb.Rollback(ctx, "seed-e-n2")
	require.NoError(t, err)
	require.True(t, res.Success)

	recs, err := svc.OperationsSince(ctx, "map-1", 1)

	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "seed-n-n2", recs[0].ID)
	assert.Equal(t, int64(2), recs[0].Seq)
}

func TestHistoryNewestFirstPaged(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()
	ctx := context.Background()
	f.seedChain(t, []string{"n1", "n2", "n3"})

	page, err := svc.History(ctx, "map-1", 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(5), page[0].Seq)
	assert.Equal(t, int64(4), page[1].Seq)

	page, err = svc.History(ctx, "map-1", 2, page[1].Seq)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].Seq)
	assert.Equal(t, int64(2), page[1].Seq)
}

func TestConflictsListsConcurrentRecords(t *testing.T) {
	f := newEngineFixture(t)
	svc := f.newSyncService()
	ctx := context.Background()
	base := f.seedChain(t, []string{"n1"})

	resA, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-alice", Type: mindmap.OpMoveNode, MapID: "map-1", ClientID: "alice",
		Clock: base.Tick("alice"), Node: &mindmap.NodePayload{NodeID: "n1", X: 1, Y: 1},
	})
	require.NoError(t, err)
	require.True(t, resA.Accepted)

	resB, err := f.engine.Merge(ctx, &mindmap.Operation{
		ID: "op-bob", Type: mindmap.OpMoveNode, MapID: "map-1", ClientID: "bob",
		Clock: base.Tick("bob"), Node: &mindmap.NodePayload{NodeID: "n1", X: 2, Y: 2},
	})
	require.NoError(t, err)
	require.True(t, resB.Accepted)

	conflicts, err := svc.Conflicts(ctx, "map-1")

	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "op-bob", conflicts[0].ID)
	assert.True(t, conflicts[0].Conflict)
}
