package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

func record(id, mapID string) *mindmap.Record {
	return &mindmap.Record{
		ID:       id,
		MapID:    mapID,
		Type:     mindmap.OpAddNode,
		EntityID: "n-" + id,
		ClientID: "c1",
		Clock:    clock.New().Tick("c1"),
		Status:   mindmap.StatusApplied,
	}
}

func TestAppendAssignsSequencePerMap(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		rec := record(fmt.Sprintf("a-%d", i), "map-a")
		require.NoError(t, log.Append(ctx, rec))
		assert.Equal(t, int64(i), rec.Seq)
	}

	rec := record("b-1", "map-b")
	require.NoError(t, log.Append(ctx, rec))
	assert.Equal(t, int64(1), rec.Seq, "sequences are per map")
}

func TestAppendRejectsDuplicateOperationID(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	require.NoError(t, log.Append(ctx, record("op-1", "map-a")))
	err := log.Append(ctx, record("op-1", "map-a"))

	assert.Error(t, err)
}

func TestConcurrentAppendersGetDistinctIncreasingSeqs(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	const workers = 8
	const perWorker = 50

	var wg sync.WaitGroup
	seqs := make(chan int64, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				rec := record(fmt.Sprintf("op-%d-%d", w, i), "map-a")
				if err := log.Append(ctx, rec); err == nil {
					seqs <- rec.Seq
				}
			}
		}(w)
	}
	wg.Wait()
	close(seqs)

	var all []int64
	for s := range seqs {
		all = append(all, s)
	}
	require.Len(t, all, workers*perWorker)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i, s := range all {
		assert.Equal(t, int64(i+1), s, "sequence numbers are dense and unique")
	}
}

func TestListSinceSkipsRolledBack(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, log.Append(ctx, record(fmt.Sprintf("op-%d", i), "map-a")))
	}
	require.NoError(t, log.UpdateStatus(ctx, "op-3", mindmap.StatusRolledBack))

	recs, err := log.ListSince(ctx, "map-a", 1)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Seq)
	assert.Equal(t, int64(4), recs[1].Seq)
}

func TestListByMapNewestFirst(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, log.Append(ctx, record(fmt.Sprintf("op-%d", i), "map-a")))
	}

	recs, err := log.ListByMap(ctx, "map-a", 3, 0)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(5), recs[0].Seq)
	assert.Equal(t, int64(3), recs[2].Seq)

	recs, err = log.ListByMap(ctx, "map-a", 3, 3)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(2), recs[0].Seq)
}

func TestStoredRecordsAreIsolated(t *testing.T) {
	log := NewOperationLog()
	ctx := context.Background()

	rec := record("op-1", "map-a")
	rec.Previous = &mindmap.Snapshot{CascadedEdgeIDs: []string{"e1"}}
	require.NoError(t, log.Append(ctx, rec))

	// Mutating the caller's copy must not leak into the journal.
	rec.Clock["c1"] = 99
	rec.Previous.CascadedEdgeIDs[0] = "tampered"

	got, err := log.GetByID(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), got.Clock["c1"])
	assert.Equal(t, []string{"e1"}, got.Previous.CascadedEdgeIDs)
}
