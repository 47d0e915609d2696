package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

func chain(pairs ...[2]string) Adjacency {
	adj := make(Adjacency)
	for _, p := range pairs {
		adj[p[0]] = append(adj[p[0]], p[1])
	}
	return adj
}

func TestGraphChecker_DetectCycle_Acyclic(t *testing.T) {
	g := NewGraphChecker()

	assert.Nil(t, g.DetectCycle(Adjacency{}))
	assert.Nil(t, g.DetectCycle(chain([2]string{"1", "2"}, [2]string{"2", "3"})))
	// Diamond: two paths, no cycle.
	assert.Nil(t, g.DetectCycle(chain(
		[2]string{"a", "b"}, [2]string{"a", "c"},
		[2]string{"b", "d"}, [2]string{"c", "d"},
	)))
}

func TestGraphChecker_DetectCycle_ReportsPath(t *testing.T) {
	g := NewGraphChecker()

	// 1→2→3→1: the cycle is reported starting at its smallest node.
	adj := chain([2]string{"1", "2"}, [2]string{"2", "3"}, [2]string{"3", "1"})

	cycle := g.DetectCycle(adj)

	require.NotNil(t, cycle)
	assert.Equal(t, []string{"1", "2", "3"}, cycle)
}

func TestGraphChecker_DetectCycle_RotatesToSmallestID(t *testing.T) {
	g := NewGraphChecker()

	// The search enters the cycle b→c→a→b through the feeder edge 0→b,
	// so the raw stack suffix starts at b; the reported path must not.
	adj := chain(
		[2]string{"0", "b"},
		[2]string{"b", "c"}, [2]string{"c", "a"}, [2]string{"a", "b"},
	)

	cycle := g.DetectCycle(adj)

	require.NotNil(t, cycle)
	assert.Equal(t, []string{"a", "b", "c"}, cycle)
}

func TestGraphChecker_DetectCycle_SelfLoop(t *testing.T) {
	g := NewGraphChecker()

	cycle := g.DetectCycle(chain([2]string{"x", "x"}))

	assert.Equal(t, []string{"x"}, cycle)
}

func TestGraphChecker_WouldCreateCycle(t *testing.T) {
	g := NewGraphChecker()
	// 1→2→3 plus a side branch 2→4.
	adj := chain([2]string{"1", "2"}, [2]string{"2", "3"}, [2]string{"2", "4"})

	// Closing the chain back to its start is a cycle.
	assert.True(t, g.WouldCreateCycle(adj, "3", "1"))
	assert.True(t, g.WouldCreateCycle(adj, "3", "2"))
	assert.True(t, g.WouldCreateCycle(adj, "4", "1"))

	// Forward or sideways insertions are fine.
	assert.False(t, g.WouldCreateCycle(adj, "1", "3"))
	assert.False(t, g.WouldCreateCycle(adj, "3", "4"))
	assert.False(t, g.WouldCreateCycle(adj, "1", "5"))

	// A self-loop is trivially a cycle.
	assert.True(t, g.WouldCreateCycle(adj, "1", "1"))
}

func TestGraphChecker_WouldCreateCycle_MatchesInsertion(t *testing.T) {
	g := NewGraphChecker()
	adj := chain(
		[2]string{"a", "b"}, [2]string{"b", "c"},
		[2]string{"c", "d"}, [2]string{"a", "c"},
	)

	candidates := [][2]string{
		{"d", "a"}, {"d", "b"}, {"c", "a"}, {"a", "d"}, {"b", "d"},
	}
	for _, cand := range candidates {
		predicted := g.WouldCreateCycle(adj, cand[0], cand[1])
		actual := g.DetectCycle(adj.WithEdge(cand[0], cand[1])) != nil
		assert.Equal(t, actual, predicted, "candidate %s→%s", cand[0], cand[1])
	}
}

func TestGraphChecker_FindOrphans(t *testing.T) {
	g := NewGraphChecker()
	nodes := []string{"1", "2", "3", "4", "5"}
	adj := chain([2]string{"1", "2"}, [2]string{"2", "3"}, [2]string{"4", "5"})

	roots := g.Roots(nodes, adj)
	assert.Equal(t, []string{"1", "4"}, roots)

	// Everything is reachable from the two roots.
	assert.Empty(t, g.FindOrphans(nodes, adj, roots))

	// Restricting the roots strands the second chain.
	orphans := g.FindOrphans(nodes, adj, []string{"1"})
	assert.Equal(t, []string{"4", "5"}, orphans)
}

func TestGraphChecker_FindOrphans_AfterCascadeDelete(t *testing.T) {
	g := NewGraphChecker()

	// n had two incident edges (p→n, n→c); the cascade soft-deleted both.
	// Remaining active topology: p and c with no edges between them.
	edges := []*mindmap.Edge{
		{ID: "e1", SourceID: "p", TargetID: "n", Deleted: true},
		{ID: "e2", SourceID: "n", TargetID: "c", Deleted: true},
	}
	adj := BuildAdjacency(edges)
	active := []string{"p", "c"}

	roots := g.Roots(active, adj)
	assert.Equal(t, []string{"c", "p"}, roots)
	assert.Empty(t, g.FindOrphans(active, adj, roots), "former neighbors become roots, not orphans")
}

func TestGraphChecker_ConnectedComponents(t *testing.T) {
	g := NewGraphChecker()
	nodes := []string{"1", "2", "3", "4", "5", "6"}
	adj := chain([2]string{"1", "2"}, [2]string{"3", "2"}, [2]string{"4", "5"})

	components := g.ConnectedComponents(nodes, adj)

	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5"}, {"6"}}, components)
}

func TestBuildAdjacency_SkipsDeletedEdges(t *testing.T) {
	edges := []*mindmap.Edge{
		{ID: "e1", SourceID: "1", TargetID: "2"},
		{ID: "e2", SourceID: "2", TargetID: "3", Deleted: true},
	}

	adj := BuildAdjacency(edges)

	assert.Equal(t, []string{"2"}, adj["1"])
	assert.Empty(t, adj["2"])
}
