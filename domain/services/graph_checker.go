// Package services holds pure domain services. GraphChecker answers
// structural questions about the active subgraph of a map; it never
// touches persistence and is deterministic for identical input.
package services

import (
	"sort"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
)

// Adjacency is a directed adjacency view: source node ID to target node
// IDs. Callers build it from active (non-deleted) edges only.
type Adjacency map[string][]string

// BuildAdjacency builds the forward adjacency of the given edges,
// skipping soft-deleted ones.
func BuildAdjacency(edges []*mindmap.Edge) Adjacency {
	adj := make(Adjacency)
	for _, e := range edges {
		if e.Deleted {
			continue
		}
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}
	return adj
}

// WithEdge returns a copy of the adjacency with one candidate edge
// inserted, for validate-before-commit checks.
func (a Adjacency) WithEdge(source, target string) Adjacency {
	out := make(Adjacency, len(a)+1)
	for from, tos := range a {
		out[from] = append([]string(nil), tos...)
	}
	out[source] = append(out[source], target)
	return out
}

// Reverse returns the reversed adjacency.
func (a Adjacency) Reverse() Adjacency {
	rev := make(Adjacency, len(a))
	for from, tos := range a {
		for _, to := range tos {
			rev[to] = append(rev[to], from)
		}
	}
	return rev
}

// nodeIDs returns every node mentioned by the adjacency, sorted so that
// traversal order, and therefore any reported cycle, is deterministic.
func (a Adjacency) nodeIDs() []string {
	seen := make(map[string]struct{})
	for from, tos := range a {
		seen[from] = struct{}{}
		for _, to := range tos {
			seen[to] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GraphChecker validates structural invariants over a caller-supplied
// adjacency view. All methods are side-effect free.
type GraphChecker struct{}

// NewGraphChecker creates a graph checker.
func NewGraphChecker() *GraphChecker {
	return &GraphChecker{}
}

// DetectCycle runs a depth-first search with recursion-stack tracking
// and returns the first cycle found as an ordered sequence of node IDs
// rotated to start at the smallest ID in the cycle, or nil if the graph
// is acyclic. When several cycles exist, which one is reported is
// unspecified beyond being deterministic for identical input.
func (g *GraphChecker) DetectCycle(adj Adjacency) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inStack
		stack = append(stack, id)

		neighbors := append([]string(nil), adj[id]...)
		sort.Strings(neighbors)
		for _, next := range neighbors {
			switch state[next] {
			case inStack:
				// Back edge: the cycle is the stack suffix starting at next.
				for i, onStack := range stack {
					if onStack == next {
						cycle = append([]string(nil), stack[i:]...)
						return true
					}
				}
			case unvisited:
				if visit(next) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range adj.nodeIDs() {
		if state[id] == unvisited {
			if visit(id) {
				return rotateToSmallest(cycle)
			}
		}
	}
	return nil
}

// rotateToSmallest starts the cycle at its smallest node ID so the same
// cycle is described identically no matter where the search entered it.
func rotateToSmallest(cycle []string) []string {
	min := 0
	for i, id := range cycle {
		if id < cycle[min] {
			min = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[min:]...)
	return append(out, cycle[:min]...)
}

// WouldCreateCycle reports whether inserting source→target would close a
// directed cycle: true iff target is already an ancestor of source, i.e.
// source is reachable from target, found by walking the reverse
// adjacency upward from source.
func (g *GraphChecker) WouldCreateCycle(adj Adjacency, source, target string) bool {
	if source == target {
		return true
	}
	rev := adj.Reverse()
	visited := make(map[string]bool)
	stack := []string{source}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, ancestor := range rev[id] {
			if ancestor == target {
				return true
			}
			if !visited[ancestor] {
				stack = append(stack, ancestor)
			}
		}
	}
	return false
}

// Roots returns the node IDs with in-degree zero, sorted.
func (g *GraphChecker) Roots(nodeIDs []string, adj Adjacency) []string {
	hasParent := make(map[string]bool)
	for _, tos := range adj {
		for _, to := range tos {
			hasParent[to] = true
		}
	}
	var roots []string
	for _, id := range nodeIDs {
		if !hasParent[id] {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// FindOrphans returns the active nodes unreachable from any of the given
// roots via forward edges, sorted.
func (g *GraphChecker) FindOrphans(nodeIDs []string, adj Adjacency, roots []string) []string {
	reached := make(map[string]bool)
	queue := append([]string(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if reached[id] {
			continue
		}
		reached[id] = true
		queue = append(queue, adj[id]...)
	}

	var orphans []string
	for _, id := range nodeIDs {
		if !reached[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	return orphans
}

// ConnectedComponents partitions the nodes into weakly connected
// components, treating edges as undirected. Components and their members
// are sorted for determinism.
func (g *GraphChecker) ConnectedComponents(nodeIDs []string, adj Adjacency) [][]string {
	undirected := make(Adjacency, len(adj))
	for from, tos := range adj {
		for _, to := range tos {
			undirected[from] = append(undirected[from], to)
			undirected[to] = append(undirected[to], from)
		}
	}

	sorted := append([]string(nil), nodeIDs...)
	sort.Strings(sorted)

	visited := make(map[string]bool)
	var components [][]string
	for _, start := range sorted {
		if visited[start] {
			continue
		}
		var component []string
		stack := []string{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[id] {
				continue
			}
			visited[id] = true
			component = append(component, id)
			stack = append(stack, undirected[id]...)
		}
		sort.Strings(component)
		components = append(components, component)
	}
	return components
}
