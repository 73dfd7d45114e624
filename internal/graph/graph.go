// Package graph holds the adjacency-list model of the waypoint roadmap: a fixed
// set of nodes [0, numNodes) joined by undirected edges with non-negative
// integer costs.
//
// Edge costs are bounded by MaxEdgeCost so that the cost of any simple path
// fits in an int64 below math.MaxInt64.
package graph

import (
	"math"

	"github.com/aescanero/waypoint/pkg/domain"
)

// Edge is one entry of a node's adjacency list.
type Edge struct {
	To   int   `json:"to"`
	Cost int64 `json:"cost"`
}

// UndirectedEdge is an edge listed once, with U <= V.
type UndirectedEdge struct {
	U    int   `json:"u"`
	V    int   `json:"v"`
	Cost int64 `json:"cost"`
}

// Graph is an undirected weighted graph. It is mutated only during setup;
// planners treat it as read-only.
type Graph struct {
	adj   [][]Edge
	edges []UndirectedEdge
}

// New allocates a graph of numNodes edgeless nodes.
func New(numNodes int) (*Graph, error) {
	if numNodes < 0 {
		return nil, domain.InvalidArgument("node count must be non-negative, got %d", numNodes)
	}
	return &Graph{
		adj: make([][]Edge, numNodes),
	}, nil
}

// MustNew is New for fixed sizes known to be valid.
func MustNew(numNodes int) *Graph {
	g, err := New(numNodes)
	if err != nil {
		panic(err)
	}
	return g
}

// AddEdge inserts an undirected edge u–v. The graph is left untouched on error.
func (g *Graph) AddEdge(u, v int, cost int64) error {
	if !g.Contains(u) {
		return domain.InvalidArgument("node %d out of range [0,%d)", u, len(g.adj))
	}
	if !g.Contains(v) {
		return domain.InvalidArgument("node %d out of range [0,%d)", v, len(g.adj))
	}
	if cost < 0 {
		return domain.InvalidArgument("edge %d-%d has negative cost %d", u, v, cost)
	}
	if limit := g.MaxEdgeCost(); cost > limit {
		return domain.InvalidArgument("edge %d-%d cost %d exceeds %d for %d nodes", u, v, cost, limit, len(g.adj))
	}

	g.adj[u] = append(g.adj[u], Edge{To: v, Cost: cost})
	if u != v {
		g.adj[v] = append(g.adj[v], Edge{To: u, Cost: cost})
	}

	lo, hi := u, v
	if lo > hi {
		lo, hi = hi, lo
	}
	g.edges = append(g.edges, UndirectedEdge{U: lo, V: hi, Cost: cost})
	return nil
}

// MaxEdgeCost is the largest cost AddEdge accepts. A simple path has at most
// NumNodes-1 edges, so its total stays below math.MaxInt64.
func (g *Graph) MaxEdgeCost() int64 {
	hops := int64(len(g.adj) - 1)
	if hops < 1 {
		hops = 1
	}
	return (math.MaxInt64 - 1) / hops
}

// Adjacent returns a copy of n's incident edges in insertion order.
func (g *Graph) Adjacent(n int) ([]Edge, error) {
	if !g.Contains(n) {
		return nil, domain.InvalidArgument("node %d out of range [0,%d)", n, len(g.adj))
	}
	out := make([]Edge, len(g.adj[n]))
	copy(out, g.adj[n])
	return out, nil
}

// neighbors returns n's adjacency list without copying. Callers must not modify it.
func (g *Graph) neighbors(n int) []Edge {
	return g.adj[n]
}

// Contains reports whether n is a node of g.
func (g *Graph) Contains(n int) bool {
	return g != nil && n >= 0 && n < len(g.adj)
}

// NumNodes returns the node count fixed at construction.
func (g *Graph) NumNodes() int {
	return len(g.adj)
}

// NumEdges returns the number of undirected edges added.
func (g *Graph) NumEdges() int {
	return len(g.edges)
}

// Edges lists each undirected edge once in insertion order.
func (g *Graph) Edges() []UndirectedEdge {
	out := make([]UndirectedEdge, len(g.edges))
	copy(out, g.edges)
	return out
}

// Visit calls fn for every edge incident to n, stopping early if fn returns false.
// It avoids the copy made by Adjacent and is what the planner uses.
func (g *Graph) Visit(n int, fn func(Edge) bool) {
	if !g.Contains(n) {
		return
	}
	for _, e := range g.neighbors(n) {
		if !fn(e) {
			return
		}
	}
}
