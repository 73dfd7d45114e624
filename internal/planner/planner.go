// Package planner computes minimum-cost routes over a graph.Graph with
// Dijkstra's algorithm.
//
// Ties between equal-cost routes are broken by queue order, so two calls may
// return different node sequences of the same cost if the graph has ties.
package planner

import (
	"container/heap"
	"math"

	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/pkg/domain"
)

// Infinity is the distance of a node not reached from the source. No real
// distance can equal it: relaxation only extends simple paths, and
// graph.AddEdge bounds edge costs so any simple path sums below it.
const Infinity int64 = math.MaxInt64

// Path is an ordered node sequence from start to end and its total cost.
type Path struct {
	Nodes []int `json:"nodes"`
	Cost  int64 `json:"cost"`
}

// Len returns the number of nodes on the path.
func (p Path) Len() int {
	return len(p.Nodes)
}

// search is the state of one Dijkstra run.
type search struct {
	dist []int64
	prev []int
	done []bool
}

// ShortestPath returns a minimum-cost path from start to end. It returns
// domain.ErrInvalidArgument for endpoints outside g and domain.ErrUnreachable
// when no path exists.
func ShortestPath(g *graph.Graph, start, end int) (Path, error) {
	if err := checkEndpoints(g, start, end); err != nil {
		return Path{}, err
	}

	s := run(g, start, end)
	if s.dist[end] == Infinity {
		return Path{}, domain.NewError(domain.CodeUnreachable, "node %d is unreachable from node %d", end, start)
	}

	nodes := []int{}
	for at := end; at != -1; at = s.prev[at] {
		nodes = append(nodes, at)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	if nodes[0] != start {
		return Path{}, domain.NewError(domain.CodeUnreachable, "node %d is unreachable from node %d", end, start)
	}

	return Path{Nodes: nodes, Cost: s.dist[end]}, nil
}

// Distances returns the minimum cost from start to every node, Infinity for
// nodes that cannot be reached.
func Distances(g *graph.Graph, start int) ([]int64, error) {
	if g == nil {
		return nil, domain.InvalidArgument("graph is nil")
	}
	if !g.Contains(start) {
		return nil, domain.InvalidArgument("start node %d out of range [0,%d)", start, g.NumNodes())
	}
	return run(g, start, -1).dist, nil
}

// PathCost sums the edge costs along nodes, picking the cheapest parallel
// edge between consecutive nodes. It returns false if two consecutive nodes
// are not adjacent or the sum does not fit in an int64.
func PathCost(g *graph.Graph, nodes []int) (int64, bool) {
	var total int64
	for i := 0; i+1 < len(nodes); i++ {
		best := Infinity
		g.Visit(nodes[i], func(e graph.Edge) bool {
			if e.To == nodes[i+1] && e.Cost < best {
				best = e.Cost
			}
			return true
		})
		if best == Infinity {
			return 0, false
		}
		if best > Infinity-1-total {
			return 0, false
		}
		total += best
	}
	return total, true
}

func checkEndpoints(g *graph.Graph, start, end int) error {
	if g == nil {
		return domain.InvalidArgument("graph is nil")
	}
	if !g.Contains(start) {
		return domain.InvalidArgument("start node %d out of range [0,%d)", start, g.NumNodes())
	}
	if !g.Contains(end) {
		return domain.InvalidArgument("end node %d out of range [0,%d)", end, g.NumNodes())
	}
	return nil
}

// run executes Dijkstra from start. When target >= 0 the search stops as soon
// as target is finalised.
func run(g *graph.Graph, start, target int) *search {
	n := g.NumNodes()
	s := &search{
		dist: make([]int64, n),
		prev: make([]int, n),
		done: make([]bool, n),
	}
	for i := range s.dist {
		s.dist[i] = Infinity
		s.prev[i] = -1
	}
	s.dist[start] = 0

	pq := &priorityQueue{}
	seq := 0
	heap.Push(pq, item{node: start, dist: 0, seq: seq})

	for pq.Len() > 0 {
		current := heap.Pop(pq).(item)
		if s.done[current.node] {
			continue
		}
		s.done[current.node] = true

		if current.node == target {
			break
		}

		base := s.dist[current.node]
		g.Visit(current.node, func(e graph.Edge) bool {
			if s.done[e.To] {
				return true
			}
			candidate := base + e.Cost
			if candidate < s.dist[e.To] {
				s.dist[e.To] = candidate
				s.prev[e.To] = current.node
				seq++
				heap.Push(pq, item{node: e.To, dist: candidate, seq: seq})
			}
			return true
		})
	}

	return s
}
