package planner

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exampleGraph is the five-node corridor used across the mission tests.
func exampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.MustNew(5)
	require.NoError(t, g.AddEdge(0, 1, 1))
	require.NoError(t, g.AddEdge(1, 2, 2))
	require.NoError(t, g.AddEdge(0, 2, 4))
	require.NoError(t, g.AddEdge(2, 3, 1))
	require.NoError(t, g.AddEdge(3, 4, 1))
	return g
}

func TestShortestPathExample(t *testing.T) {
	g := exampleGraph(t)

	path, err := ShortestPath(g, 0, 4)
	require.NoError(t, err)
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4}, path.Nodes); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(5), path.Cost)

	cost, ok := PathCost(g, path.Nodes)
	require.True(t, ok)
	assert.Equal(t, path.Cost, cost)
}

func TestShortestPathReverseDirection(t *testing.T) {
	g := exampleGraph(t)

	path, err := ShortestPath(g, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 2, 1, 0}, path.Nodes)
	assert.Equal(t, int64(5), path.Cost)
}

func TestShortestPathSameNode(t *testing.T) {
	g := exampleGraph(t)
	for n := 0; n < g.NumNodes(); n++ {
		path, err := ShortestPath(g, n, n)
		require.NoError(t, err)
		assert.Equal(t, []int{n}, path.Nodes)
		assert.Equal(t, int64(0), path.Cost)
	}

	isolated := graph.MustNew(1)
	path, err := ShortestPath(isolated, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, path.Nodes)
}

func TestShortestPathUnreachable(t *testing.T) {
	g := graph.MustNew(4)
	require.NoError(t, g.AddEdge(0, 1, 1))
	require.NoError(t, g.AddEdge(2, 3, 1))

	path, err := ShortestPath(g, 0, 3)
	assert.True(t, errors.Is(err, domain.ErrUnreachable))
	assert.Nil(t, path.Nodes)
	assert.Zero(t, path.Cost)
}

func TestShortestPathInvalidArguments(t *testing.T) {
	g := exampleGraph(t)

	cases := []struct {
		name       string
		g          *graph.Graph
		start, end int
	}{
		{"nil graph", nil, 0, 1},
		{"negative start", g, -1, 1},
		{"start out of range", g, 5, 1},
		{"end out of range", g, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ShortestPath(tc.g, tc.start, tc.end)
			assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
		})
	}
}

func TestShortestPathZeroCostEdges(t *testing.T) {
	g := graph.MustNew(3)
	require.NoError(t, g.AddEdge(0, 1, 0))
	require.NoError(t, g.AddEdge(1, 2, 0))
	require.NoError(t, g.AddEdge(0, 2, 1))

	path, err := ShortestPath(g, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(0), path.Cost)
	assert.Equal(t, []int{0, 1, 2}, path.Nodes)
}

func TestShortestPathParallelEdges(t *testing.T) {
	g := graph.MustNew(2)
	require.NoError(t, g.AddEdge(0, 1, 9))
	require.NoError(t, g.AddEdge(1, 0, 2))

	path, err := ShortestPath(g, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), path.Cost)
}

func TestShortestPathCostIsExactAtEdgeCostBound(t *testing.T) {
	g := graph.MustNew(3)
	limit := g.MaxEdgeCost()
	require.NoError(t, g.AddEdge(0, 1, limit))
	require.NoError(t, g.AddEdge(1, 2, limit))

	path, err := ShortestPath(g, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, path.Nodes)
	assert.Equal(t, 2*limit, path.Cost)
	assert.Less(t, path.Cost, Infinity)

	cost, ok := PathCost(g, path.Nodes)
	require.True(t, ok)
	assert.Equal(t, path.Cost, cost)
}

func TestHugeEdgeCostsAreRejected(t *testing.T) {
	g := graph.MustNew(3)
	require.Error(t, g.AddEdge(0, 1, Infinity-10))
	require.NoError(t, g.AddEdge(1, 2, 100))

	_, err := ShortestPath(g, 0, 2)
	assert.True(t, errors.Is(err, domain.ErrUnreachable))
}

func TestPathCostRejectsOverflowingWalk(t *testing.T) {
	g := graph.MustNew(3)
	limit := g.MaxEdgeCost()
	require.NoError(t, g.AddEdge(0, 1, limit))

	// A walk may revisit nodes and exceed what any simple path can cost
	_, ok := PathCost(g, []int{0, 1, 0, 1, 0})
	assert.False(t, ok)
}

func TestShortestPathIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	g := randomGraph(t, rng, 30, 0.2, 5)

	first, err1 := ShortestPath(g, 0, 29)
	second, err2 := ShortestPath(g, 0, 29)
	assert.Equal(t, err1 == nil, err2 == nil)
	assert.Equal(t, first.Cost, second.Cost)
}

func TestDistances(t *testing.T) {
	g := graph.MustNew(6)
	require.NoError(t, g.AddEdge(0, 1, 1))
	require.NoError(t, g.AddEdge(1, 2, 2))
	require.NoError(t, g.AddEdge(0, 2, 4))
	require.NoError(t, g.AddEdge(2, 3, 1))
	require.NoError(t, g.AddEdge(3, 4, 1))

	dist, err := Distances(g, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 1, 3, 4, 5, Infinity}, dist)

	_, err = Distances(g, 6)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestPathCostRejectsNonAdjacentNodes(t *testing.T) {
	g := exampleGraph(t)
	_, ok := PathCost(g, []int{0, 4})
	assert.False(t, ok)
}

// TestShortestPathMatchesBruteForce cross-checks Dijkstra against exhaustive
// enumeration of simple paths on small random graphs.
func TestShortestPathMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		n := 2 + rng.Intn(6)
		g := randomGraph(t, rng, n, 0.4, 9)
		start, end := rng.Intn(n), rng.Intn(n)

		want, reachable := bruteForce(g, start, end)
		path, err := ShortestPath(g, start, end)

		if !reachable {
			require.Truef(t, errors.Is(err, domain.ErrUnreachable), "trial %d: expected unreachable, got %v", trial, err)
			continue
		}
		require.NoErrorf(t, err, "trial %d", trial)
		assert.Equalf(t, want, path.Cost, "trial %d: %d->%d", trial, start, end)
		assert.Equal(t, start, path.Nodes[0])
		assert.Equal(t, end, path.Nodes[len(path.Nodes)-1])

		sum, ok := PathCost(g, path.Nodes)
		require.Truef(t, ok, "trial %d: path %v uses a missing edge", trial, path.Nodes)
		assert.Equal(t, path.Cost, sum)
	}
}

func randomGraph(t *testing.T, rng *rand.Rand, n int, density float64, maxCost int64) *graph.Graph {
	t.Helper()
	g := graph.MustNew(n)
	for u := 0; u < n; u++ {
		for v := u + 1; v < n; v++ {
			if rng.Float64() < density {
				require.NoError(t, g.AddEdge(u, v, rng.Int63n(maxCost+1)))
			}
		}
	}
	return g
}

// bruteForce enumerates every simple path from start to end.
func bruteForce(g *graph.Graph, start, end int) (int64, bool) {
	if start == end {
		return 0, true
	}
	best := Infinity
	visited := make([]bool, g.NumNodes())

	var walk func(n int, cost int64)
	walk = func(n int, cost int64) {
		if n == end {
			if cost < best {
				best = cost
			}
			return
		}
		visited[n] = true
		adj, _ := g.Adjacent(n)
		for _, e := range adj {
			if !visited[e.To] {
				walk(e.To, cost+e.Cost)
			}
		}
		visited[n] = false
	}
	walk(start, 0)

	return best, best != Infinity
}
