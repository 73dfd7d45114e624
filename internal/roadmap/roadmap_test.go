package roadmap

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/aescanero/waypoint/internal/planner"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const corridorYAML = `
nodes: 5
edges:
  - {from: 0, to: 1, cost: 1}
  - {from: 1, to: 2, cost: 2}
  - {from: 0, to: 2, cost: 4}
  - {from: 2, to: 3, cost: 1}
  - {from: 3, to: 4, cost: 1}
`

// Waypoints around Maastricht; costs are derived from coordinates.
const geoYAML = `
nodes: 3
waypoints:
  - {id: 0, lon: 5.6909, lat: 50.8514}
  - {id: 1, lon: 5.7000, lat: 50.8514}
  - {id: 2, lon: 5.7100, lat: 50.8600}
edges:
  - {from: 0, to: 1}
  - {from: 1, to: 2}
  - {from: 0, to: 2, cost: 1000000}
`

func TestParseCorridor(t *testing.T) {
	rm, err := Parse([]byte(corridorYAML))
	require.NoError(t, err)
	assert.Equal(t, 5, rm.Graph.NumNodes())
	assert.Equal(t, 5, rm.Graph.NumEdges())

	path, err := planner.ShortestPath(rm.Graph, 0, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, path.Nodes)
	assert.Equal(t, int64(5), path.Cost)

	_, err = rm.Nearest(5.0, 50.0)
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
}

func TestParseJSON(t *testing.T) {
	rm, err := Parse([]byte(`{"nodes": 2, "edges": [{"from": 0, "to": 1, "cost": 3}]}`))
	require.NoError(t, err)
	adj, err := rm.Graph.Adjacent(0)
	require.NoError(t, err)
	require.Len(t, adj, 1)
	assert.Equal(t, int64(3), adj[0].Cost)
}

func TestParseDerivesGeodesicCosts(t *testing.T) {
	rm, err := Parse([]byte(geoYAML))
	require.NoError(t, err)

	adj, err := rm.Graph.Adjacent(0)
	require.NoError(t, err)
	require.Len(t, adj, 2)
	// 0.0091 degrees of longitude at 50.85N is roughly 640 metres.
	assert.InDelta(t, 640, adj[0].Cost, 20)

	path, err := planner.ShortestPath(rm.Graph, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, path.Nodes)
	assert.InDelta(t, float64(path.Cost), rm.PathDistanceMeters(path.Nodes), 2)
}

func TestNearest(t *testing.T) {
	rm, err := Parse([]byte(geoYAML))
	require.NoError(t, err)

	id, err := rm.Nearest(5.6910, 50.8515)
	require.NoError(t, err)
	assert.Equal(t, 0, id)

	id, err = rm.Nearest(5.7099, 50.8601)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestParseRejectsInvalidRoadmaps(t *testing.T) {
	cases := map[string]string{
		"negative node count":   "nodes: -1\n",
		"edge out of range":     "nodes: 2\nedges:\n  - {from: 0, to: 2, cost: 1}\n",
		"negative cost":         "nodes: 2\nedges:\n  - {from: 0, to: 1, cost: -4}\n",
		"missing cost":          "nodes: 2\nedges:\n  - {from: 0, to: 1}\n",
		"waypoint out of range": "nodes: 1\nwaypoints:\n  - {id: 3, lon: 1, lat: 1}\n",
		"duplicate waypoint":    "nodes: 1\nwaypoints:\n  - {id: 0, lon: 1, lat: 1}\n  - {id: 0, lon: 2, lat: 2}\n",
		"malformed":             "nodes: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "got %v", err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(corridorYAML), 0o644))

	rm, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, rm.Graph.NumNodes())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read roadmap")
}

func TestRandomIsCompleteAndSeeded(t *testing.T) {
	cfg := RandomConfig{Nodes: 12, MinCost: 1, MaxCost: 10, Seed: 7}
	a, err := Random(cfg)
	require.NoError(t, err)
	b, err := Random(cfg)
	require.NoError(t, err)

	assert.Equal(t, 12*11/2, a.Graph.NumEdges())
	assert.Equal(t, a.Graph.Edges(), b.Graph.Edges())
	for _, e := range a.Graph.Edges() {
		assert.GreaterOrEqual(t, e.Cost, int64(1))
		assert.LessOrEqual(t, e.Cost, int64(10))
	}

	path, err := planner.ShortestPath(a.Graph, 0, 11)
	require.NoError(t, err)
	assert.LessOrEqual(t, path.Cost, int64(10))
}

func TestRandomRejectsBadCostRange(t *testing.T) {
	_, err := Random(RandomConfig{Nodes: 3, MinCost: 5, MaxCost: 1})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = Random(RandomConfig{Nodes: -2, MinCost: 1, MaxCost: 1})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	// The full int64 range has no representable width
	_, err = Random(RandomConfig{Nodes: 3, MinCost: 0, MaxCost: math.MaxInt64})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))

	_, err = Random(RandomConfig{Nodes: 3, MinCost: 1, MaxCost: math.MaxInt64})
	assert.True(t, errors.Is(err, domain.ErrInvalidArgument))
	assert.ErrorContains(t, err, "exceeds")

	rm, err := Random(RandomConfig{Nodes: 3, MinCost: 1, MaxCost: math.MaxInt64 / 2, Seed: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, rm.Graph.NumEdges())
}
