// Package roadmap builds the process graph: either a seeded random complete
// graph or a YAML/JSON roadmap file whose waypoints may carry coordinates.
package roadmap

import (
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/aescanero/waypoint/internal/graph"
	"github.com/aescanero/waypoint/pkg/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"gopkg.in/yaml.v3"
)

// Roadmap is a graph plus optional geographic positions of its nodes.
type Roadmap struct {
	Graph     *graph.Graph
	Waypoints map[int]orb.Point

	index *spatialIndex
}

// File is the on-disk roadmap format.
type File struct {
	Nodes     int            `yaml:"nodes" json:"nodes"`
	Waypoints []WaypointSpec `yaml:"waypoints,omitempty" json:"waypoints,omitempty"`
	Edges     []EdgeSpec     `yaml:"edges" json:"edges"`
}

// WaypointSpec places a node at a longitude/latitude.
type WaypointSpec struct {
	ID  int     `yaml:"id" json:"id"`
	Lon float64 `yaml:"lon" json:"lon"`
	Lat float64 `yaml:"lat" json:"lat"`
}

// EdgeSpec is one undirected edge. A nil Cost is derived from the geodesic
// distance between the endpoints' waypoints, in metres.
type EdgeSpec struct {
	From int    `yaml:"from" json:"from"`
	To   int    `yaml:"to" json:"to"`
	Cost *int64 `yaml:"cost,omitempty" json:"cost,omitempty"`
}

// RandomConfig parameterises Random.
type RandomConfig struct {
	Nodes   int
	MinCost int64
	MaxCost int64
	Seed    int64
}

// Random builds a complete graph with uniform integer costs in [MinCost, MaxCost].
// MaxCost may not exceed the graph's edge cost bound for the node count.
func Random(cfg RandomConfig) (*Roadmap, error) {
	if cfg.MinCost < 0 || cfg.MaxCost < cfg.MinCost {
		return nil, domain.InvalidArgument("invalid cost range [%d,%d]", cfg.MinCost, cfg.MaxCost)
	}
	if cfg.MaxCost-cfg.MinCost == math.MaxInt64 {
		return nil, domain.InvalidArgument("cost range [%d,%d] is too wide", cfg.MinCost, cfg.MaxCost)
	}
	g, err := graph.New(cfg.Nodes)
	if err != nil {
		return nil, err
	}
	if cfg.Nodes > 1 && cfg.MaxCost > g.MaxEdgeCost() {
		return nil, domain.InvalidArgument("max cost %d exceeds %d for %d nodes", cfg.MaxCost, g.MaxEdgeCost(), cfg.Nodes)
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	span := cfg.MaxCost - cfg.MinCost + 1
	for i := 0; i < cfg.Nodes; i++ {
		for j := i + 1; j < cfg.Nodes; j++ {
			if err := g.AddEdge(i, j, cfg.MinCost+rng.Int63n(span)); err != nil {
				return nil, err
			}
		}
	}

	return &Roadmap{Graph: g, Waypoints: map[int]orb.Point{}}, nil
}

// Load reads and parses a roadmap file.
func Load(path string) (*Roadmap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roadmap: %w", err)
	}
	rm, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roadmap %s: %w", path, err)
	}
	return rm, nil
}

// Parse decodes a YAML roadmap. JSON input is accepted as YAML.
func Parse(data []byte) (*Roadmap, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, domain.WrapError(domain.CodeInvalidArgument, "malformed roadmap", err)
	}
	return Build(f)
}

// Build constructs a roadmap from its file representation.
func Build(f File) (*Roadmap, error) {
	g, err := graph.New(f.Nodes)
	if err != nil {
		return nil, err
	}

	waypoints := make(map[int]orb.Point, len(f.Waypoints))
	for _, w := range f.Waypoints {
		if !g.Contains(w.ID) {
			return nil, domain.InvalidArgument("waypoint %d out of range [0,%d)", w.ID, f.Nodes)
		}
		if _, dup := waypoints[w.ID]; dup {
			return nil, domain.InvalidArgument("waypoint %d declared twice", w.ID)
		}
		waypoints[w.ID] = orb.Point{w.Lon, w.Lat}
	}

	for i, e := range f.Edges {
		cost, err := edgeCost(e, waypoints)
		if err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
		if err := g.AddEdge(e.From, e.To, cost); err != nil {
			return nil, fmt.Errorf("edge %d: %w", i, err)
		}
	}

	rm := &Roadmap{Graph: g, Waypoints: waypoints}
	if len(waypoints) > 0 {
		rm.index = newSpatialIndex(waypoints)
	}
	return rm, nil
}

// Nearest returns the waypoint closest to (lon, lat).
func (r *Roadmap) Nearest(lon, lat float64) (int, error) {
	if r.index == nil {
		return -1, domain.InvalidArgument("roadmap has no waypoint coordinates")
	}
	id, ok := r.index.nearest(orb.Point{lon, lat})
	if !ok {
		return -1, domain.InvalidArgument("no waypoint near (%f, %f)", lon, lat)
	}
	return id, nil
}

// PathDistanceMeters sums the geodesic length of a node path. Nodes without
// coordinates contribute nothing.
func (r *Roadmap) PathDistanceMeters(nodes []int) float64 {
	var total float64
	for i := 0; i+1 < len(nodes); i++ {
		a, okA := r.Waypoints[nodes[i]]
		b, okB := r.Waypoints[nodes[i+1]]
		if okA && okB {
			total += geo.Distance(a, b)
		}
	}
	return total
}

func edgeCost(e EdgeSpec, waypoints map[int]orb.Point) (int64, error) {
	if e.Cost != nil {
		return *e.Cost, nil
	}
	a, okA := waypoints[e.From]
	b, okB := waypoints[e.To]
	if !okA || !okB {
		return 0, domain.InvalidArgument("edge %d-%d has no cost and its endpoints have no coordinates", e.From, e.To)
	}
	return int64(math.Ceil(geo.Distance(a, b))), nil
}
