package roadmap

import (
	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// pointTolerance is the side length of the degenerate box stored for a waypoint.
const pointTolerance = 1e-9

// waypointEntry wraps a waypoint for R-tree storage.
type waypointEntry struct {
	id   int
	bbox rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (w *waypointEntry) Bounds() rtreego.Rect {
	return w.bbox
}

// spatialIndex answers nearest-waypoint queries.
type spatialIndex struct {
	tree *rtreego.Rtree
}

func newSpatialIndex(waypoints map[int]orb.Point) *spatialIndex {
	tree := rtreego.NewTree(2, 25, 50) // 2D, min 25, max 50 entries per node

	for id, p := range waypoints {
		bbox, err := pointRect(p)
		if err != nil {
			continue
		}
		tree.Insert(&waypointEntry{id: id, bbox: bbox})
	}
	return &spatialIndex{tree: tree}
}

func (s *spatialIndex) nearest(p orb.Point) (int, bool) {
	hit := s.tree.NearestNeighbor(rtreego.Point{p[0], p[1]})
	if hit == nil {
		return -1, false
	}
	return hit.(*waypointEntry).id, true
}

func pointRect(p orb.Point) (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{p[0], p[1]},
		[]float64{pointTolerance, pointTolerance},
	)
}
