package nearest

import (
	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/storemap/internal/model"
)

const pointTolerance = 1e-9

// refPoint is one reference coordinate stored in the R-tree.
type refPoint struct {
	idx  int
	c    model.Coordinate
	rect rtreego.Rect
}

func (p *refPoint) Bounds() rtreego.Rect {
	return p.rect
}

// indexSearcher answers nearest queries from an R-tree over (lat, lon).
//
// The planar nearest neighbor in degree space is only a first guess; its
// geodesic distance d0 bounds the search to the latitude band that can hold
// anything closer, and every point in that band is measured exactly.
type indexSearcher struct {
	tree  *rtreego.Rtree
	brute bruteSearcher
}

func newIndexSearcher(b []model.Coordinate) *indexSearcher {
	objs := make([]rtreego.Spatial, len(b))
	for i, c := range b {
		objs[i] = &refPoint{idx: i, c: c, rect: rtreego.Point{c.Lat, c.Lon}.ToRect(pointTolerance)}
	}
	return &indexSearcher{
		tree:  rtreego.NewTree(2, 25, 50, objs...),
		brute: bruteSearcher(b),
	}
}

func (s *indexSearcher) nearest(q model.Coordinate) Match {
	guess, ok := s.tree.NearestNeighbor(rtreego.Point{q.Lat, q.Lon}).(*refPoint)
	if !ok {
		return s.brute.nearest(q)
	}
	best := Match{Index: guess.idx, Meters: Distance(q, guess.c)}

	half := latitudeBound(best.Meters)
	band, err := rtreego.NewRect(rtreego.Point{q.Lat - half, -181}, []float64{2 * half, 362})
	if err != nil {
		return s.brute.nearest(q)
	}

	for _, obj := range s.tree.SearchIntersect(band) {
		p := obj.(*refPoint)
		d := Distance(q, p.c)
		if d < best.Meters || d == best.Meters && p.idx < best.Index {
			best = Match{Index: p.idx, Meters: d}
		}
	}
	return best
}
