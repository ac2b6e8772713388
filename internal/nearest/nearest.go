package nearest

import (
	"context"
	"math"
	"runtime"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/storemap/internal/model"
)

// Strategy selects how candidates in B are searched.
type Strategy int

const (
	// Brute compares every point of A with every point of B.
	Brute Strategy = iota
	// Indexed prunes B with an R-tree and a latitude lower bound. Results
	// are identical to Brute.
	Indexed
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Brute:
		return "brute"
	case Indexed:
		return "indexed"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "brute", "":
		return Brute, nil
	case "indexed", "rtree":
		return Indexed, nil
	default:
		return 0, eris.Errorf("unknown strategy: %q (valid: brute, indexed)", s)
	}
}

// Options tunes MinDistances.
type Options struct {
	Strategy Strategy
	Workers  int // default: GOMAXPROCS
}

// Match is the nearest point of B for one point of A.
type Match struct {
	Index  int     `json:"index"`
	Meters float64 `json:"meters"`
}

// searcher finds the nearest reference point for one query point.
type searcher interface {
	nearest(q model.Coordinate) Match
}

// MinDistances returns, for every point of a, the geodesic distance in
// meters to the closest point of b, in the order of a.
func MinDistances(ctx context.Context, a, b []model.Coordinate, opts Options) ([]float64, error) {
	matches, err := NearestMatches(ctx, a, b, opts)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(matches))
	for i, m := range matches {
		out[i] = m.Meters
	}
	return out, nil
}

// NearestMatches is like MinDistances but also reports which point of b was
// closest. Ties resolve to the lowest index of b.
func NearestMatches(ctx context.Context, a, b []model.Coordinate, opts Options) ([]Match, error) {
	if len(b) == 0 {
		return nil, &EmptyReferenceSetError{QueryPoints: len(a)}
	}
	if err := checkCoordinates("b", b); err != nil {
		return nil, err
	}
	if err := checkCoordinates("a", a); err != nil {
		return nil, err
	}
	out := make([]Match, len(a))
	if len(a) == 0 {
		return out, nil
	}

	var s searcher
	switch opts.Strategy {
	case Brute:
		s = bruteSearcher(b)
	case Indexed:
		s = newIndexSearcher(b)
	default:
		return nil, eris.Errorf("nearest: unknown strategy %d", opts.Strategy)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(a) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for lo := 0; lo < len(a); lo += chunk {
		hi := min(lo+chunk, len(a))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "nearest: cancelled")
				}
				out[i] = s.nearest(a[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func checkCoordinates(set string, cs []model.Coordinate) error {
	for i, c := range cs {
		if !c.Valid() {
			return eris.Errorf("nearest: %s[%d] = (%v, %v) is not a valid coordinate", set, i, c.Lat, c.Lon)
		}
	}
	return nil
}

type bruteSearcher []model.Coordinate

func (b bruteSearcher) nearest(q model.Coordinate) Match {
	best := Match{Index: -1, Meters: math.Inf(1)}
	for j, p := range b {
		if d := Distance(q, p); d < best.Meters {
			best = Match{Index: j, Meters: d}
		}
	}
	return best
}
