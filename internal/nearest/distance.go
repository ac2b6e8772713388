// Package nearest computes nearest-neighbor geodesic distances between two
// sets of coordinates on the WGS-84 ellipsoid.
package nearest

import (
	"fmt"
	"math"

	"github.com/tidwall/geodesic"

	"github.com/sells-group/storemap/internal/model"
)

// minMeridionalRadius is a(1-e²) for WGS-84, the smallest meridional radius
// of curvature (at the equator). A geodesic between two latitudes is never
// shorter than minMeridionalRadius times their difference in radians.
const minMeridionalRadius = 6378137.0 * (1 - 0.00669437999014)

// EmptyReferenceSetError is returned when the reference set B is empty and
// no minimum distance exists.
type EmptyReferenceSetError struct {
	QueryPoints int
}

func (e *EmptyReferenceSetError) Error() string {
	return fmt.Sprintf("nearest: reference set is empty (%d query points)", e.QueryPoints)
}

// Distance returns the WGS-84 geodesic distance between a and b in meters.
func Distance(a, b model.Coordinate) float64 {
	var s12 float64
	geodesic.WGS84.Inverse(a.Lat, a.Lon, b.Lat, b.Lon, &s12, nil, nil)
	return math.Abs(s12)
}

// latitudeBound returns the latitude half-width, in degrees, outside of
// which no point can be closer than meters.
func latitudeBound(meters float64) float64 {
	rad := meters / minMeridionalRadius
	return rad*180/math.Pi*(1+1e-9) + 1e-12
}
