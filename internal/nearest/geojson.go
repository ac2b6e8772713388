package nearest

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/storemap/internal/model"
)

// PairsGeoJSON renders each query point and its nearest reference point as a
// LineString feature with the distance in the "meters" property.
func PairsGeoJSON(a, b []model.Coordinate, matches []Match) ([]byte, error) {
	if len(matches) != len(a) {
		return nil, eris.Errorf("nearest: %d matches for %d query points", len(matches), len(a))
	}

	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(matches))}
	for i, m := range matches {
		if m.Index < 0 || m.Index >= len(b) {
			return nil, eris.Errorf("nearest: match %d points at reference %d of %d", i, m.Index, len(b))
		}
		q, r := a[i], b[m.Index]
		line := geom.NewLineStringFlat(geom.XY, []float64{q.Lon, q.Lat, r.Lon, r.Lat})
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry: line,
			Properties: map[string]any{
				"query":     i,
				"reference": m.Index,
				"meters":    m.Meters,
			},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return nil, eris.Wrap(err, "nearest: encode geojson")
	}
	return data, nil
}
