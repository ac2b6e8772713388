package nearest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/storemap/internal/model"
)

var (
	berlin  = model.Coordinate{Lat: 52.5200, Lon: 13.4050}
	munich  = model.Coordinate{Lat: 48.1351, Lon: 11.5820}
	hamburg = model.Coordinate{Lat: 53.5511, Lon: 9.9937}
	cologne = model.Coordinate{Lat: 50.9375, Lon: 6.9603}
)

// randomGermany returns n pseudo-random coordinates inside Germany's bounding box.
func randomGermany(seed uint64, n int) []model.Coordinate {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]model.Coordinate, n)
	for i := range out {
		out[i] = model.Coordinate{
			Lat: 47.3 + r.Float64()*(55.0-47.3),
			Lon: 5.9 + r.Float64()*(15.0-5.9),
		}
	}
	return out
}

func TestDistance_BerlinMunich(t *testing.T) {
	t.Parallel()

	d := Distance(berlin, munich)
	assert.InEpsilon(t, 504_000, d, 0.01)
	assert.Equal(t, d, Distance(munich, berlin))
}

func TestDistance_Reference(t *testing.T) {
	t.Parallel()

	// Karney's published WGS-84 test: JFK to LHR is 5,551,759.4 m.
	jfk := model.Coordinate{Lat: 40.6, Lon: -73.8}
	lhr := model.Coordinate{Lat: 51.6, Lon: -0.5}
	assert.InDelta(t, 5551759.4, Distance(jfk, lhr), 1.0)

	// One degree of latitude at the equator is 110,574 m on the ellipsoid.
	assert.InDelta(t, 110574.4, Distance(model.Coordinate{}, model.Coordinate{Lat: 1}), 1.0)
}

func TestDistance_Coincident(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, Distance(hamburg, hamburg))
}

func TestMinDistances_Basic(t *testing.T) {
	t.Parallel()

	for _, strategy := range []Strategy{Brute, Indexed} {
		t.Run(strategy.String(), func(t *testing.T) {
			t.Parallel()
			got, err := MinDistances(context.Background(),
				[]model.Coordinate{berlin, cologne},
				[]model.Coordinate{munich, hamburg, cologne},
				Options{Strategy: strategy},
			)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, Distance(berlin, hamburg), got[0])
			assert.Equal(t, 0.0, got[1])
		})
	}
}

func TestMinDistances_EmptyReference(t *testing.T) {
	t.Parallel()

	got, err := MinDistances(context.Background(), []model.Coordinate{berlin}, nil, Options{})
	require.Error(t, err)
	assert.Nil(t, got)

	var empty *EmptyReferenceSetError
	require.True(t, errors.As(err, &empty))
	assert.Equal(t, 1, empty.QueryPoints)
}

func TestMinDistances_EmptyQuery(t *testing.T) {
	t.Parallel()

	got, err := MinDistances(context.Background(), nil, []model.Coordinate{berlin}, Options{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestMinDistances_InvalidCoordinate(t *testing.T) {
	t.Parallel()

	_, err := MinDistances(context.Background(),
		[]model.Coordinate{{Lat: math.NaN(), Lon: 1}},
		[]model.Coordinate{berlin},
		Options{},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a[0]")
}

func TestMinDistances_Monotonicity(t *testing.T) {
	t.Parallel()

	a := randomGermany(1, 40)
	b := randomGermany(2, 60)

	got, err := MinDistances(context.Background(), a, b, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, got, len(a))

	for i, q := range a {
		assert.GreaterOrEqual(t, got[i], 0.0)
		for _, p := range b {
			assert.LessOrEqual(t, got[i], Distance(q, p))
		}
	}
}

func TestMinDistances_IndexedMatchesBrute(t *testing.T) {
	t.Parallel()

	a := randomGermany(3, 300)
	b := randomGermany(4, 500)
	// Include coincident and far-away reference points.
	b = append(b, a[7], model.Coordinate{Lat: -45, Lon: 170}, model.Coordinate{Lat: 89.9, Lon: -179.9})

	brute, err := NearestMatches(context.Background(), a, b, Options{Strategy: Brute})
	require.NoError(t, err)
	indexed, err := NearestMatches(context.Background(), a, b, Options{Strategy: Indexed, Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, brute, indexed)
	assert.Equal(t, 0.0, indexed[7].Meters)
}

func TestMinDistances_IndexedAcrossAntimeridian(t *testing.T) {
	t.Parallel()

	a := []model.Coordinate{{Lat: 10, Lon: 179.9}}
	b := []model.Coordinate{{Lat: 10, Lon: 170}, {Lat: 10, Lon: -179.9}}

	brute, err := NearestMatches(context.Background(), a, b, Options{Strategy: Brute})
	require.NoError(t, err)
	indexed, err := NearestMatches(context.Background(), a, b, Options{Strategy: Indexed})
	require.NoError(t, err)

	assert.Equal(t, 1, brute[0].Index)
	assert.Equal(t, brute, indexed)
}

func TestMinDistances_OrderPreserved(t *testing.T) {
	t.Parallel()

	a := []model.Coordinate{munich, berlin, munich}
	got, err := MinDistances(context.Background(), a, []model.Coordinate{berlin}, Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, []float64{Distance(munich, berlin), 0, Distance(munich, berlin)}, got)
}

func TestMinDistances_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MinDistances(ctx, randomGermany(5, 10), randomGermany(6, 10), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNearestMatches_TieResolvesToLowestIndex(t *testing.T) {
	t.Parallel()

	b := []model.Coordinate{munich, berlin, berlin}
	for _, s := range []Strategy{Brute, Indexed} {
		got, err := NearestMatches(context.Background(), []model.Coordinate{berlin}, b, Options{Strategy: s})
		require.NoError(t, err)
		assert.Equal(t, Match{Index: 1, Meters: 0}, got[0], s.String())
	}
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("indexed")
	require.NoError(t, err)
	assert.Equal(t, Indexed, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Brute, s)

	_, err = ParseStrategy("kdtree")
	require.Error(t, err)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	s, err := Summarize([]float64{400, 100, 300, 200})
	require.NoError(t, err)
	assert.Equal(t, Summary{Count: 4, Min: 100, Max: 400, Mean: 250, Median: 250}, s)

	s, err = Summarize([]float64{5, 1, 9})
	require.NoError(t, err)
	assert.Equal(t, 5.0, s.Median)

	_, err = Summarize(nil)
	require.Error(t, err)
}

func TestPairsGeoJSON(t *testing.T) {
	t.Parallel()

	a := []model.Coordinate{berlin}
	b := []model.Coordinate{munich, hamburg}
	matches, err := NearestMatches(context.Background(), a, b, Options{})
	require.NoError(t, err)

	data, err := PairsGeoJSON(a, b, matches)
	require.NoError(t, err)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	assert.Equal(t, [][]float64{{berlin.Lon, berlin.Lat}, {hamburg.Lon, hamburg.Lat}}, fc.Features[0].Geometry.Coordinates)
	assert.InDelta(t, matches[0].Meters, fc.Features[0].Properties["meters"], 1e-6)

	_, err = PairsGeoJSON(a, b, nil)
	require.Error(t, err)
}
