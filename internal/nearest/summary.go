package nearest

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Summary describes a list of distances in meters.
type Summary struct {
	Count  int     `json:"count" yaml:"count"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Median float64 `json:"median" yaml:"median"`
}

// Summarize computes min, max, mean and median. The median of an even-length
// list is the mean of the two middle values.
func Summarize(distances []float64) (Summary, error) {
	if len(distances) == 0 {
		return Summary{}, eris.New("nearest: no distances to summarize")
	}

	sorted := slices.Clone(distances)
	slices.Sort(sorted)

	var sum float64
	for _, d := range sorted {
		sum += d
	}

	n := len(sorted)
	median := sorted[n/2]
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	}

	return Summary{
		Count:  n,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Mean:   sum / float64(n),
		Median: median,
	}, nil
}
