package stats

import (
	"math"
	"sort"
)

// Summary describes the distribution of a sample
type Summary struct {
	Count  int     `json:"count"`
	Sum    float64 `json:"sum"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// Summarise computes a Summary. NaN values are skipped; an empty sample
// gives the zero Summary.
func Summarise(values []float64) Summary {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Summary{}
	}
	sort.Float64s(sorted)

	s := Summary{
		Count:  len(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Median: quantileSorted(sorted, 0.5),
		P90:    quantileSorted(sorted, 0.9),
	}
	for _, v := range sorted {
		s.Sum += v
	}
	s.Mean = s.Sum / float64(s.Count)
	return s
}

// Quantile calculates the q-th quantile (0 <= q <= 1) with linear
// interpolation between closest ranks
func Quantile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	// copy to leave the caller's slice unsorted
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return quantileSorted(sorted, q)
}

func quantileSorted(sorted []float64, q float64) float64 {
	q = math.Max(0, math.Min(1, q))

	index := q * float64(len(sorted)-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower == upper {
		return sorted[lower]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
