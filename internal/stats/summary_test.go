package stats

import (
	"math"
	"testing"
)

func TestSummarise(t *testing.T) {
	s := Summarise([]float64{4, 1, math.NaN(), 3, 2, 10})
	if s.Count != 5 || s.Min != 1 || s.Max != 10 || s.Sum != 20 || s.Mean != 4 {
		t.Errorf("summary = %+v", s)
	}
	if s.Median != 3 {
		t.Errorf("median = %v, want 3", s.Median)
	}
	// 0.9 * 4 = 3.6 between 4 and 10
	if math.Abs(s.P90-7.6) > 1e-9 {
		t.Errorf("p90 = %v, want 7.6", s.P90)
	}

	if (Summarise(nil) != Summary{}) {
		t.Error("empty sample should give the zero summary")
	}
}

func TestQuantile(t *testing.T) {
	values := []float64{3, 1, 2}
	tests := []struct {
		q, want float64
	}{
		{0, 1}, {0.5, 2}, {1, 3}, {0.25, 1.5}, {-1, 1}, {2, 3},
	}
	for _, tt := range tests {
		if got := Quantile(values, tt.q); got != tt.want {
			t.Errorf("Quantile(%v) = %v, want %v", tt.q, got, tt.want)
		}
	}
	if values[0] != 3 {
		t.Error("input slice was reordered")
	}
	if Quantile(nil, 0.5) != 0 {
		t.Error("empty quantile should be 0")
	}
}
