package engine

import (
	"math"
	"testing"
)

func TestCheckAmountConsistency(t *testing.T) {
	tests := []struct {
		name             string
		amounts          []float64
		wantConsistent   bool
		wantScore        float64
		wantMedian       float64
		wantMaxDeviation float64
	}{
		{
			name:           "no occurrences",
			amounts:        nil,
			wantConsistent: false,
			wantScore:      0,
		},
		{
			name:           "single occurrence consistent by assumption",
			amounts:        []float64{9.99},
			wantConsistent: true,
			wantScore:      0.7,
			wantMedian:     9.99,
		},
		{
			name:             "flat amounts score 1",
			amounts:          []float64{15.99, 15.99, 15.99},
			wantConsistent:   true,
			wantScore:        1.0,
			wantMedian:       15.99,
			wantMaxDeviation: 0,
		},
		{
			name:             "small drift stays consistent",
			amounts:          []float64{100, 101, 100},
			wantConsistent:   true,
			wantScore:        1 - 0.01/(0.05*3),
			wantMedian:       100,
			wantMaxDeviation: 1,
		},
		{
			name:             "wildly varying amounts",
			amounts:          []float64{100, 300, 50},
			wantConsistent:   false,
			wantScore:        0,
			wantMedian:       100,
			wantMaxDeviation: 200,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckAmountConsistency(tt.amounts, 0.05, 2.0)
			if got.IsConsistent != tt.wantConsistent {
				t.Errorf("IsConsistent = %v, want %v", got.IsConsistent, tt.wantConsistent)
			}
			if math.Abs(got.Score-tt.wantScore) > 1e-9 {
				t.Errorf("Score = %f, want %f", got.Score, tt.wantScore)
			}
			if got.MedianAmount != tt.wantMedian {
				t.Errorf("MedianAmount = %f, want %f", got.MedianAmount, tt.wantMedian)
			}
			if got.MaxDeviation != tt.wantMaxDeviation {
				t.Errorf("MaxDeviation = %f, want %f", got.MaxDeviation, tt.wantMaxDeviation)
			}
		})
	}
}

func TestCheckAmountConsistencySecondChance(t *testing.T) {
	// median 100, tolerance = max(100*0.05*1.5, 2*1.5) = 7.5.
	// Deviation of 12 is outside the band but within 2x (15), so the group
	// still counts as consistent at the reduced score.
	got := CheckAmountConsistency([]float64{100, 112}, 0.05, 2.0)
	if !got.IsConsistent {
		t.Error("expected second-chance leniency to mark group consistent")
	}
	if got.Score != 0.3 {
		t.Errorf("Score = %f, want 0.3", got.Score)
	}
}

func TestCheckAmountConsistencyBeyondSecondChance(t *testing.T) {
	// Deviation of 20 exceeds 2x tolerance (15).
	got := CheckAmountConsistency([]float64{100, 120}, 0.05, 2.0)
	if got.IsConsistent {
		t.Error("expected group to be inconsistent")
	}
	if got.Score != 0 {
		t.Errorf("Score = %f, want 0", got.Score)
	}
}

func TestCheckAmountConsistencyZeroMedian(t *testing.T) {
	got := CheckAmountConsistency([]float64{0, 0, 5}, 0.05, 2.0)
	if got.VariancePercentage != 0 {
		t.Errorf("VariancePercentage = %f, want 0 for zero median", got.VariancePercentage)
	}
}

func TestCheckAmountConsistencyFixedFloor(t *testing.T) {
	// Small amounts: the fixed tolerance floor (2.0 * 1.5 = 3.0) dominates,
	// so a 2.50 deviation on a 5.00 median still passes.
	got := CheckAmountConsistency([]float64{5.00, 7.50}, 0.05, 2.0)
	if !got.IsConsistent {
		t.Error("expected fixed tolerance floor to absorb small deviations")
	}
	if got.Score < 0.4 {
		t.Errorf("Score = %f, want at least 0.4", got.Score)
	}
}
