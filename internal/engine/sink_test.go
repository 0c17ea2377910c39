package engine

import (
	"math"
	"testing"
)

func TestPercentToExponent(t *testing.T) {
	tests := []struct {
		percent float64
		want    float64
	}{
		{-10, minVolumeDB},
		{0, minVolumeDB},
		{100, 0},
		{150, 0},
		{50, (1 - math.Pow(0.5, volumeCurveExponent)) * minVolumeDB},
	}
	for _, tt := range tests {
		if got := percentToExponent(tt.percent); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("percentToExponent(%v) = %v, want %v", tt.percent, got, tt.want)
		}
	}
}

func TestPercentToExponentMonotonic(t *testing.T) {
	prev := percentToExponent(0)
	for p := 1.0; p <= 100; p++ {
		got := percentToExponent(p)
		if got < prev {
			t.Fatalf("percentToExponent(%v) = %v dropped below %v", p, got, prev)
		}
		prev = got
	}
}
