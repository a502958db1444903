package geo

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestHaversineMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tol                    float64
	}{
		{"same point", 40.0, -74.0, 40.0, -74.0, 0, 0.001},
		{"one degree latitude", 40.0, -74.0, 41.0, -74.0, 111195, 500},
		{"teleport scenario", 40.0000, -74.0000, 41.0000, -74.0000, 111195, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if !almostEqual(got, tt.want, tt.tol) {
				t.Errorf("HaversineMeters(%v,%v,%v,%v) = %v, want ~%v", tt.lat1, tt.lon1, tt.lat2, tt.lon2, got, tt.want)
			}
		})
	}
}

func TestMPSToKnots(t *testing.T) {
	got := MPSToKnots(1.0)
	if !almostEqual(got, 1.9438444924406, 1e-9) {
		t.Errorf("MPSToKnots(1.0) = %v, want 1.9438444924406", got)
	}
}

func TestHeadingDeltaDeg(t *testing.T) {
	tests := []struct {
		name   string
		h1, h2 float64
		want   float64
	}{
		{"no change", 90, 90, 0},
		{"small delta", 0, 45, 45},
		{"wraps forward", 350, 10, 20},
		{"wraps backward", 10, 350, 20},
		{"opposite", 0, 180, 180},
		{"full circle noise", 359, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeadingDeltaDeg(tt.h1, tt.h2)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("HeadingDeltaDeg(%v,%v) = %v, want %v", tt.h1, tt.h2, got, tt.want)
			}
		})
	}
}

func TestImpliedSpeedKnots(t *testing.T) {
	sp, ok := ImpliedSpeedKnots(111195, 60)
	if !ok {
		t.Fatal("expected ok=true for positive dt")
	}
	if !almostEqual(sp, 3601, 10) {
		t.Errorf("ImpliedSpeedKnots = %v, want ~3601", sp)
	}

	if _, ok := ImpliedSpeedKnots(1000, 0); ok {
		t.Error("expected ok=false for dt=0")
	}
	if _, ok := ImpliedSpeedKnots(1000, -5); ok {
		t.Error("expected ok=false for negative dt")
	}
}
