package speed

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/speedcam/internal/track"
)

func TestComputeScale(t *testing.T) {
	// A 3.5 m lane spanning 350 px gives 0.01 m/px.
	scale, err := ComputeScale(350, 3.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(scale-0.01) > 1e-12 {
		t.Errorf("scale = %f, want 0.01", scale)
	}
}

func TestComputeScaleRejectsNonPositive(t *testing.T) {
	tests := []struct {
		name      string
		px, m     float64
	}{
		{"zero pixels", 0, 3.5},
		{"zero meters", 350, 0},
		{"negative pixels", -350, 3.5},
		{"negative meters", 350, -3.5},
		{"both zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeScale(tt.px, tt.m)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidCalibration) {
				t.Errorf("errors.Is(err, ErrInvalidCalibration) = false for %v", err)
			}
			var calErr *CalibrationError
			if !errors.As(err, &calErr) {
				t.Errorf("error type = %T, want *CalibrationError", err)
			}
		})
	}
}

func TestPixelsToMeters(t *testing.T) {
	if got := PixelsToMeters(100, 0.01); got != 1.0 {
		t.Errorf("PixelsToMeters(100, 0.01) = %f, want 1.0", got)
	}
	if got := PixelsToMeters(0, 0.01); got != 0 {
		t.Errorf("PixelsToMeters(0, 0.01) = %f, want 0", got)
	}
}

func TestEstimatorKnownSpeed(t *testing.T) {
	// 50 px in 0.1667 s at 0.01 m/px is 0.5 m / 0.1667 s ≈ 3.0 m/s.
	e := NewEstimator(0.01, 5)

	err := e.Observe(1,
		track.Point{X: 100, Y: 200, Timestamp: 1.0},
		track.Point{X: 150, Y: 200, Timestamp: 1.1667})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mps, ok := e.Speed(1)
	if !ok {
		t.Fatal("expected a speed, got none")
	}
	if math.Abs(mps-3.0) > 0.01 {
		t.Errorf("speed = %f m/s, want ~3.0", mps)
	}

	kmh, ok := e.SpeedKMH(1)
	if !ok {
		t.Fatal("expected a km/h speed, got none")
	}
	if math.Abs(kmh-10.8) > 0.05 {
		t.Errorf("speed = %f km/h, want ~10.8", kmh)
	}
}

func TestEstimatorDiagonalDistance(t *testing.T) {
	// 3-4-5 triangle: 30 px right, 40 px down is 50 px of travel.
	e := NewEstimator(0.01, 5)

	if err := e.Observe(1,
		track.Point{X: 0, Y: 0, Timestamp: 0},
		track.Point{X: 30, Y: 40, Timestamp: 1.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mps, ok := e.Speed(1)
	if !ok {
		t.Fatal("expected a speed")
	}
	if math.Abs(mps-0.5) > 1e-9 {
		t.Errorf("speed = %f m/s, want 0.5", mps)
	}
}

func TestEstimatorNoSamples(t *testing.T) {
	e := NewEstimator(0.01, 5)

	if _, ok := e.Speed(42); ok {
		t.Error("expected ok=false for track with no samples")
	}
	if _, ok := e.SpeedKMH(42); ok {
		t.Error("expected ok=false for track with no samples")
	}
}

func TestEstimatorRejectsNonMonotonic(t *testing.T) {
	e := NewEstimator(0.01, 5)

	// A valid sample first.
	if err := e.Observe(1,
		track.Point{X: 0, Y: 0, Timestamp: 1.0},
		track.Point{X: 10, Y: 0, Timestamp: 2.0}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := e.Speed(1)

	// Equal timestamps.
	err := e.Observe(1,
		track.Point{X: 10, Y: 0, Timestamp: 2.0},
		track.Point{X: 20, Y: 0, Timestamp: 2.0})
	if err == nil {
		t.Fatal("expected error for equal timestamps")
	}
	var nmErr *NonMonotonicTimestampError
	if !errors.As(err, &nmErr) {
		t.Errorf("error type = %T, want *NonMonotonicTimestampError", err)
	}

	// Reversed timestamps.
	err = e.Observe(1,
		track.Point{X: 10, Y: 0, Timestamp: 2.0},
		track.Point{X: 20, Y: 0, Timestamp: 1.5})
	if err == nil {
		t.Fatal("expected error for reversed timestamps")
	}

	// Prior samples must be unaffected.
	after, ok := e.Speed(1)
	if !ok || after != before {
		t.Errorf("rejected sample changed the window: before %f, after %f", before, after)
	}
}

func TestEstimatorWindowBounded(t *testing.T) {
	e := NewEstimator(1.0, 3)

	// Five samples at speeds 1..5 px/s; only the last three survive.
	for i := 0; i < 5; i++ {
		ts := float64(i)
		if err := e.Observe(1,
			track.Point{X: 0, Y: 0, Timestamp: ts},
			track.Point{X: float64(i + 1), Y: 0, Timestamp: ts + 1}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	mps, ok := e.Speed(1)
	if !ok {
		t.Fatal("expected a speed")
	}
	// mean of 3, 4, 5
	if math.Abs(mps-4.0) > 1e-9 {
		t.Errorf("windowed speed = %f, want 4.0", mps)
	}
	if got := len(e.Samples(1)); got != 3 {
		t.Errorf("window length = %d, want 3", got)
	}
}

func TestEstimatorForget(t *testing.T) {
	e := NewEstimator(0.01, 5)
	if err := e.Observe(7,
		track.Point{X: 0, Y: 0, Timestamp: 0},
		track.Point{X: 10, Y: 0, Timestamp: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e.Forget(7)
	if _, ok := e.Speed(7); ok {
		t.Error("expected no speed after Forget")
	}
}

func TestComputePercentiles(t *testing.T) {
	var samples []float64
	for i := 1; i <= 100; i++ {
		samples = append(samples, float64(i))
	}

	p := ComputePercentiles(samples)
	if p.P50 != 50 {
		t.Errorf("P50 = %f, want 50", p.P50)
	}
	if p.P85 != 85 {
		t.Errorf("P85 = %f, want 85", p.P85)
	}
	if p.P95 != 95 {
		t.Errorf("P95 = %f, want 95", p.P95)
	}
}

func TestComputePercentilesEmpty(t *testing.T) {
	p := ComputePercentiles(nil)
	if p.P50 != 0 || p.P85 != 0 || p.P95 != 0 {
		t.Errorf("empty percentiles = %+v, want zeros", p)
	}
}

func TestDistribution(t *testing.T) {
	samples := []float64{2, 7, 8, 12, 23}
	buckets := Distribution(samples, 5)

	if len(buckets) != 5 {
		t.Fatalf("bucket count = %d, want 5", len(buckets))
	}
	wantCounts := []int{1, 2, 1, 0, 1}
	for i, want := range wantCounts {
		if buckets[i].Count != want {
			t.Errorf("bucket %d count = %d, want %d", i, buckets[i].Count, want)
		}
	}
	if buckets[1].LowKMH != 5 || buckets[1].HighKMH != 10 {
		t.Errorf("bucket 1 range = [%f, %f), want [5, 10)", buckets[1].LowKMH, buckets[1].HighKMH)
	}
	if math.Abs(buckets[1].Percent-40) > 1e-9 {
		t.Errorf("bucket 1 percent = %f, want 40", buckets[1].Percent)
	}
}

func TestDistributionEmpty(t *testing.T) {
	if got := Distribution(nil, 5); got != nil {
		t.Errorf("expected nil buckets for no samples, got %v", got)
	}
	if got := Distribution([]float64{1, 2}, 0); got != nil {
		t.Errorf("expected nil buckets for zero bin width, got %v", got)
	}
}
