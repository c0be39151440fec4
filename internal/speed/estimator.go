package speed

import (
	"fmt"
	"math"

	"github.com/banshee-data/speedcam/internal/track"
	"github.com/banshee-data/speedcam/internal/units"
)

// NonMonotonicTimestampError reports a sample whose timestamps do not
// advance. The sample is discarded; earlier samples stay valid.
type NonMonotonicTimestampError struct {
	TrackID int64
	Prev    float64
	Last    float64
}

func (e *NonMonotonicTimestampError) Error() string {
	return fmt.Sprintf("non-monotonic timestamps for track %d: %g -> %g", e.TrackID, e.Prev, e.Last)
}

// Estimator smooths per-track speeds over a bounded window of
// instantaneous samples. A track with no accepted samples has no speed;
// callers must check the ok result rather than treat zero as unknown.
type Estimator struct {
	scale   float64 // meters per pixel
	window  int
	samples map[int64][]float64 // m/s, newest last
}

// NewEstimator creates an Estimator with the given calibration scale
// and smoothing window. A window below 1 is raised to 1.
func NewEstimator(scale float64, window int) *Estimator {
	if window < 1 {
		window = 1
	}
	return &Estimator{
		scale:   scale,
		window:  window,
		samples: make(map[int64][]float64),
	}
}

// Observe adds one instantaneous speed sample for a track from two
// consecutive centre observations. Samples with non-advancing
// timestamps are rejected with a NonMonotonicTimestampError and leave
// the window untouched.
func (e *Estimator) Observe(trackID int64, prev, last track.Point) error {
	elapsed := last.Timestamp - prev.Timestamp
	if elapsed <= 0 {
		return &NonMonotonicTimestampError{TrackID: trackID, Prev: prev.Timestamp, Last: last.Timestamp}
	}

	distPx := math.Hypot(last.X-prev.X, last.Y-prev.Y)
	mps := PixelsToMeters(distPx, e.scale) / elapsed

	window := append(e.samples[trackID], mps)
	if len(window) > e.window {
		window = window[len(window)-e.window:]
	}
	e.samples[trackID] = window
	return nil
}

// Speed returns the smoothed speed in m/s for a track, or ok=false when
// the track has no accepted samples.
func (e *Estimator) Speed(trackID int64) (float64, bool) {
	window := e.samples[trackID]
	if len(window) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range window {
		sum += s
	}
	return sum / float64(len(window)), true
}

// SpeedKMH returns the smoothed speed in km/h.
func (e *Estimator) SpeedKMH(trackID int64) (float64, bool) {
	mps, ok := e.Speed(trackID)
	if !ok {
		return 0, false
	}
	return units.ConvertSpeed(mps, units.KPH), true
}

// Forget drops a track's sample window. Called when the tracker removes
// the track.
func (e *Estimator) Forget(trackID int64) {
	delete(e.samples, trackID)
}

// Samples returns a copy of the track's current sample window in m/s.
func (e *Estimator) Samples(trackID int64) []float64 {
	window := e.samples[trackID]
	out := make([]float64, len(window))
	copy(out, window)
	return out
}
