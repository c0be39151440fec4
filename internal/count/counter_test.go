package count

import (
	"math"
	"testing"
	"time"

	"github.com/banshee-data/speedcam/internal/timeutil"
	"github.com/banshee-data/speedcam/internal/track"
)

func TestCounterIdempotentPerTrack(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCounter(clock)

	ev := track.CrossingEvent{TrackID: 7, FrameIndex: 12, Timestamp: 0.4}

	if !c.OnCrossing(ev) {
		t.Error("first crossing for track 7 should count")
	}
	if c.OnCrossing(ev) {
		t.Error("second crossing for track 7 must not count")
	}
	if c.OnCrossing(ev) {
		t.Error("third crossing for track 7 must not count")
	}

	if got := c.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
}

func TestCounterDistinctTracks(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCounter(clock)

	for id := int64(0); id < 5; id++ {
		c.OnCrossing(track.CrossingEvent{TrackID: id})
	}
	if got := c.Count(); got != 5 {
		t.Errorf("Count() = %d, want 5", got)
	}
}

func TestCounterRate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCounter(clock)

	// Rate with no elapsed time must not divide by zero.
	if got := c.Rate(); got != 0 {
		t.Errorf("Rate() with no elapsed time = %f, want 0", got)
	}

	// 6 vehicles in 2 minutes: 3 per minute.
	for id := int64(0); id < 6; id++ {
		clock.Advance(20 * time.Second)
		c.OnCrossing(track.CrossingEvent{TrackID: id})
	}

	if got := c.Rate(); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("Rate() = %f, want 3.0", got)
	}
}

func TestCounterRateWindow(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCounter(clock)

	// Two early vehicles, then a quiet stretch, then three recent ones.
	c.OnCrossing(track.CrossingEvent{TrackID: 1})
	clock.Advance(10 * time.Second)
	c.OnCrossing(track.CrossingEvent{TrackID: 2})

	clock.Advance(5 * time.Minute)

	c.OnCrossing(track.CrossingEvent{TrackID: 3})
	clock.Advance(10 * time.Second)
	c.OnCrossing(track.CrossingEvent{TrackID: 4})
	clock.Advance(10 * time.Second)
	c.OnCrossing(track.CrossingEvent{TrackID: 5})

	// Only the last three fall inside a one-minute window.
	if got := c.RateWindow(time.Minute); math.Abs(got-3.0) > 1e-9 {
		t.Errorf("RateWindow(1m) = %f, want 3.0", got)
	}

	// Everything falls inside a ten-minute window: 5 per 10 minutes.
	if got := c.RateWindow(10 * time.Minute); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("RateWindow(10m) = %f, want 0.5", got)
	}

	if got := c.RateWindow(0); got != 0 {
		t.Errorf("RateWindow(0) = %f, want 0", got)
	}
}

func TestCounterDuplicateDoesNotAffectRate(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	c := NewCounter(clock)

	c.OnCrossing(track.CrossingEvent{TrackID: 1})
	c.OnCrossing(track.CrossingEvent{TrackID: 1})
	c.OnCrossing(track.CrossingEvent{TrackID: 1})

	if got := c.RateWindow(time.Minute); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("RateWindow(1m) = %f, want 1.0 (duplicates must not add events)", got)
	}
}
