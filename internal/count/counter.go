// Package count turns line-crossing events into a unique vehicle count
// and flow rates.
package count

import (
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/speedcam/internal/timeutil"
	"github.com/banshee-data/speedcam/internal/track"
)

// Counter accumulates crossings edge-triggered by the tracker. Each
// track ID is counted at most once no matter how often its event is
// delivered. Counter is safe for concurrent use; the HTTP API reads it
// while the pipeline writes.
type Counter struct {
	mu      sync.Mutex
	clock   timeutil.Clock
	started time.Time
	counted map[int64]bool
	events  []time.Time // wall-clock arrival of each counted crossing
}

// NewCounter creates a Counter using the given clock for rate
// computation.
func NewCounter(clock timeutil.Clock) *Counter {
	return &Counter{
		clock:   clock,
		started: clock.Now(),
		counted: make(map[int64]bool),
	}
}

// OnCrossing registers a crossing event. Returns true if the event
// incremented the count, false if the track was already counted.
func (c *Counter) OnCrossing(ev track.CrossingEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counted[ev.TrackID] {
		return false
	}
	c.counted[ev.TrackID] = true
	c.events = append(c.events, c.clock.Now())
	return true
}

// Count returns the number of unique vehicles counted so far.
func (c *Counter) Count() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.counted))
}

// Rate returns the average vehicles per minute since the counter was
// created. Zero when no time has elapsed.
func (c *Counter) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.clock.Since(c.started).Minutes()
	if elapsed <= 0 {
		return 0
	}
	return float64(len(c.counted)) / elapsed
}

// RateWindow returns vehicles per minute over the trailing window,
// computed from the recorded event times.
func (c *Counter) RateWindow(window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.clock.Now().Add(-window)
	// Events are appended in time order; find the first one inside the
	// window.
	first := sort.Search(len(c.events), func(i int) bool {
		return !c.events[i].Before(cutoff)
	})
	recent := len(c.events) - first
	return float64(recent) / window.Minutes()
}
