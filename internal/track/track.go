// Package track maintains persistent vehicle identities across frames.
//
// The tracker matches per-frame detections against live tracks by box
// overlap, ages out tracks that stop being seen, and reports detection
// line crossings exactly once per track.
package track

import (
	"github.com/banshee-data/speedcam/internal/camera"
)

// Point is one centre observation in a track's history.
type Point struct {
	X          float64
	Y          float64
	FrameIndex int64
	Timestamp  float64
}

// Track is a single vehicle identity. All state is owned and mutated by
// the Tracker; callers must treat tracks returned from Update as
// read-only snapshots valid until the next Update call.
type Track struct {
	ID          int64
	Box         camera.Detection // most recent matched box
	History     []Point          // bounded centre history, oldest first
	Disappeared int              // consecutive frames without a match
	Crossed     bool             // set once when the centre crosses the line
	FirstFrame  int64
	LastFrame   int64
}

// Center returns the centre of the track's most recent box.
func (t *Track) Center() (float64, float64) {
	return t.Box.Center()
}

// Last returns the most recent history point. It panics on an empty
// history, which cannot occur for a track created by the Tracker.
func (t *Track) Last() Point {
	return t.History[len(t.History)-1]
}

// CrossingEvent records a track centre passing the detection line.
// Each track produces at most one.
type CrossingEvent struct {
	TrackID    int64
	FrameIndex int64
	Timestamp  float64
}
