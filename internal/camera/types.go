// Package camera provides frame acquisition and vehicle detection.
//
// The detector converts raw video frames into axis-aligned bounding
// boxes via background subtraction; downstream packages only ever see
// the Detection and Frame types, never gocv handles.
package camera

import (
	"fmt"
	"math"
)

// Detection is a single vehicle bounding box observed in one frame.
// Coordinates are pixels with the origin at the top-left of the frame;
// Y grows downward.
type Detection struct {
	FrameIndex int64   `json:"frame_index"`
	Timestamp  float64 `json:"timestamp"` // seconds since capture start
	X          float64 `json:"x"`         // left edge
	Y          float64 `json:"y"`         // top edge
	W          float64 `json:"w"`
	H          float64 `json:"h"`
}

// Center returns the geometric center of the bounding box.
func (d Detection) Center() (float64, float64) {
	return d.X + d.W/2, d.Y + d.H/2
}

// Area returns the box area in square pixels.
func (d Detection) Area() float64 {
	return d.W * d.H
}

// Validate reports a DegenerateDetectionError for boxes with
// non-positive width or height or non-finite coordinates.
func (d Detection) Validate() error {
	if d.W <= 0 || d.H <= 0 {
		return &DegenerateDetectionError{Detection: d}
	}
	for _, v := range []float64{d.X, d.Y, d.W, d.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &DegenerateDetectionError{Detection: d}
		}
	}
	return nil
}

// DegenerateDetectionError marks a bounding box that cannot take part in
// matching. Callers drop the detection and continue; the error is never
// fatal to the frame loop.
type DegenerateDetectionError struct {
	Detection Detection
}

func (e *DegenerateDetectionError) Error() string {
	return fmt.Sprintf("degenerate detection at frame %d: %gx%g box at (%g,%g)",
		e.Detection.FrameIndex, e.Detection.W, e.Detection.H, e.Detection.X, e.Detection.Y)
}

// Frame is the per-frame unit of work handed to the pipeline: a strictly
// increasing index, a capture timestamp, and the detections found in it.
type Frame struct {
	Index      int64
	Timestamp  float64 // seconds since capture start
	Detections []Detection
}
