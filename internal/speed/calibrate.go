// Package speed converts pixel displacements into real-world speeds.
//
// Calibration maps a known reference span (for example a lane width)
// from pixels to meters; the estimator smooths per-track instantaneous
// speeds over a bounded window.
package speed

import (
	"errors"
	"fmt"
)

// ErrInvalidCalibration is the sentinel matched by errors.Is for any
// calibration failure.
var ErrInvalidCalibration = errors.New("invalid calibration")

// CalibrationError reports the offending reference spans. Construction
// fails fast on it: a pipeline must never start with a bad scale.
type CalibrationError struct {
	RefPixels float64
	RefMeters float64
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("invalid calibration: reference span %g px / %g m (both must be positive)",
		e.RefPixels, e.RefMeters)
}

func (e *CalibrationError) Unwrap() error { return ErrInvalidCalibration }

// ComputeScale derives the meters-per-pixel scale from a reference span
// measured both in pixels and in meters. Both inputs must be strictly
// positive.
func ComputeScale(refPixels, refMeters float64) (float64, error) {
	if refPixels <= 0 || refMeters <= 0 {
		return 0, &CalibrationError{RefPixels: refPixels, RefMeters: refMeters}
	}
	return refMeters / refPixels, nil
}

// PixelsToMeters converts a pixel distance to meters under the scale.
func PixelsToMeters(pixels, scale float64) float64 {
	return pixels * scale
}
