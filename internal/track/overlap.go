package track

import "github.com/banshee-data/speedcam/internal/camera"

// RatioPolicy selects how box overlap is normalised into a match score.
type RatioPolicy int

const (
	// RatioIoU scores overlap as intersection over union. This is the
	// default: it is symmetric and penalises large size mismatches.
	RatioIoU RatioPolicy = iota

	// RatioMin scores overlap as intersection over the smaller box,
	// which is more forgiving when a vehicle is partially occluded.
	RatioMin
)

// ParseRatioPolicy maps a config string to a policy, defaulting to IoU.
func ParseRatioPolicy(s string) RatioPolicy {
	if s == "min" {
		return RatioMin
	}
	return RatioIoU
}

func (p RatioPolicy) String() string {
	if p == RatioMin {
		return "min"
	}
	return "iou"
}

// Score returns the overlap score for two boxes under the policy. The
// result is in [0,1]; degenerate boxes score 0.
func (p RatioPolicy) Score(a, b camera.Detection) float64 {
	inter := intersectionArea(a, b)
	if inter <= 0 {
		return 0
	}
	areaA, areaB := a.Area(), b.Area()
	var denom float64
	switch p {
	case RatioMin:
		denom = min(areaA, areaB)
	default:
		denom = areaA + areaB - inter
	}
	if denom <= 0 {
		return 0
	}
	return inter / denom
}

func intersectionArea(a, b camera.Detection) float64 {
	w := min(a.X+a.W, b.X+b.W) - max(a.X, b.X)
	h := min(a.Y+a.H, b.Y+b.H) - max(a.Y, b.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}
