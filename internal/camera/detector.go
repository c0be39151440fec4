package camera

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/banshee-data/speedcam/internal/monitoring"
)

// DetectorParams tunes the background-subtraction detector.
type DetectorParams struct {
	History       int     // MOG2 history length in frames
	VarThreshold  float64 // MOG2 squared Mahalanobis threshold
	DetectShadows bool
	MinArea       float64 // contours below this are ignored (px^2)
}

// Detector extracts vehicle bounding boxes from raw frames using MOG2
// background subtraction, morphological cleanup and contour extraction.
// It owns gocv resources and must be closed after use.
type Detector struct {
	params DetectorParams
	sub    gocv.BackgroundSubtractorMOG2
	kernel gocv.Mat
	mask   gocv.Mat
	clean  gocv.Mat
}

// NewDetector creates a Detector with the given parameters.
func NewDetector(params DetectorParams) *Detector {
	return &Detector{
		params: params,
		sub:    gocv.NewBackgroundSubtractorMOG2WithParams(params.History, params.VarThreshold, params.DetectShadows),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(5, 5)),
		mask:   gocv.NewMat(),
		clean:  gocv.NewMat(),
	}
}

// Detect runs background subtraction on the frame and returns the
// bounding boxes of foreground blobs at least MinArea large. Degenerate
// boxes are dropped here with a diagnostic so the tracker never sees
// them.
func (d *Detector) Detect(frame gocv.Mat, frameIndex int64, timestamp float64) []Detection {
	d.sub.Apply(frame, &d.mask)

	// Shadows are marked 127 by MOG2; the binary threshold removes them
	// along with any soft edges before morphology.
	gocv.Threshold(d.mask, &d.clean, 200, 255, gocv.ThresholdBinary)
	gocv.MorphologyEx(d.clean, &d.clean, gocv.MorphOpen, d.kernel)
	gocv.MorphologyEx(d.clean, &d.clean, gocv.MorphClose, d.kernel)

	contours := gocv.FindContours(d.clean, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var detections []Detection
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < d.params.MinArea {
			continue
		}
		rect := gocv.BoundingRect(contour)
		det := Detection{
			FrameIndex: frameIndex,
			Timestamp:  timestamp,
			X:          float64(rect.Min.X),
			Y:          float64(rect.Min.Y),
			W:          float64(rect.Dx()),
			H:          float64(rect.Dy()),
		}
		if err := det.Validate(); err != nil {
			monitoring.Logf("detector: dropping %v", err)
			continue
		}
		detections = append(detections, det)
	}
	return detections
}

// Close releases the gocv resources owned by the detector.
func (d *Detector) Close() error {
	if err := d.sub.Close(); err != nil {
		return err
	}
	if err := d.kernel.Close(); err != nil {
		return err
	}
	if err := d.mask.Close(); err != nil {
		return err
	}
	return d.clean.Close()
}
