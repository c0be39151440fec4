package camera

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Annotation is one labelled box to draw on an output frame.
type Annotation struct {
	Rect    image.Rectangle
	Label   string // e.g. "id 12 34.5 km/h"
	Crossed bool   // crossed tracks get the alternate colour
}

var (
	boxColor     = color.RGBA{0, 255, 0, 0}   // green
	crossedColor = color.RGBA{0, 165, 255, 0} // orange (BGR)
	lineColor    = color.RGBA{0, 0, 255, 0}   // red
	textColor    = color.RGBA{255, 255, 255, 0}
)

// Annotator draws tracking results onto frames and optionally writes
// them to an output video.
type Annotator struct {
	lineY  int
	writer *gocv.VideoWriter
}

// NewAnnotator creates an annotator for frames of the given size. If
// outputPath is non-empty an MJPG video writer is opened for it.
func NewAnnotator(outputPath string, fps float64, width, height, lineY int) (*Annotator, error) {
	a := &Annotator{lineY: lineY}
	if outputPath != "" {
		writer, err := gocv.VideoWriterFile(outputPath, "MJPG", fps, width, height, true)
		if err != nil {
			return nil, fmt.Errorf("failed to open output video %s: %w", outputPath, err)
		}
		a.writer = writer
	}
	return a, nil
}

// Draw renders the detection line, track boxes and the running count
// onto img, then writes the frame to the output video if one is open.
func (a *Annotator) Draw(img *gocv.Mat, annotations []Annotation, count int64) error {
	gocv.Line(img, image.Pt(0, a.lineY), image.Pt(img.Cols(), a.lineY), lineColor, 2)

	for _, ann := range annotations {
		c := boxColor
		if ann.Crossed {
			c = crossedColor
		}
		gocv.Rectangle(img, ann.Rect, c, 2)
		if ann.Label != "" {
			org := image.Pt(ann.Rect.Min.X, ann.Rect.Min.Y-5)
			gocv.PutText(img, ann.Label, org, gocv.FontHersheySimplex, 0.5, textColor, 1)
		}
	}

	countText := fmt.Sprintf("count: %d", count)
	gocv.PutText(img, countText, image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, textColor, 2)

	if a.writer != nil {
		if err := a.writer.Write(*img); err != nil {
			return fmt.Errorf("failed to write annotated frame: %w", err)
		}
	}
	return nil
}

// Close releases the output video writer if one is open.
func (a *Annotator) Close() error {
	if a.writer != nil {
		return a.writer.Close()
	}
	return nil
}
