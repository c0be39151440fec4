package camera

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Source wraps a gocv video capture (file or live device) and tracks
// frame index and capture-relative timestamps derived from the stream
// frame rate.
type Source struct {
	cap       *gocv.VideoCapture
	fps       float64
	width     int
	height    int
	nextIndex int64
}

// OpenVideoFile opens a video file as a frame source.
func OpenVideoFile(path string) (*Source, error) {
	cap, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open video file %s: %w", path, err)
	}
	return newSource(cap)
}

// OpenCamera opens a live capture device as a frame source.
func OpenCamera(device int) (*Source, error) {
	cap, err := gocv.VideoCaptureDevice(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera device %d: %w", device, err)
	}
	return newSource(cap)
}

func newSource(cap *gocv.VideoCapture) (*Source, error) {
	fps := cap.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		// Live devices sometimes report 0; assume a common camera rate.
		fps = 30
	}
	return &Source{
		cap:    cap,
		fps:    fps,
		width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// FPS returns the stream frame rate.
func (s *Source) FPS() float64 { return s.fps }

// FrameSize returns the stream width and height in pixels.
func (s *Source) FrameSize() (int, int) { return s.width, s.height }

// Read reads the next frame into img. It returns the frame index and
// timestamp (seconds since the first frame) and false when the stream
// is exhausted or the frame is empty.
func (s *Source) Read(img *gocv.Mat) (int64, float64, bool) {
	if ok := s.cap.Read(img); !ok || img.Empty() {
		return 0, 0, false
	}
	index := s.nextIndex
	s.nextIndex++
	return index, float64(index) / s.fps, true
}

// Close releases the underlying capture device.
func (s *Source) Close() error {
	return s.cap.Close()
}
