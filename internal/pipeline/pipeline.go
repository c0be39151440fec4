// Package pipeline wires the tracker, speed estimator and counter into
// a single frame-synchronous processing loop.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/speedcam/internal/camera"
	"github.com/banshee-data/speedcam/internal/count"
	"github.com/banshee-data/speedcam/internal/monitoring"
	"github.com/banshee-data/speedcam/internal/speed"
	"github.com/banshee-data/speedcam/internal/storage"
	"github.com/banshee-data/speedcam/internal/timeutil"
	"github.com/banshee-data/speedcam/internal/track"
)

// Config holds everything the pipeline needs at construction. The
// calibration reference is resolved to a scale immediately; a bad
// reference fails construction rather than producing garbage speeds.
type Config struct {
	SessionID string

	// Calibration reference span.
	RefPixels float64
	RefMeters float64

	// Tracker parameters.
	MatchThreshold float64
	MaxDisappeared int
	LineY          float64
	Ratio          track.RatioPolicy

	// Speed smoothing window length.
	SmoothingWindow int

	// Clock drives counter rates; nil means the real clock.
	Clock timeutil.Clock
}

// OutOfOrderFrameError reports a frame index that does not advance.
type OutOfOrderFrameError struct {
	LastIndex int64
	GotIndex  int64
}

func (e *OutOfOrderFrameError) Error() string {
	return fmt.Sprintf("frame index %d does not advance past %d", e.GotIndex, e.LastIndex)
}

// FrameResult is what one processed frame yields.
type FrameResult struct {
	// Tracks are the live tracks after this frame, ordered by ID.
	Tracks []*track.Track

	// Crossings are the line crossings this frame produced.
	Crossings []track.CrossingEvent

	// Count is the unique vehicle count after this frame.
	Count int64

	// SpeedsKMH maps live track IDs to their smoothed speed. Tracks
	// with no accepted samples are absent.
	SpeedsKMH map[int64]float64
}

// Pipeline is the frame-synchronous core: detections in, tracked and
// counted state out. ProcessFrame must be called with strictly
// increasing frame indices from a single goroutine; the accessor
// methods are safe to call concurrently.
type Pipeline struct {
	cfg       Config
	tracker   *track.Tracker
	estimator *speed.Estimator
	counter   *count.Counter

	mu        sync.Mutex
	lastIndex int64
	pending   []storage.DetectionRecord
	summaries map[int64]*storage.TrackSummary
}

// New builds a Pipeline. It fails fast with a calibration error
// (matchable via errors.Is with speed.ErrInvalidCalibration) when the
// reference span is not positive.
func New(cfg Config) (*Pipeline, error) {
	scale, err := speed.ComputeScale(cfg.RefPixels, cfg.RefMeters)
	if err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	return &Pipeline{
		cfg: cfg,
		tracker: track.NewTracker(track.Params{
			MatchThreshold: cfg.MatchThreshold,
			MaxDisappeared: cfg.MaxDisappeared,
			LineY:          cfg.LineY,
			Ratio:          cfg.Ratio,
			HistorySize:    cfg.SmoothingWindow + 2,
		}),
		estimator: speed.NewEstimator(scale, cfg.SmoothingWindow),
		counter:   count.NewCounter(cfg.Clock),
		lastIndex: -1,
		summaries: make(map[int64]*storage.TrackSummary),
	}, nil
}

// ProcessFrame advances the pipeline by one frame. Frames must arrive
// in order; a non-advancing index is rejected before any state changes.
func (p *Pipeline) ProcessFrame(frame camera.Frame) (FrameResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frame.Index <= p.lastIndex {
		return FrameResult{}, &OutOfOrderFrameError{LastIndex: p.lastIndex, GotIndex: frame.Index}
	}
	p.lastIndex = frame.Index

	res := p.tracker.Update(frame.Detections, frame.Index, frame.Timestamp)

	// Feed the estimator from tracks matched this frame.
	for _, t := range res.Tracks {
		if t.LastFrame != frame.Index || len(t.History) < 2 {
			continue
		}
		prev := t.History[len(t.History)-2]
		last := t.History[len(t.History)-1]
		if err := p.estimator.Observe(t.ID, prev, last); err != nil {
			var nmErr *speed.NonMonotonicTimestampError
			if errors.As(err, &nmErr) {
				monitoring.Logf("pipeline: discarding speed sample: %v", nmErr)
			} else {
				monitoring.Logf("pipeline: speed observation failed: %v", err)
			}
		}
	}

	// Removed tracks keep their summary but release their speed window.
	for _, id := range res.Removed {
		p.estimator.Forget(id)
	}

	for _, ev := range res.Crossings {
		p.counter.OnCrossing(ev)
	}

	speeds := make(map[int64]float64)
	for _, t := range res.Tracks {
		if kmh, ok := p.estimator.SpeedKMH(t.ID); ok {
			speeds[t.ID] = kmh
		}
	}

	p.accumulate(frame, res, speeds)

	return FrameResult{
		Tracks:    res.Tracks,
		Crossings: res.Crossings,
		Count:     p.counter.Count(),
		SpeedsKMH: speeds,
	}, nil
}

// accumulate buffers storage records and maintains per-track summaries.
// Caller holds p.mu.
func (p *Pipeline) accumulate(frame camera.Frame, res track.Result, speeds map[int64]float64) {
	for _, t := range res.Tracks {
		if t.LastFrame != frame.Index {
			continue
		}

		rec := storage.DetectionRecord{
			SessionID:  p.cfg.SessionID,
			TrackID:    t.ID,
			FrameIndex: frame.Index,
			Timestamp:  frame.Timestamp,
			X:          t.Box.X,
			Y:          t.Box.Y,
			W:          t.Box.W,
			H:          t.Box.H,
			Crossed:    t.Crossed,
		}
		if kmh, ok := speeds[t.ID]; ok {
			v := kmh
			rec.SpeedKMH = &v
		}
		p.pending = append(p.pending, rec)

		s := p.summaries[t.ID]
		if s == nil {
			s = &storage.TrackSummary{
				SessionID:      p.cfg.SessionID,
				TrackID:        t.ID,
				FirstFrame:     t.FirstFrame,
				FirstTimestamp: frame.Timestamp,
			}
			p.summaries[t.ID] = s
		}
		s.LastFrame = frame.Index
		s.LastTimestamp = frame.Timestamp
		s.Crossed = t.Crossed
		if kmh, ok := speeds[t.ID]; ok {
			v := kmh
			s.AvgSpeedKMH = &v
			s.SampleCount++
			if s.MaxSpeedKMH == nil || kmh > *s.MaxSpeedKMH {
				m := kmh
				s.MaxSpeedKMH = &m
			}
		}
	}
}

// DrainRecords returns the buffered detection records and clears the
// buffer. The periodic save loop and the final flush both use it.
func (p *Pipeline) DrainRecords() []storage.DetectionRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	records := p.pending
	p.pending = nil
	return records
}

// TrackSummaries returns the current per-track rollups ordered by
// track ID, including tracks that have already been removed.
func (p *Pipeline) TrackSummaries() []storage.TrackSummary {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int64, 0, len(p.summaries))
	for id := range p.summaries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]storage.TrackSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, *p.summaries[id])
	}
	return out
}

// SpeedSamplesKMH returns one smoothed speed per track that produced
// any, for distribution and percentile rollups.
func (p *Pipeline) SpeedSamplesKMH() []float64 {
	summaries := p.TrackSummaries()
	var samples []float64
	for _, s := range summaries {
		if s.AvgSpeedKMH != nil {
			samples = append(samples, *s.AvgSpeedKMH)
		}
	}
	return samples
}

// TrackSnapshot is a read-only copy of one live track for the API.
type TrackSnapshot struct {
	ID          int64    `json:"id"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	W           float64  `json:"w"`
	H           float64  `json:"h"`
	SpeedKMH    *float64 `json:"speed,omitempty"`
	Crossed     bool     `json:"crossed"`
	Disappeared int      `json:"disappeared"`
	FirstFrame  int64    `json:"first_frame"`
	LastFrame   int64    `json:"last_frame"`
}

// LiveTracks returns snapshots of the current tracks ordered by ID.
func (p *Pipeline) LiveTracks() []TrackSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []TrackSnapshot
	for _, t := range p.tracker.Snapshot() {
		snap := TrackSnapshot{
			ID:          t.ID,
			X:           t.Box.X,
			Y:           t.Box.Y,
			W:           t.Box.W,
			H:           t.Box.H,
			Crossed:     t.Crossed,
			Disappeared: t.Disappeared,
			FirstFrame:  t.FirstFrame,
			LastFrame:   t.LastFrame,
		}
		if kmh, ok := p.estimator.SpeedKMH(t.ID); ok {
			v := kmh
			snap.SpeedKMH = &v
		}
		out = append(out, snap)
	}
	return out
}

// Counter exposes the unique count and rates to the API layer.
func (p *Pipeline) Counter() *count.Counter {
	return p.counter
}

// SessionID returns the session identifier records are tagged with.
func (p *Pipeline) SessionID() string {
	return p.cfg.SessionID
}
