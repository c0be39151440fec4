package track

import (
	"sort"

	"github.com/banshee-data/speedcam/internal/camera"
	"github.com/banshee-data/speedcam/internal/monitoring"
)

// Params configures a Tracker.
type Params struct {
	// MatchThreshold is the minimum overlap score for a detection to be
	// associated with an existing track. Scores equal to the threshold
	// do not match.
	MatchThreshold float64

	// MaxDisappeared is how many consecutive unmatched frames a track
	// survives. Removal happens when the counter exceeds this value.
	MaxDisappeared int

	// LineY is the detection line height in pixels.
	LineY float64

	// Ratio selects the overlap normalisation used for match scores.
	Ratio RatioPolicy

	// HistorySize bounds each track's centre history.
	HistorySize int
}

// Result is the outcome of one Update call.
type Result struct {
	// Tracks are the live tracks after the update, ordered by ID.
	Tracks []*Track

	// Crossings are the line crossings detected this frame.
	Crossings []CrossingEvent

	// Removed lists the IDs of tracks aged out this frame.
	Removed []int64
}

// Tracker associates per-frame detections with persistent track
// identities using greedy best-overlap matching. It is not safe for
// concurrent use; the pipeline calls Update from a single goroutine.
type Tracker struct {
	params Params
	tracks map[int64]*Track
	nextID int64
}

// NewTracker creates a Tracker. A HistorySize below 2 is raised to 2 so
// crossing detection always has two points to compare.
func NewTracker(params Params) *Tracker {
	if params.HistorySize < 2 {
		params.HistorySize = 2
	}
	return &Tracker{
		params: params,
		tracks: make(map[int64]*Track),
	}
}

// candidate is a scored (track, detection) pair considered for greedy
// assignment.
type candidate struct {
	score    float64
	trackID  int64
	detX     float64
	detIndex int
}

// Update advances the tracker by one frame. Matched tracks absorb their
// detection, unmatched tracks age, aged-out tracks are removed, and
// leftover detections become new tracks. The same input always produces
// the same output: ties in overlap score break to the lower track ID,
// then to the leftmost detection.
func (tr *Tracker) Update(detections []camera.Detection, frameIndex int64, timestamp float64) Result {
	// Degenerate boxes are filtered by the detector, but synthetic
	// inputs can still carry them; drop with a diagnostic.
	valid := detections[:0:0]
	for _, det := range detections {
		if err := det.Validate(); err != nil {
			monitoring.Logf("tracker: dropping %v", err)
			continue
		}
		valid = append(valid, det)
	}

	trackIDs := tr.sortedIDs()

	// Score every (track, detection) pair above the threshold.
	var candidates []candidate
	for _, id := range trackIDs {
		t := tr.tracks[id]
		for i, det := range valid {
			score := tr.params.Ratio.Score(t.Box, det)
			if score > tr.params.MatchThreshold {
				candidates = append(candidates, candidate{score: score, trackID: id, detX: det.X, detIndex: i})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.trackID != b.trackID {
			return a.trackID < b.trackID
		}
		if a.detX != b.detX {
			return a.detX < b.detX
		}
		return a.detIndex < b.detIndex
	})

	matchedTracks := make(map[int64]bool)
	matchedDets := make(map[int]bool)
	var updated []*Track
	for _, c := range candidates {
		if matchedTracks[c.trackID] || matchedDets[c.detIndex] {
			continue
		}
		matchedTracks[c.trackID] = true
		matchedDets[c.detIndex] = true

		t := tr.tracks[c.trackID]
		det := valid[c.detIndex]
		t.Box = det
		t.Disappeared = 0
		t.LastFrame = frameIndex
		cx, cy := det.Center()
		t.History = append(t.History, Point{X: cx, Y: cy, FrameIndex: frameIndex, Timestamp: timestamp})
		if len(t.History) > tr.params.HistorySize {
			t.History = t.History[len(t.History)-tr.params.HistorySize:]
		}
		updated = append(updated, t)
	}

	// Age unmatched tracks; remove the ones past the limit.
	var removed []int64
	for _, id := range trackIDs {
		if matchedTracks[id] {
			continue
		}
		t := tr.tracks[id]
		t.Disappeared++
		if t.Disappeared > tr.params.MaxDisappeared {
			delete(tr.tracks, id)
			removed = append(removed, id)
			monitoring.Logf("tracker: removed track %d after %d unseen frames", id, t.Disappeared)
		}
	}

	// Leftover detections start new tracks.
	for i, det := range valid {
		if matchedDets[i] {
			continue
		}
		cx, cy := det.Center()
		t := &Track{
			ID:         tr.nextID,
			Box:        det,
			History:    []Point{{X: cx, Y: cy, FrameIndex: frameIndex, Timestamp: timestamp}},
			FirstFrame: frameIndex,
			LastFrame:  frameIndex,
		}
		tr.nextID++
		tr.tracks[t.ID] = t
	}

	crossings := tr.detectCrossings(updated)

	return Result{
		Tracks:    tr.Snapshot(),
		Crossings: crossings,
		Removed:   removed,
	}
}

// detectCrossings checks tracks updated this frame for a sign change of
// the centre's distance to the line between the last two history
// points. Landing exactly on the line counts as a crossing; starting on
// it does not. The crossed flag makes each track report at most once.
func (tr *Tracker) detectCrossings(updated []*Track) []CrossingEvent {
	var events []CrossingEvent
	for _, t := range updated {
		if t.Crossed || len(t.History) < 2 {
			continue
		}
		prev := t.History[len(t.History)-2]
		last := t.History[len(t.History)-1]
		d1 := prev.Y - tr.params.LineY
		d2 := last.Y - tr.params.LineY
		if (d1 < 0 && d2 >= 0) || (d1 > 0 && d2 <= 0) {
			t.Crossed = true
			events = append(events, CrossingEvent{
				TrackID:    t.ID,
				FrameIndex: last.FrameIndex,
				Timestamp:  last.Timestamp,
			})
		}
	}
	return events
}

// Len returns the number of live tracks.
func (tr *Tracker) Len() int {
	return len(tr.tracks)
}

// Get returns the live track with the given ID, or nil.
func (tr *Tracker) Get(id int64) *Track {
	return tr.tracks[id]
}

func (tr *Tracker) sortedIDs() []int64 {
	ids := make([]int64, 0, len(tr.tracks))
	for id := range tr.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns the live tracks ordered by ID.
func (tr *Tracker) Snapshot() []*Track {
	ids := tr.sortedIDs()
	out := make([]*Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, tr.tracks[id])
	}
	return out
}
