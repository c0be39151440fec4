package storage

import "time"

// DetectionRecord is one per-frame observation of a tracked vehicle.
// SpeedKMH is nil until the estimator has accepted at least one sample
// for the track; an unknown speed is never stored as zero.
type DetectionRecord struct {
	SessionID  string
	TrackID    int64
	FrameIndex int64
	Timestamp  float64 // seconds since capture start
	X          float64
	Y          float64
	W          float64
	H          float64
	SpeedKMH   *float64
	Crossed    bool
}

// TrackSummary is the per-track rollup written when a track ends or the
// session closes.
type TrackSummary struct {
	SessionID      string
	TrackID        int64
	FirstFrame     int64
	LastFrame      int64
	FirstTimestamp float64
	LastTimestamp  float64
	AvgSpeedKMH    *float64
	MaxSpeedKMH    *float64
	SampleCount    int64
	Crossed        bool
}

// SessionSummary is the whole-session rollup.
type SessionSummary struct {
	SessionID     string
	Source        string // input file path or camera device
	StartedAt     time.Time
	EndedAt       *time.Time
	VehicleCount  int64
	RatePerMinute float64
	AvgSpeedKMH   float64
	MinSpeedKMH   float64
	MaxSpeedKMH   float64
	P50SpeedKMH   float64
	P85SpeedKMH   float64
	P95SpeedKMH   float64
}

// DistributionRow is one persisted speed histogram bucket.
type DistributionRow struct {
	SessionID string
	LowKMH    float64
	HighKMH   float64
	Count     int64
	Percent   float64
}
