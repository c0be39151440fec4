// Package report renders session results as CSV files and charts.
package report

import (
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/speedcam/internal/fsutil"
	"github.com/banshee-data/speedcam/internal/monitoring"
	"github.com/banshee-data/speedcam/internal/security"
	"github.com/banshee-data/speedcam/internal/storage"
)

// Exporter writes session artefacts into a single output directory.
// The filesystem is abstracted so tests run against memory.
type Exporter struct {
	fs  fsutil.FileSystem
	dir string
}

// NewExporter creates an Exporter writing into dir, creating it if
// needed.
func NewExporter(fs fsutil.FileSystem, dir string) (*Exporter, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}
	return &Exporter{fs: fs, dir: dir}, nil
}

// path builds a session-scoped output filename. The session ID passes
// through SanitizeFilename so arbitrary IDs cannot escape the export
// directory or produce hostile names.
func (e *Exporter) path(prefix, sessionID, ext string) string {
	name := fmt.Sprintf("%s_%s.%s", prefix, security.SanitizeFilename(sessionID), ext)
	return filepath.Join(e.dir, name)
}

func formatSpeed(v *float64) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

// WriteDetectionsCSV writes the per-frame detection log and returns the
// file path.
func (e *Exporter) WriteDetectionsCSV(sessionID string, records []storage.DetectionRecord) (string, error) {
	path := e.path("vehicle_data", sessionID, "csv")
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"track_id", "frame_index", "timestamp", "x", "y", "w", "h", "speed_kmh", "crossed"}
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.TrackID, 10),
			strconv.FormatInt(r.FrameIndex, 10),
			strconv.FormatFloat(r.Timestamp, 'f', 4, 64),
			strconv.FormatFloat(r.X, 'f', 1, 64),
			strconv.FormatFloat(r.Y, 'f', 1, 64),
			strconv.FormatFloat(r.W, 'f', 1, 64),
			strconv.FormatFloat(r.H, 'f', 1, 64),
			formatSpeed(r.SpeedKMH),
			strconv.FormatBool(r.Crossed),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	monitoring.Logf("report: wrote %d detections to %s", len(records), path)
	return path, nil
}

// WriteSummaryCSV writes the session rollup followed by one row per
// track and returns the file path.
func (e *Exporter) WriteSummaryCSV(session storage.SessionSummary, tracks []storage.TrackSummary) (string, error) {
	path := e.path("summary", session.SessionID, "csv")
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)

	sessionRows := [][]string{
		{"session_id", session.SessionID},
		{"source", session.Source},
		{"vehicle_count", strconv.FormatInt(session.VehicleCount, 10)},
		{"rate_per_minute", strconv.FormatFloat(session.RatePerMinute, 'f', 2, 64)},
		{"avg_speed_kmh", strconv.FormatFloat(session.AvgSpeedKMH, 'f', 2, 64)},
		{"min_speed_kmh", strconv.FormatFloat(session.MinSpeedKMH, 'f', 2, 64)},
		{"max_speed_kmh", strconv.FormatFloat(session.MaxSpeedKMH, 'f', 2, 64)},
		{"p50_speed_kmh", strconv.FormatFloat(session.P50SpeedKMH, 'f', 2, 64)},
		{"p85_speed_kmh", strconv.FormatFloat(session.P85SpeedKMH, 'f', 2, 64)},
		{"p95_speed_kmh", strconv.FormatFloat(session.P95SpeedKMH, 'f', 2, 64)},
		{},
		{"track_id", "first_frame", "last_frame", "avg_speed_kmh", "max_speed_kmh", "samples", "crossed"},
	}
	for _, row := range sessionRows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	for _, t := range tracks {
		row := []string{
			strconv.FormatInt(t.TrackID, 10),
			strconv.FormatInt(t.FirstFrame, 10),
			strconv.FormatInt(t.LastFrame, 10),
			formatSpeed(t.AvgSpeedKMH),
			formatSpeed(t.MaxSpeedKMH),
			strconv.FormatInt(t.SampleCount, 10),
			strconv.FormatBool(t.Crossed),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write track row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	return path, nil
}

// WriteDistributionCSV writes the speed histogram and returns the file
// path.
func (e *Exporter) WriteDistributionCSV(sessionID string, rows []storage.DistributionRow) (string, error) {
	path := e.path("speed_distribution", sessionID, "csv")
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"low_kmh", "high_kmh", "count", "percent"}); err != nil {
		return "", fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		row := []string{
			strconv.FormatFloat(r.LowKMH, 'f', 1, 64),
			strconv.FormatFloat(r.HighKMH, 'f', 1, 64),
			strconv.FormatInt(r.Count, 10),
			strconv.FormatFloat(r.Percent, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("failed to flush csv: %w", err)
	}

	return path, nil
}
