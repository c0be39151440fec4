package storage

import (
	"database/sql"
	"fmt"
)

// CreateSession inserts the session row at capture start. Summary
// fields are filled in later by FinishSession.
func (db *DB) CreateSession(s SessionSummary) error {
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, source, started_at)
		VALUES (?, ?, ?)`,
		s.SessionID, s.Source, s.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.SessionID, err)
	}
	return nil
}

// FinishSession writes the final rollup onto the session row.
func (db *DB) FinishSession(s SessionSummary) error {
	res, err := db.Exec(`
		UPDATE sessions
		SET ended_at = ?, vehicle_count = ?, rate_per_minute = ?,
		    avg_speed_kmh = ?, min_speed_kmh = ?, max_speed_kmh = ?,
		    p50_speed_kmh = ?, p85_speed_kmh = ?, p95_speed_kmh = ?
		WHERE session_id = ?`,
		s.EndedAt, s.VehicleCount, s.RatePerMinute,
		s.AvgSpeedKMH, s.MinSpeedKMH, s.MaxSpeedKMH,
		s.P50SpeedKMH, s.P85SpeedKMH, s.P95SpeedKMH,
		s.SessionID)
	if err != nil {
		return fmt.Errorf("failed to finish session %s: %w", s.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", s.SessionID)
	}
	return nil
}

// GetSession returns the session row, or sql.ErrNoRows.
func (db *DB) GetSession(sessionID string) (SessionSummary, error) {
	var s SessionSummary
	err := db.QueryRow(`
		SELECT session_id, source, started_at, ended_at, vehicle_count,
		       rate_per_minute, avg_speed_kmh, min_speed_kmh, max_speed_kmh,
		       p50_speed_kmh, p85_speed_kmh, p95_speed_kmh
		FROM sessions WHERE session_id = ?`, sessionID).Scan(
		&s.SessionID, &s.Source, &s.StartedAt, &s.EndedAt, &s.VehicleCount,
		&s.RatePerMinute, &s.AvgSpeedKMH, &s.MinSpeedKMH, &s.MaxSpeedKMH,
		&s.P50SpeedKMH, &s.P85SpeedKMH, &s.P95SpeedKMH)
	if err != nil {
		return SessionSummary{}, err
	}
	return s, nil
}

// InsertDetections writes a batch of detection records in one
// transaction. An empty batch is a no-op.
func (db *DB) InsertDetections(records []DetectionRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO detections (session_id, track_id, frame_index, timestamp,
		                        x, y, w, h, speed_kmh, crossed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare detection insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.Exec(r.SessionID, r.TrackID, r.FrameIndex, r.Timestamp,
			r.X, r.Y, r.W, r.H, r.SpeedKMH, r.Crossed); err != nil {
			return fmt.Errorf("failed to insert detection for track %d: %w", r.TrackID, err)
		}
	}

	return tx.Commit()
}

// ListDetections returns a session's detection records ordered by frame
// then track ID.
func (db *DB) ListDetections(sessionID string) ([]DetectionRecord, error) {
	rows, err := db.Query(`
		SELECT session_id, track_id, frame_index, timestamp, x, y, w, h, speed_kmh, crossed
		FROM detections WHERE session_id = ?
		ORDER BY frame_index, track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query detections: %w", err)
	}
	defer rows.Close()

	var records []DetectionRecord
	for rows.Next() {
		var r DetectionRecord
		if err := rows.Scan(&r.SessionID, &r.TrackID, &r.FrameIndex, &r.Timestamp,
			&r.X, &r.Y, &r.W, &r.H, &r.SpeedKMH, &r.Crossed); err != nil {
			return nil, fmt.Errorf("failed to scan detection: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertTrackSummary writes or replaces the per-track rollup.
func (db *DB) UpsertTrackSummary(t TrackSummary) error {
	_, err := db.Exec(`
		INSERT INTO track_summaries (session_id, track_id, first_frame, last_frame,
		                             first_timestamp, last_timestamp,
		                             avg_speed_kmh, max_speed_kmh, sample_count, crossed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, track_id) DO UPDATE SET
			last_frame = excluded.last_frame,
			last_timestamp = excluded.last_timestamp,
			avg_speed_kmh = excluded.avg_speed_kmh,
			max_speed_kmh = excluded.max_speed_kmh,
			sample_count = excluded.sample_count,
			crossed = excluded.crossed`,
		t.SessionID, t.TrackID, t.FirstFrame, t.LastFrame,
		t.FirstTimestamp, t.LastTimestamp,
		t.AvgSpeedKMH, t.MaxSpeedKMH, t.SampleCount, t.Crossed)
	if err != nil {
		return fmt.Errorf("failed to upsert track summary %d: %w", t.TrackID, err)
	}
	return nil
}

// ListTrackSummaries returns a session's track summaries ordered by
// track ID.
func (db *DB) ListTrackSummaries(sessionID string) ([]TrackSummary, error) {
	rows, err := db.Query(`
		SELECT session_id, track_id, first_frame, last_frame,
		       first_timestamp, last_timestamp,
		       avg_speed_kmh, max_speed_kmh, sample_count, crossed
		FROM track_summaries WHERE session_id = ?
		ORDER BY track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query track summaries: %w", err)
	}
	defer rows.Close()

	var summaries []TrackSummary
	for rows.Next() {
		var t TrackSummary
		if err := rows.Scan(&t.SessionID, &t.TrackID, &t.FirstFrame, &t.LastFrame,
			&t.FirstTimestamp, &t.LastTimestamp,
			&t.AvgSpeedKMH, &t.MaxSpeedKMH, &t.SampleCount, &t.Crossed); err != nil {
			return nil, fmt.Errorf("failed to scan track summary: %w", err)
		}
		summaries = append(summaries, t)
	}
	return summaries, rows.Err()
}

// ReplaceDistribution replaces a session's speed histogram.
func (db *DB) ReplaceDistribution(sessionID string, rows []DistributionRow) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM speed_distribution WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear distribution: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.Exec(`
			INSERT INTO speed_distribution (session_id, low_kmh, high_kmh, count, percent)
			VALUES (?, ?, ?, ?, ?)`,
			sessionID, r.LowKMH, r.HighKMH, r.Count, r.Percent); err != nil {
			return fmt.Errorf("failed to insert distribution bucket: %w", err)
		}
	}

	return tx.Commit()
}

// ListDistribution returns a session's speed histogram ordered by
// bucket.
func (db *DB) ListDistribution(sessionID string) ([]DistributionRow, error) {
	rows, err := db.Query(`
		SELECT session_id, low_kmh, high_kmh, count, percent
		FROM speed_distribution WHERE session_id = ?
		ORDER BY low_kmh`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query distribution: %w", err)
	}
	defer rows.Close()

	var out []DistributionRow
	for rows.Next() {
		var r DistributionRow
		if err := rows.Scan(&r.SessionID, &r.LowKMH, &r.HighKMH, &r.Count, &r.Percent); err != nil {
			return nil, fmt.Errorf("failed to scan distribution bucket: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrackSpeedSamples returns all non-null stored speeds for a session,
// used for the final percentile rollup.
func (db *DB) TrackSpeedSamples(sessionID string) ([]float64, error) {
	rows, err := db.Query(`
		SELECT avg_speed_kmh FROM track_summaries
		WHERE session_id = ? AND avg_speed_kmh IS NOT NULL
		ORDER BY track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query speed samples: %w", err)
	}
	defer rows.Close()

	var samples []float64
	for rows.Next() {
		var v sql.NullFloat64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan speed sample: %w", err)
		}
		if v.Valid {
			samples = append(samples, v.Float64)
		}
	}
	return samples, rows.Err()
}
