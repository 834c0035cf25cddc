package db

import (
	"context"
	"fmt"
	"time"
)

// Score is one journalled frame.
type Score struct {
	RunID          string    `json:"run_id"`
	DeviceID       string    `json:"device_id"`
	Timestamp      time.Time `json:"timestamp"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	RawScore       float64   `json:"raw_score"`
	FilteredScore  float64   `json:"filtered_score"`
	Label          string    `json:"label"`
	Video          string    `json:"video,omitempty"`
	FrameIndex     int       `json:"frame_index"`
}

func (db *DB) RecordScore(ctx context.Context, s Score) error {
	_, err := db.ExecContext(ctx, `INSERT INTO panel_scores (
			run_id, device_id, ts_unix_nanos, elapsed_seconds,
			raw_score, filtered_score, label, video, frame_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.DeviceID, s.Timestamp.UnixNano(), s.ElapsedSeconds,
		s.RawScore, s.FilteredScore, s.Label, s.Video, s.FrameIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to record score: %w", err)
	}
	return nil
}

// RecentScores returns up to limit scores, oldest first. An empty runID
// matches every run.
func (db *DB) RecentScores(ctx context.Context, runID string, limit int) ([]Score, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, device_id, ts_unix_nanos, elapsed_seconds,
			raw_score, filtered_score, label, COALESCE(video, ''), COALESCE(frame_index, 0)
		FROM (
			SELECT * FROM panel_scores
			WHERE ? = '' OR run_id = ?
			ORDER BY ts_unix_nanos DESC, score_id DESC
			LIMIT ?
		) ORDER BY ts_unix_nanos ASC, score_id ASC`, runID, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []Score
	for rows.Next() {
		var s Score
		var ts int64
		if err := rows.Scan(&s.RunID, &s.DeviceID, &ts, &s.ElapsedSeconds,
			&s.RawScore, &s.FilteredScore, &s.Label, &s.Video, &s.FrameIndex); err != nil {
			return nil, err
		}
		s.Timestamp = time.Unix(0, ts).UTC()
		scores = append(scores, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return scores, nil
}

// LabelCounts returns how many frames of a run got each label.
func (db *DB) LabelCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM panel_scores WHERE run_id = ? GROUP BY label`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
