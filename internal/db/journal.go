package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run describes one process lifetime.
type Run struct {
	ID             string
	DeviceID       string
	Started        time.Time
	Version        string
	ReferenceImage string
}

// Journal records scores for a single run.
type Journal struct {
	db  *DB
	run Run
}

// StartRun registers a new run. An empty run.ID gets a fresh UUID.
func (db *DB) StartRun(ctx context.Context, run Run) (*Journal, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Started.IsZero() {
		run.Started = time.Now()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, device_id, started_unix, version, reference_image) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.DeviceID, run.Started.Unix(), run.Version, run.ReferenceImage)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}
	return &Journal{db: db, run: run}, nil
}

func (j *Journal) RunID() string { return j.run.ID }

// Record journals one scored frame taken at ts.
func (j *Journal) Record(ctx context.Context, ts time.Time, raw, filtered float64, label, video string, frameIndex int) error {
	return j.db.RecordScore(ctx, Score{
		RunID:          j.run.ID,
		DeviceID:       j.run.DeviceID,
		Timestamp:      ts,
		ElapsedSeconds: ts.Sub(j.run.Started).Seconds(),
		RawScore:       raw,
		FilteredScore:  filtered,
		Label:          label,
		Video:          video,
		FrameIndex:     frameIndex,
	})
}

// Runs lists known runs, newest first.
func (db *DB) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT run_id, device_id, started_unix, COALESCE(version, ''), COALESCE(reference_image, '')
		FROM runs ORDER BY started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started int64
		if err := rows.Scan(&r.ID, &r.DeviceID, &started, &r.Version, &r.ReferenceImage); err != nil {
			return nil, err
		}
		r.Started = time.Unix(started, 0).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
