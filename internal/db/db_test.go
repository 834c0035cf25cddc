package db

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/panel.sweep/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmbeddedMigrations(t *testing.T) {
	migrations, err := getMigrationsFS()
	require.NoError(t, err)
	ups, err := fs.Glob(migrations, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrations, "*.down.sql")
	require.NoError(t, err)
	assert.Len(t, downs, len(ups), "every up migration needs a down")

	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, uint(len(ups)), latest)
}

func TestPragmasApplied(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)

	var busyTimeout int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	assert.Equal(t, 5000, busyTimeout)
}

func TestMigrateUpDown(t *testing.T) {
	db := newTestDB(t)
	migrations, err := getMigrationsFS()
	require.NoError(t, err)
	latest, err := LatestMigrationVersion(migrations)
	require.NoError(t, err)

	v, dirty, err := db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, v)
	assert.False(t, dirty)

	require.NoError(t, db.MigrateUp(migrations), "re-running up is a no-op")

	require.NoError(t, db.MigrateDown(migrations))
	v, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest-1, v)

	require.NoError(t, db.MigrateUp(migrations))
	v, _, err = db.MigrateVersion(migrations)
	require.NoError(t, err)
	assert.Equal(t, latest, v)
}

func TestJournal_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	j, err := db.StartRun(ctx, Run{DeviceID: "7", Started: start, Version: "test"})
	require.NoError(t, err)
	assert.Len(t, j.RunID(), 36, "uuid run id")

	for i := 0; i < 5; i++ {
		ts := start.Add(time.Duration(i) * 100 * time.Millisecond)
		label := "Clean"
		if i%2 == 1 {
			label = "G"
		}
		require.NoError(t, j.Record(ctx, ts, 0.5+float64(i)/10, 0.6, label, "a.mp4", i))
	}

	other, err := db.StartRun(ctx, Run{DeviceID: "7", Started: start.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, other.Record(ctx, start.Add(time.Hour), 0.1, 0.1, "G", "", 0))

	got, err := db.RecentScores(ctx, j.RunID(), 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{got[0].FrameIndex, got[1].FrameIndex, got[2].FrameIndex}, "latest three, oldest first")
	want := Score{
		RunID:          j.RunID(),
		DeviceID:       "7",
		Timestamp:      start.Add(400 * time.Millisecond),
		ElapsedSeconds: 0.4,
		RawScore:       0.9,
		FilteredScore:  0.6,
		Label:          "Clean",
		Video:          "a.mp4",
		FrameIndex:     4,
	}
	if diff := cmp.Diff(want, got[2]); diff != "" {
		t.Errorf("score mismatch (-want +got):\n%s", diff)
	}

	all, err := db.RecentScores(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 6)

	counts, err := db.LabelCounts(ctx, j.RunID())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Clean": 3, "G": 2}, counts)

	runs, err := db.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, other.RunID(), runs[0].ID)
}

func TestScoreChart(t *testing.T) {
	scores := []Score{
		{ElapsedSeconds: 0, RawScore: 0.9, FilteredScore: 0.8},
		{ElapsedSeconds: 0.1, RawScore: 1.1, FilteredScore: 0.85},
		{ElapsedSeconds: 0.2, RawScore: 0.7, FilteredScore: 0.84},
	}
	for _, in := range [][]Score{scores, nil} {
		wt, err := ScoreChart(in)
		require.NoError(t, err)
		var buf bytes.Buffer
		_, err = wt.WriteTo(&buf)
		require.NoError(t, err)
		_, err = png.Decode(&buf)
		require.NoError(t, err)
	}
}

func TestAdminRoutes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	j, err := db.StartRun(ctx, Run{DeviceID: "1"})
	require.NoError(t, err)
	require.NoError(t, j.Record(ctx, time.Now(), 1.1, 1.0, "Clean", "", 0))

	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	rec := testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/scores?run="+j.RunID(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var scores []Score
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scores))
	require.Len(t, scores, 1)
	assert.Equal(t, "Clean", scores[0].Label)

	rec = testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/scores?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/scores.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = testutil.Serve(mux, testutil.DebugRequest(http.MethodGet, "/debug/backup", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	disposition := rec.Header().Get("Content-Disposition")
	assert.Contains(t, disposition, "filename=journal-backup-")
	assert.True(t, strings.HasSuffix(disposition, ".db.gz"))
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli.db")
	var out bytes.Buffer

	require.NoError(t, RunMigrateCommand(&out, []string{"status"}, path))
	assert.Contains(t, out.String(), "Current version: 0")

	out.Reset()
	require.NoError(t, RunMigrateCommand(&out, []string{"up"}, path))
	assert.Contains(t, out.String(), "Current version: 2")

	assert.Error(t, RunMigrateCommand(&out, []string{"sideways"}, path))
	assert.Error(t, RunMigrateCommand(&out, nil, path))
	assert.Error(t, RunMigrateCommand(&out, []string{"force"}, path))
}
