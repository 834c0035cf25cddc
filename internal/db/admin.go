package db

import (
	"compress/gzip"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"tailscale.com/tsweb"

	"github.com/banshee-data/panel.sweep/internal/httputil"
	"github.com/banshee-data/panel.sweep/internal/security"
)

// AttachAdminRoutes mounts the SQL console, a backup download, the score
// history as JSON and a PNG chart of it under /debug/.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Panel score journal",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the journal now", http.HandlerFunc(db.handleBackup))
	debug.Handle("scores", "Recent scores as JSON (?run=, ?limit=)", http.HandlerFunc(db.handleScores))
	debug.Handle("scores.png", "Chart of recent raw and filtered scores (?run=, ?limit=)", http.HandlerFunc(db.handleScoreChart))
	return nil
}

func (db *DB) handleBackup(w http.ResponseWriter, r *http.Request) {
	base := strings.TrimSuffix(filepath.Base(db.path), filepath.Ext(db.path))
	name := fmt.Sprintf("%s-backup-%d.db", security.SanitizeFilename(base), time.Now().Unix())
	backupPath := filepath.Join(os.TempDir(), name)
	if _, err := db.ExecContext(r.Context(), "VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.Remove(backupPath); err != nil {
			log.Printf("Failed to remove backup file: %v", err)
		}
	}()

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gz := gzip.NewWriter(w)
	defer gz.Close()
	if _, err := io.Copy(gz, backupFile); err != nil {
		log.Printf("Failed to stream backup: %v", err)
	}
}

func queryScores(db *DB, r *http.Request) ([]Score, error) {
	limit := 500
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid limit %q", v)
		}
		limit = n
	}
	return db.RecentScores(r.Context(), r.URL.Query().Get("run"), limit)
}

func (db *DB) handleScores(w http.ResponseWriter, r *http.Request) {
	scores, err := queryScores(db, r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if scores == nil {
		scores = []Score{}
	}
	httputil.WriteJSONOK(w, scores)
}

func (db *DB) handleScoreChart(w http.ResponseWriter, r *http.Request) {
	scores, err := queryScores(db, r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wt, err := ScoreChart(scores)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to render chart: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	wt.WriteTo(w)
}

// ScoreChart plots raw scores as points and the filtered score as a line
// against elapsed run time.
func ScoreChart(scores []Score) (io.WriterTo, error) {
	p := plot.New()
	p.Title.Text = "Panel soiling score"
	p.X.Label.Text = "elapsed (s)"
	p.Y.Label.Text = "score"

	if len(scores) > 0 {
		raw := make(plotter.XYs, 0, len(scores))
		filtered := make(plotter.XYs, 0, len(scores))
		for _, s := range scores {
			raw = append(raw, plotter.XY{X: s.ElapsedSeconds, Y: s.RawScore})
			filtered = append(filtered, plotter.XY{X: s.ElapsedSeconds, Y: s.FilteredScore})
		}

		rawPts, err := plotter.NewScatter(raw)
		if err != nil {
			return nil, err
		}
		rawPts.GlyphStyle.Color = color.RGBA{R: 160, G: 160, B: 160, A: 255}
		rawPts.GlyphStyle.Radius = vg.Points(1.5)

		line, err := plotter.NewLine(filtered)
		if err != nil {
			return nil, err
		}
		line.Color = color.RGBA{R: 20, G: 90, B: 200, A: 255}
		line.Width = vg.Points(1)

		p.Add(rawPts, line)
		p.Legend.Add("raw", rawPts)
		p.Legend.Add("filtered", line)
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	return p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
}
