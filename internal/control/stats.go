package control

import (
	"expvar"
	"fmt"
	"math"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"tailscale.com/tsweb"

	"github.com/banshee-data/panel.sweep/internal/classify"
	"github.com/banshee-data/panel.sweep/internal/command"
	"github.com/banshee-data/panel.sweep/internal/httputil"
)

// Stats counts what the loop has done since start.
type Stats struct {
	IdleTicks      atomic.Int64
	RunningTicks   atomic.Int64
	Commands       atomic.Int64
	Frames         atomic.Int64
	FrameErrors    atomic.Int64
	TelemetryLines atomic.Int64
	MalformedLines atomic.Int64
	SendErrors     atomic.Int64
	TickErrors     atomic.Int64
	Panics         atomic.Int64

	mu         sync.Mutex
	lastRaw    float64
	lastFilter float64
	lastLabel  classify.Label
	clean      int64
	dirty      int64
}

func newStats() *Stats {
	return &Stats{lastRaw: math.NaN(), lastFilter: math.NaN()}
}

func (s *Stats) observe(raw, filtered float64, label classify.Label) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRaw, s.lastFilter, s.lastLabel = raw, filtered, label
	if label.IsDirty() {
		s.dirty++
	} else {
		s.clean++
	}
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	IdleTicks      int64   `json:"idle_ticks"`
	RunningTicks   int64   `json:"running_ticks"`
	Commands       int64   `json:"commands"`
	Frames         int64   `json:"frames"`
	FrameErrors    int64   `json:"frame_errors"`
	TelemetryLines int64   `json:"telemetry_lines"`
	MalformedLines int64   `json:"malformed_lines"`
	SendErrors     int64   `json:"send_errors"`
	TickErrors     int64   `json:"tick_errors"`
	Panics         int64   `json:"panics"`
	CleanLabels    int64   `json:"clean_labels"`
	DirtyLabels    int64   `json:"dirty_labels"`
	LastRawScore   float64 `json:"last_raw_score"`
	LastFiltered   float64 `json:"last_filtered_score"`
	LastLabel      string  `json:"last_label"`
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		IdleTicks:      s.IdleTicks.Load(),
		RunningTicks:   s.RunningTicks.Load(),
		Commands:       s.Commands.Load(),
		Frames:         s.Frames.Load(),
		FrameErrors:    s.FrameErrors.Load(),
		TelemetryLines: s.TelemetryLines.Load(),
		MalformedLines: s.MalformedLines.Load(),
		SendErrors:     s.SendErrors.Load(),
		TickErrors:     s.TickErrors.Load(),
		Panics:         s.Panics.Load(),
		CleanLabels:    s.clean,
		DirtyLabels:    s.dirty,
		LastRawScore:   s.lastRaw,
		LastFiltered:   s.lastFilter,
		LastLabel:      string(s.lastLabel),
	}
	// JSON has no NaN.
	if math.IsNaN(snap.LastRawScore) {
		snap.LastRawScore = 0
	}
	if math.IsNaN(snap.LastFiltered) {
		snap.LastFiltered = 0
	}
	return snap
}

// Summary is a one-line human readable form for logs.
func (s Snapshot) Summary() string {
	return humanize.Comma(s.Frames) + " frames, " +
		humanize.Comma(s.CleanLabels) + " clean, " +
		humanize.Comma(s.DirtyLabels) + " dirty, " +
		humanize.Comma(s.MalformedLines) + " malformed lines, " +
		humanize.Comma(s.TickErrors) + " failed ticks"
}

var publishOnce sync.Once

// Publish exposes the loop counters as the "sweeper" expvar, which tsweb
// serves under /debug/varz. Only the first loop published is visible.
func (l *Loop) Publish() {
	publishOnce.Do(func() {
		expvar.Publish("sweeper", expvar.Func(func() any { return l.stats.Snapshot() }))
	})
}

// AttachAdminRoutes mounts /debug/sweeper, a JSON view of the counters, and
// /debug/sweeper-command, which publishes a command token as the dashboard
// would.
func (l *Loop) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.Handle("sweeper-command", "Publish a command (POST token=start_clean|stop_clean|status)", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		token := r.FormValue("token")
		if _, ok := command.Parse(token); !ok {
			httputil.BadRequest(w, fmt.Sprintf("unknown command %q", token))
			return
		}
		if err := l.device.SendCommand(r.Context(), token); err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"published": token})
	}))
	debug.Handle("sweeper", "Control loop counters and last score", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, struct {
			Mode  string   `json:"mode"`
			Stats Snapshot `json:"stats"`
		}{l.Mode().String(), l.stats.Snapshot()})
	}))
}
