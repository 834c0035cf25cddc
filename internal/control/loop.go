// Package control runs the robot's soiling-detection loop: it applies
// operator commands, folds board telemetry into shared state and, while
// cleaning is enabled, scores frames and drives the board with the result.
package control

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sort"
	"sync/atomic"
	"time"

	"github.com/banshee-data/panel.sweep/internal/classify"
	"github.com/banshee-data/panel.sweep/internal/frames"
	"github.com/banshee-data/panel.sweep/internal/kalman"
	"github.com/banshee-data/panel.sweep/internal/schedule"
	"github.com/banshee-data/panel.sweep/internal/seriallink"
	"github.com/banshee-data/panel.sweep/internal/spectral"
	"github.com/banshee-data/panel.sweep/internal/state"
	"github.com/banshee-data/panel.sweep/internal/timeutil"
)

const (
	DefaultIdleInterval = 100 * time.Millisecond

	// maxLinesPerTick bounds how long one tick spends draining the link.
	maxLinesPerTick = 64
)

// Mode is the loop state, derived from the control flags every tick.
type Mode int

const (
	Idle Mode = iota
	Running
)

func (m Mode) String() string {
	if m == Running {
		return "running"
	}
	return "idle"
}

// CommandPoller applies whatever commands are pending. It never blocks.
type CommandPoller interface {
	Poll(ctx context.Context) (int, error)
}

// FrameSource yields the next frame to score.
type FrameSource interface {
	Next(ctx context.Context) (frames.Frame, error)
}

// Scorer compares a frame with the clean reference.
type Scorer interface {
	Compare(frame image.Image) spectral.Similarity
}

// Journal records every scored frame.
type Journal interface {
	Record(ctx context.Context, ts time.Time, raw, filtered float64, label, video string, frameIndex int) error
}

// Config wires a Loop. Journal and Clock are optional.
type Config struct {
	Device   *state.Device
	Commands CommandPoller
	Link     seriallink.Conn
	Frames   FrameSource
	Scorer   Scorer
	Journal  Journal
	Clock    timeutil.Clock

	Params        classify.Params
	FrameInterval time.Duration
	IdleInterval  time.Duration
	// AuxChannels maps auxiliary state keys to board channels.
	AuxChannels      map[string]int
	ProcessNoise     float64
	MeasurementNoise float64
}

type auxBinding struct {
	key     string
	channel int
}

// Loop is the control loop. Run must not be called concurrently.
type Loop struct {
	device   *state.Device
	commands CommandPoller
	link     seriallink.Conn
	frames   FrameSource
	scorer   Scorer
	journal  Journal
	clock    timeutil.Clock

	params classify.Params
	filter *kalman.Filter
	sched  *schedule.Scheduler
	idle   time.Duration
	aux    []auxBinding

	mode  atomic.Int32
	stats *Stats
}

// New validates cfg and builds a Loop in the Idle mode.
func New(cfg Config) (*Loop, error) {
	switch {
	case cfg.Device == nil:
		return nil, errors.New("control: device is required")
	case cfg.Commands == nil:
		return nil, errors.New("control: command poller is required")
	case cfg.Frames == nil:
		return nil, errors.New("control: frame source is required")
	case cfg.Scorer == nil:
		return nil, errors.New("control: scorer is required")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	link := cfg.Link
	if link == nil {
		link = seriallink.NewDisabled()
	}
	idle := cfg.IdleInterval
	if idle <= 0 {
		idle = DefaultIdleInterval
	}

	var aux []auxBinding
	for key, ch := range cfg.AuxChannels {
		if ch == seriallink.LabelChannel {
			return nil, fmt.Errorf("control: aux key %q uses the label channel", key)
		}
		aux = append(aux, auxBinding{key: key, channel: ch})
	}
	sort.Slice(aux, func(i, j int) bool {
		if aux[i].channel != aux[j].channel {
			return aux[i].channel < aux[j].channel
		}
		return aux[i].key < aux[j].key
	})

	return &Loop{
		device:   cfg.Device,
		commands: cfg.Commands,
		link:     link,
		frames:   cfg.Frames,
		scorer:   cfg.Scorer,
		journal:  cfg.Journal,
		clock:    clock,
		params:   cfg.Params,
		filter:   kalman.New(cfg.ProcessNoise, cfg.MeasurementNoise),
		sched:    schedule.New(clock, cfg.FrameInterval),
		idle:     idle,
		aux:      aux,
		stats:    newStats(),
	}, nil
}

// Stats returns the loop counters.
func (l *Loop) Stats() *Stats { return l.stats }

// Mode returns the mode of the most recent tick.
func (l *Loop) Mode() Mode { return Mode(l.mode.Load()) }

// Run ticks until ctx is cancelled. Per-tick failures are logged and never
// end the loop.
func (l *Loop) Run(ctx context.Context) error {
	opsf("[Loop] starting for device %s (hardware present: %v)", l.device.ID(), l.link.Present())
	for {
		if err := ctx.Err(); err != nil {
			opsf("[Loop] stopping: %v", err)
			return err
		}
		l.Tick(ctx)
	}
}

// Tick runs one iteration, including the sleep that paces it, and returns
// the mode it ran in.
func (l *Loop) Tick(ctx context.Context) Mode {
	start := l.clock.Now()
	mode, err := l.step(ctx, start)
	if err != nil {
		l.stats.TickErrors.Add(1)
		opsf("[Loop] tick failed: %v", err)
	}
	if prev := l.Mode(); mode != prev {
		diagf("[Loop] %s -> %s", prev, mode)
		l.mode.Store(int32(mode))
	}

	if mode == Running {
		l.stats.RunningTicks.Add(1)
		if ctx.Err() == nil {
			l.sched.Pace(start)
		}
	} else {
		l.stats.IdleTicks.Add(1)
		if ctx.Err() == nil {
			l.clock.Sleep(l.idle)
		}
	}
	return mode
}

// step is one tick without pacing; start is when the tick began. A panic anywhere in it is turned into an
// error and the tick counts as idle.
func (l *Loop) step(ctx context.Context, start time.Time) (mode Mode, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.Panics.Add(1)
			mode = Idle
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if n, err := l.commands.Poll(ctx); err != nil {
		opsf("[Commands] %v", err)
	} else if n > 0 {
		l.stats.Commands.Add(int64(n))
	}

	flags, err := l.device.Flags(ctx)
	if err != nil {
		return Idle, fmt.Errorf("read flags: %w", err)
	}
	if !flags.Running() {
		return Idle, nil
	}

	if l.Mode() != Running {
		l.sched.Reset()
	}
	l.drainTelemetry(ctx)

	// Due, Mark and Pace all measure from the tick start.
	if !l.sched.Due(start) {
		return Running, nil
	}
	l.sched.Mark(start)
	return Running, l.processFrame(ctx, flags, start)
}

// drainTelemetry reads every complete line the board has sent and merges the
// good ones into the telemetry record. Malformed lines change nothing.
func (l *Loop) drainTelemetry(ctx context.Context) {
	merged := make(map[string]string)
	for i := 0; i < maxLinesPerTick; i++ {
		res, ok := l.link.ReadLine()
		if !ok {
			break
		}
		if res.Malformed() {
			l.stats.MalformedLines.Add(1)
			continue
		}
		l.stats.TelemetryLines.Add(1)
		for k, v := range res.Line.Telemetry() {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return
	}
	if err := l.device.MergeTelemetry(ctx, merged); err != nil {
		opsf("[Telemetry] failed to store board telemetry: %v", err)
	}
}

func (l *Loop) processFrame(ctx context.Context, flags state.ControlFlags, now time.Time) error {
	frame, err := l.frames.Next(ctx)
	if err != nil {
		l.stats.FrameErrors.Add(1)
		return fmt.Errorf("next frame: %w", err)
	}
	l.stats.Frames.Add(1)

	if !flags.CameraEnabled() {
		tracef("[Frame] camera off, skipping %s #%d", frame.Video, frame.Index)
		return nil
	}

	payload, err := frames.EncodeFrame(frame.Image)
	if err != nil {
		opsf("[Frame] %v", err)
	} else if err := l.device.PublishFrame(ctx, payload); err != nil {
		opsf("[Frame] failed to publish: %v", err)
	}

	sim := l.scorer.Compare(frame.Image)
	filtered := l.filter.Update(sim.Combined)
	label := classify.Classify(filtered, l.params)
	l.stats.observe(sim.Combined, filtered, label)
	tracef("[Score] ssim=%.3f rmse=%.3f nmi=%.3f raw=%.4f filtered=%.4f label=%s",
		sim.SSIM, sim.RMSE, sim.NMI, sim.Combined, filtered, label)

	l.sendAux(ctx)
	if err := l.link.Send(seriallink.LabelChannel, string(label)); err != nil {
		l.stats.SendErrors.Add(1)
		opsf("[Serial] failed to send label: %v", err)
	}

	if err := l.device.MergeTelemetry(ctx, map[string]string{state.PanelStatusField: string(label)}); err != nil {
		opsf("[Telemetry] failed to store panel status: %v", err)
	}

	if l.journal != nil {
		if err := l.journal.Record(ctx, now, sim.Combined, filtered, string(label), frame.Video, frame.Index); err != nil {
			opsf("[Journal] %v", err)
		}
	}
	return nil
}

// sendAux forwards each auxiliary value that is currently set.
func (l *Loop) sendAux(ctx context.Context) {
	for _, a := range l.aux {
		v, ok, err := l.device.Aux(ctx, a.key)
		if err != nil {
			opsf("[Aux] failed to read %s: %v", a.key, err)
			continue
		}
		if !ok {
			continue
		}
		if err := l.link.Send(a.channel, v); err != nil {
			l.stats.SendErrors.Add(1)
			opsf("[Serial] failed to send %s: %v", a.key, err)
		}
	}
}
