// Package schedule rate-limits the control loop's frame processing.
package schedule

import (
	"time"

	"github.com/banshee-data/panel.sweep/internal/timeutil"
)

// DefaultFrameRate is frames processed per second while running.
const DefaultFrameRate = 10

// Scheduler decides when the next frame is due and sleeps out the rest of a
// tick. Late ticks are not made up.
type Scheduler struct {
	clock    timeutil.Clock
	interval time.Duration
	last     time.Time
	started  bool
}

// New returns a scheduler whose first frame is due immediately.
func New(clock timeutil.Clock, interval time.Duration) *Scheduler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = IntervalForRate(DefaultFrameRate)
	}
	return &Scheduler{clock: clock, interval: interval}
}

// IntervalForRate converts frames per second to a tick interval.
func IntervalForRate(fps float64) time.Duration {
	if fps <= 0 {
		fps = DefaultFrameRate
	}
	return time.Duration(float64(time.Second) / fps)
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

// Due reports whether at least one interval has passed since the last Mark.
func (s *Scheduler) Due(now time.Time) bool {
	if !s.started {
		return true
	}
	return now.Sub(s.last) >= s.interval
}

// Mark records now as the time of the last processed frame.
func (s *Scheduler) Mark(now time.Time) {
	s.last = now
	s.started = true
}

// Reset makes the next frame due immediately.
func (s *Scheduler) Reset() { s.started = false }

// Remaining returns how long to sleep so a tick that began at tickStart lasts
// one interval. It is never negative.
func (s *Scheduler) Remaining(tickStart time.Time) time.Duration {
	d := s.interval - s.clock.Since(tickStart)
	if d < 0 {
		return 0
	}
	return d
}

// Pace sleeps the remainder of the tick and returns the duration slept.
func (s *Scheduler) Pace(tickStart time.Time) time.Duration {
	d := s.Remaining(tickStart)
	s.clock.Sleep(d)
	return d
}
