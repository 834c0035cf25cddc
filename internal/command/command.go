// Package command applies operator commands from the command topic to the
// device control flags.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/panel.sweep/internal/state"
)

// Command is one operator instruction.
type Command int

const (
	StartClean Command = iota + 1
	StopClean
	Status
)

var tokens = map[string]Command{
	"start_clean": StartClean,
	"stop_clean":  StopClean,
	"status":      Status,
}

func (c Command) String() string {
	for tok, cmd := range tokens {
		if cmd == c {
			return tok
		}
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// Parse maps a wire token to a Command. Surrounding whitespace is ignored;
// the match is otherwise exact.
func Parse(token string) (Command, bool) {
	c, ok := tokens[strings.TrimSpace(token)]
	return c, ok
}

// Source yields whatever commands have arrived since the last call. It never
// blocks.
type Source interface {
	PollPending() []Command
}

// SubscriptionSource reads tokens from a SharedState subscription.
type SubscriptionSource struct {
	sub    state.Subscription
	closed bool
}

func NewSubscriptionSource(sub state.Subscription) *SubscriptionSource {
	return &SubscriptionSource{sub: sub}
}

// PollPending drains the subscription buffer. Unknown tokens are logged and
// dropped.
func (s *SubscriptionSource) PollPending() []Command {
	if s.closed {
		return nil
	}
	var out []Command
	for {
		select {
		case msg, ok := <-s.sub.Messages():
			if !ok {
				opsf("command subscription closed")
				s.closed = true
				return out
			}
			cmd, known := Parse(msg)
			if !known {
				opsf("ignoring unknown command %q", msg)
				continue
			}
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func (s *SubscriptionSource) Close() error {
	return s.sub.Close()
}

// Channel applies commands to a device. Applying a command twice has the same
// effect as applying it once.
type Channel struct {
	device *state.Device
	source Source
}

func NewChannel(device *state.Device, source Source) *Channel {
	return &Channel{device: device, source: source}
}

// Poll applies every pending command in arrival order and returns how many
// were applied. A failing command is reported but does not stop the rest.
func (c *Channel) Poll(ctx context.Context) (int, error) {
	var firstErr error
	applied := 0
	for _, cmd := range c.source.PollPending() {
		if err := c.Apply(ctx, cmd); err != nil {
			opsf("failed to apply %s: %v", cmd, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		applied++
	}
	return applied, firstErr
}

// Apply executes one command against the device state.
func (c *Channel) Apply(ctx context.Context, cmd Command) error {
	switch cmd {
	case StartClean:
		diagf("start_clean: cleaning=start camera=on")
		return c.device.SetFlags(ctx, state.ControlFlags{Cleaning: state.CleaningStart, Camera: state.CameraOn})
	case StopClean:
		diagf("stop_clean: cleaning=stop camera=off")
		return c.device.SetFlags(ctx, state.ControlFlags{Cleaning: state.CleaningStop, Camera: state.CameraOff})
	case Status:
		flags, err := c.device.Flags(ctx)
		if err != nil {
			return err
		}
		status := state.StatusIdle
		if flags.Running() {
			status = state.StatusRunning
		}
		diagf("status: %s", status)
		return c.device.SetStatus(ctx, status)
	default:
		return fmt.Errorf("unknown command %d", int(cmd))
	}
}
