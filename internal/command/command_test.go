package command

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/panel.sweep/internal/state"
)

func TestParse(t *testing.T) {
	tests := []struct {
		token string
		want  Command
		ok    bool
	}{
		{"start_clean", StartClean, true},
		{"stop_clean", StopClean, true},
		{"status", Status, true},
		{" status\n", Status, true},
		{"STATUS", 0, false},
		{"reboot", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, ok := Parse(tt.token)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "stop_clean", StopClean.String())
}

type fixture struct {
	mem    *state.Memory
	device *state.Device
	ch     *Channel
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mem := state.NewRecordingMemory()
	device := state.NewDevice(mem, "1")
	sub, err := device.Commands(context.Background())
	require.NoError(t, err)
	src := NewSubscriptionSource(sub)
	t.Cleanup(func() { src.Close() })
	return fixture{mem: mem, device: device, ch: NewChannel(device, src)}
}

func (f fixture) send(t *testing.T, tokens ...string) {
	t.Helper()
	for _, tok := range tokens {
		require.NoError(t, f.device.SendCommand(context.Background(), tok))
	}
}

func TestChannel_StartStatusStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.send(t, "start_clean", "status", "stop_clean")
	n, err := f.ch.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	flags, err := f.device.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.CleaningStop, flags.Cleaning)
	assert.Equal(t, state.CameraOff, flags.Camera)

	statusWrites := f.mem.Writes(f.device.StatusKey())
	require.Len(t, statusWrites, 1)
	assert.Equal(t, state.StatusRunning, statusWrites[0].Value)

	// The status publication sits between the start and the stop.
	var order []state.Write
	for _, w := range f.mem.Writes("") {
		if w.Key == f.device.CleaningKey() || w.Key == f.device.StatusKey() {
			order = append(order, w)
		}
	}
	assert.Equal(t, []state.Write{
		{Key: f.device.CleaningKey(), Value: "start"},
		{Key: f.device.StatusKey(), Value: "running"},
		{Key: f.device.CleaningKey(), Value: "stop"},
	}, order)
}

func TestChannel_StatusWhileIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.send(t, "status")
	_, err := f.ch.Poll(ctx)
	require.NoError(t, err)

	v, ok, err := f.mem.Get(ctx, f.device.StatusKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state.StatusIdle, v)

	flags, _ := f.device.Flags(ctx)
	assert.False(t, flags.Running(), "status must not change flags")
}

func TestChannel_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.send(t, "start_clean", "start_clean")
	_, err := f.ch.Poll(ctx)
	require.NoError(t, err)

	flags, err := f.device.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.ControlFlags{Cleaning: state.CleaningStart, Camera: state.CameraOn}, flags)
}

func TestChannel_UnknownTokensIgnored(t *testing.T) {
	var ops bytes.Buffer
	SetLogWriters(&ops, nil)
	t.Cleanup(func() { SetLogWriters(nil, nil) })

	ctx := context.Background()
	f := newFixture(t)

	f.send(t, "dance", "start_clean")
	n, err := f.ch.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, ops.String(), `unknown command "dance"`)
}

func TestChannel_PollWithNothingPending(t *testing.T) {
	f := newFixture(t)
	n, err := f.ch.Poll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscriptionSource_ClosedSubscription(t *testing.T) {
	mem := state.NewMemory()
	sub, err := mem.Subscribe(context.Background(), "t")
	require.NoError(t, err)
	src := NewSubscriptionSource(sub)

	require.NoError(t, sub.Close())
	assert.Empty(t, src.PollPending())
	assert.Empty(t, src.PollPending())
}
