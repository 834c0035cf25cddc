package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice_Keys(t *testing.T) {
	d := NewDevice(NewMemory(), "42")
	tests := []struct {
		got  string
		want string
	}{
		{d.CleaningKey(), "user:42:cleaning_control"},
		{d.CameraKey(), "user:42:camera"},
		{d.StatusKey(), "user:42:robot:state"},
		{d.TelemetryKey(), "user:42:telemetry"},
		{d.VideoKey(), "user:42:video"},
		{d.CommandTopic(), "user:42:robot:commands"},
		{d.Key("move"), "user:42:move"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got)
	}
}

func TestDevice_FlagsDefaultToStopped(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	d := NewDevice(m, "1")

	flags, err := d.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, ControlFlags{Cleaning: CleaningStop, Camera: CameraOff}, flags)
	assert.False(t, flags.Running())

	require.NoError(t, m.Set(ctx, d.CleaningKey(), "bogus"))
	require.NoError(t, m.Set(ctx, d.CameraKey(), "ON"))
	flags, err = d.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, ControlFlags{Cleaning: CleaningStop, Camera: CameraOff}, flags)
}

func TestDevice_SetFlagsRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := NewDevice(NewMemory(), "1")

	want := ControlFlags{Cleaning: CleaningStart, Camera: CameraOn}
	require.NoError(t, d.SetFlags(ctx, want))
	got, err := d.Flags(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.Running())
	assert.True(t, got.CameraEnabled())
}

func TestDevice_TelemetryIsFieldLevel(t *testing.T) {
	ctx := context.Background()
	d := NewDevice(NewMemory(), "1")

	require.NoError(t, d.MergeTelemetry(ctx, map[string]string{"battery": "88", "water": "40"}))
	require.NoError(t, d.MergeTelemetry(ctx, map[string]string{PanelStatusField: "Clean"}))

	got, err := d.Telemetry(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"battery": "88", "water": "40", "panelStatus": "Clean"}, got)
}

func TestDevice_Commands(t *testing.T) {
	ctx := context.Background()
	d := NewDevice(NewMemory(), "1")

	sub, err := d.Commands(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, d.SendCommand(ctx, "start_clean"))
	assert.Equal(t, "start_clean", <-sub.Messages())
}
