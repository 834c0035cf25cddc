package state

import (
	"context"
	"fmt"
)

// Cleaning is the cleaning_control flag.
type Cleaning string

const (
	CleaningStart Cleaning = "start"
	CleaningStop  Cleaning = "stop"
)

// Camera is the camera flag.
type Camera string

const (
	CameraOn  Camera = "on"
	CameraOff Camera = "off"
)

// Status values written to the robot state key.
const (
	StatusRunning = "running"
	StatusIdle    = "idle"
)

// PanelStatusField is the telemetry field the classifier owns.
const PanelStatusField = "panelStatus"

// ControlFlags is the authoritative mode of the loop. The loop re-reads it
// every tick.
type ControlFlags struct {
	Cleaning Cleaning
	Camera   Camera
}

// Running reports whether frames should be processed.
func (f ControlFlags) Running() bool { return f.Cleaning == CleaningStart }

// CameraEnabled reports whether frames should be published and scored.
func (f ControlFlags) CameraEnabled() bool { return f.Camera == CameraOn }

// Device scopes SharedState keys to one robot.
type Device struct {
	store SharedState
	id    string
}

func NewDevice(store SharedState, id string) *Device {
	return &Device{store: store, id: id}
}

// ID returns the device id used in every key.
func (d *Device) ID() string { return d.id }

// Store returns the underlying SharedState.
func (d *Device) Store() SharedState { return d.store }

// Key returns the fully qualified key for name.
func (d *Device) Key(name string) string {
	return fmt.Sprintf("user:%s:%s", d.id, name)
}

func (d *Device) CleaningKey() string  { return d.Key("cleaning_control") }
func (d *Device) CameraKey() string    { return d.Key("camera") }
func (d *Device) StatusKey() string    { return d.Key("robot:state") }
func (d *Device) TelemetryKey() string { return d.Key("telemetry") }
func (d *Device) VideoKey() string     { return d.Key("video") }
func (d *Device) CommandTopic() string { return d.Key("robot:commands") }

// Flags reads the control flags. A missing or unrecognised value reads as
// Stop/Off.
func (d *Device) Flags(ctx context.Context) (ControlFlags, error) {
	flags := ControlFlags{Cleaning: CleaningStop, Camera: CameraOff}
	v, ok, err := d.store.Get(ctx, d.CleaningKey())
	if err != nil {
		return flags, fmt.Errorf("failed to read cleaning flag: %w", err)
	}
	if ok && Cleaning(v) == CleaningStart {
		flags.Cleaning = CleaningStart
	}
	v, ok, err = d.store.Get(ctx, d.CameraKey())
	if err != nil {
		return flags, fmt.Errorf("failed to read camera flag: %w", err)
	}
	if ok && Camera(v) == CameraOn {
		flags.Camera = CameraOn
	}
	return flags, nil
}

// SetFlags writes both flags.
func (d *Device) SetFlags(ctx context.Context, flags ControlFlags) error {
	if err := d.store.Set(ctx, d.CleaningKey(), string(flags.Cleaning)); err != nil {
		return fmt.Errorf("failed to write cleaning flag: %w", err)
	}
	if err := d.store.Set(ctx, d.CameraKey(), string(flags.Camera)); err != nil {
		return fmt.Errorf("failed to write camera flag: %w", err)
	}
	return nil
}

func (d *Device) SetStatus(ctx context.Context, status string) error {
	return d.store.Set(ctx, d.StatusKey(), status)
}

// MergeTelemetry updates only the named fields.
func (d *Device) MergeTelemetry(ctx context.Context, fields map[string]string) error {
	return d.store.HashSet(ctx, d.TelemetryKey(), fields)
}

func (d *Device) Telemetry(ctx context.Context) (map[string]string, error) {
	return d.store.HashGetAll(ctx, d.TelemetryKey())
}

// PublishFrame overwrites the latest published frame.
func (d *Device) PublishFrame(ctx context.Context, payload string) error {
	return d.store.Set(ctx, d.VideoKey(), payload)
}

// Aux reads an externally supplied auxiliary value.
func (d *Device) Aux(ctx context.Context, name string) (string, bool, error) {
	return d.store.Get(ctx, d.Key(name))
}

// Commands subscribes to the command topic.
func (d *Device) Commands(ctx context.Context) (Subscription, error) {
	return d.store.Subscribe(ctx, d.CommandTopic())
}

// SendCommand publishes a raw command token, as the dashboard does.
func (d *Device) SendCommand(ctx context.Context, token string) error {
	return d.store.Publish(ctx, d.CommandTopic(), token)
}
