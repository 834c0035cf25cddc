package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/panel.sweep/internal/classify"
	"github.com/banshee-data/panel.sweep/internal/seriallink"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestEmptyConfigDefaults(t *testing.T) {
	cfg := Empty()

	if got := cfg.GetDeviceID(); got != "1" {
		t.Errorf("GetDeviceID() = %q, want 1", got)
	}
	if got := cfg.GetBaudRate(); got != 9600 {
		t.Errorf("GetBaudRate() = %d, want 9600", got)
	}
	if got := cfg.GetSerialSettle(); got != 2*time.Second {
		t.Errorf("GetSerialSettle() = %v, want 2s", got)
	}
	if got := cfg.GetFrameRate(); got != 10 {
		t.Errorf("GetFrameRate() = %v, want 10", got)
	}
	if got := cfg.GetIdleInterval(); got != 100*time.Millisecond {
		t.Errorf("GetIdleInterval() = %v, want 100ms", got)
	}
	if got := cfg.GetBrightnessCutoff(); got != 150 {
		t.Errorf("GetBrightnessCutoff() = %d, want 150", got)
	}
	if got := cfg.GetKalmanProcessNoise(); got != 1e-5 {
		t.Errorf("GetKalmanProcessNoise() = %g, want 1e-5", got)
	}
	if got := cfg.GetKalmanMeasurementNoise(); got != 1e-3 {
		t.Errorf("GetKalmanMeasurementNoise() = %g, want 1e-3", got)
	}
	if got := cfg.GetAuxChannels(); len(got) != 1 || got["move"] != 0 {
		t.Errorf("GetAuxChannels() = %v, want map[move:0]", got)
	}
	if got := cfg.GetJournalPath(); got != DefaultJournalPath {
		t.Errorf("GetJournalPath() = %q, want %q", got, DefaultJournalPath)
	}
	if got := cfg.GetSerialPort(); got != "" {
		t.Errorf("GetSerialPort() = %q, want discovery", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "sweeper.json", `{
  "device_id": "42",
  "redis_url": "rediss://cache.example:6380/0",
  "baud_rate": 115200,
  "frame_rate": 5,
  "idle_interval": "250ms",
  "classifier": {"mean_clean": 1.1, "std_clean": 0.05, "mean_dirty": 0.8, "std_dirty": 0.1},
  "aux_channels": {"move": 0, "brush": 2},
  "journal_path": ""
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetDeviceID() != "42" {
		t.Errorf("device id = %q", cfg.GetDeviceID())
	}
	if cfg.GetBaudRate() != 115200 {
		t.Errorf("baud = %d", cfg.GetBaudRate())
	}
	if cfg.GetFrameRate() != 5 {
		t.Errorf("frame rate = %v", cfg.GetFrameRate())
	}
	if cfg.GetIdleInterval() != 250*time.Millisecond {
		t.Errorf("idle = %v", cfg.GetIdleInterval())
	}
	if cfg.GetAuxChannels()["brush"] != 2 {
		t.Errorf("aux = %v", cfg.GetAuxChannels())
	}
	if cfg.GetJournalPath() != "" {
		t.Errorf("explicit empty journal path should disable journalling, got %q", cfg.GetJournalPath())
	}
	p, err := cfg.GetClassifierParams()
	if err != nil {
		t.Fatalf("GetClassifierParams: %v", err)
	}
	want := classify.Params{MeanClean: 1.1, StdClean: 0.05, MeanDirty: 0.8, StdDirty: 0.1}
	if p != want {
		t.Errorf("params = %+v, want %+v", p, want)
	}
	// Unset fields keep defaults.
	if cfg.GetBrightnessTarget() != 100 {
		t.Errorf("brightness target = %v", cfg.GetBrightnessTarget())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "sweeper.yaml", `
device_id: "7"
serial_port: /dev/ttyACM0
serial_signatures: [Arduino, CH340]
serial_settle: 500ms
brightness_cutoff: 180
clean_params_csv: clean.csv
dirty_params_csv: dirty.csv
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetSerialPort() != "/dev/ttyACM0" {
		t.Errorf("port = %q", cfg.GetSerialPort())
	}
	if got := strings.Join(cfg.GetSerialSignatures(), ","); got != "Arduino,CH340" {
		t.Errorf("signatures = %q", got)
	}
	if cfg.GetSerialSettle() != 500*time.Millisecond {
		t.Errorf("settle = %v", cfg.GetSerialSettle())
	}
	if cfg.GetBrightnessCutoff() != 180 {
		t.Errorf("cutoff = %d", cfg.GetBrightnessCutoff())
	}
	// The CSV files do not exist, so loading params must fail rather than
	// fall back silently.
	if _, err := cfg.GetClassifierParams(); err == nil {
		t.Error("expected error for missing parameter files")
	}
}

func TestClassifierParamsFromCSV(t *testing.T) {
	dir := t.TempDir()
	clean := filepath.Join(dir, "clean.csv")
	dirty := filepath.Join(dir, "dirty.csv")
	os.WriteFile(clean, []byte("Parameter,Values\nmean,1.2\nstd,0.03\n"), 0o644)
	os.WriteFile(dirty, []byte("Parameter,Values\nmean,0.9\nstd,0.2\n"), 0o644)

	cfg := &Config{CleanParamsCSV: ptrString(clean), DirtyParamsCSV: ptrString(dirty)}
	p, err := cfg.GetClassifierParams()
	if err != nil {
		t.Fatalf("GetClassifierParams: %v", err)
	}
	if p.MeanClean != 1.2 || p.StdDirty != 0.2 {
		t.Errorf("params = %+v", p)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"wrong extension", "c.toml", `device_id = "1"`},
		{"bad json", "c.json", `{"device_id": }`},
		{"negative baud", "c.json", `{"baud_rate": -1}`},
		{"zero frame rate", "c.json", `{"frame_rate": 0}`},
		{"bad duration", "c.json", `{"idle_interval": "soon"}`},
		{"negative duration", "c.json", `{"serial_settle": "-1s"}`},
		{"cutoff out of range", "c.json", `{"brightness_cutoff": 300}`},
		{"tiny compare size", "c.json", `{"compare_size": 3}`},
		{"aux on label channel", "c.json", `{"aux_channels": {"move": 1}}`},
		{"negative aux channel", "c.yaml", "aux_channels:\n  move: -2\n"},
		{"zero std", "c.json", `{"classifier": {"mean_clean": 1, "std_clean": 0, "mean_dirty": 0.5, "std_dirty": 0.1}}`},
		{"zero process noise", "c.json", `{"kalman_process_noise": 0}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.file, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadTooLarge(t *testing.T) {
	body := `{"device_id": "` + strings.Repeat("x", maxFileSize) + `"}`
	if _, err := Load(writeConfig(t, "big.json", body)); err == nil {
		t.Error("expected size error")
	}
}

func TestValidate_AuxChannelUsesLinkLabelChannel(t *testing.T) {
	cfg := &Config{AuxChannels: map[string]int{"move": seriallink.LabelChannel}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("aux on channel %d should be rejected", seriallink.LabelChannel)
	}
	cfg.AuxChannels = map[string]int{"move": seriallink.LabelChannel + 1}
	if err := cfg.Validate(); err != nil {
		t.Errorf("aux on channel %d: %v", seriallink.LabelChannel+1, err)
	}
}
