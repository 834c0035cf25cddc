package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/panel.sweep/internal/classify"
	"github.com/banshee-data/panel.sweep/internal/seriallink"
)

// Defaults for every optional field. The Get* methods fall back to these.
const (
	DefaultDeviceID               = "1"
	DefaultRedisURL               = "redis://localhost:6379/0"
	DefaultBaudRate               = 9600
	DefaultSerialSettle           = "2s"
	DefaultFramesDir              = "video_frames"
	DefaultReferenceImage         = "image/reference.jpg"
	DefaultFrameRate              = 10.0
	DefaultIdleInterval           = "100ms"
	DefaultBrightnessTarget       = 100.0
	DefaultBrightnessCutoff       = 150
	DefaultCompareSize            = 300
	DefaultKalmanProcessNoise     = 1e-5
	DefaultKalmanMeasurementNoise = 1e-3
	DefaultCleanParamsCSV         = "data/raw/clean_parameters.csv"
	DefaultDirtyParamsCSV         = "data/raw/dirty_parameters.csv"
	DefaultJournalPath            = "sweeper.db"
	DefaultDebugListen            = "localhost:8080"

	maxFileSize = 1 * 1024 * 1024
)

// Config is the sweeper configuration. Nil fields take their defaults, so a
// partial file is valid.
type Config struct {
	DeviceID *string `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	RedisURL *string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`

	// Serial. An empty port means discover by signature.
	SerialPort       *string  `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	BaudRate         *int     `json:"baud_rate,omitempty" yaml:"baud_rate,omitempty"`
	SerialSignatures []string `json:"serial_signatures,omitempty" yaml:"serial_signatures,omitempty"`
	SerialSettle     *string  `json:"serial_settle,omitempty" yaml:"serial_settle,omitempty"` // duration like "2s"

	// Frames
	FramesDir      *string `json:"frames_dir,omitempty" yaml:"frames_dir,omitempty"`
	WorkDir        *string `json:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	FFmpegPath     *string `json:"ffmpeg_path,omitempty" yaml:"ffmpeg_path,omitempty"`
	ReferenceImage *string `json:"reference_image,omitempty" yaml:"reference_image,omitempty"`

	// Loop pacing
	FrameRate    *float64 `json:"frame_rate,omitempty" yaml:"frame_rate,omitempty"`
	IdleInterval *string  `json:"idle_interval,omitempty" yaml:"idle_interval,omitempty"`

	// Scoring
	BrightnessTarget       *float64 `json:"brightness_target,omitempty" yaml:"brightness_target,omitempty"`
	BrightnessCutoff       *int     `json:"brightness_cutoff,omitempty" yaml:"brightness_cutoff,omitempty"`
	CompareSize            *int     `json:"compare_size,omitempty" yaml:"compare_size,omitempty"`
	KalmanProcessNoise     *float64 `json:"kalman_process_noise,omitempty" yaml:"kalman_process_noise,omitempty"`
	KalmanMeasurementNoise *float64 `json:"kalman_measurement_noise,omitempty" yaml:"kalman_measurement_noise,omitempty"`

	// Classifier parameters, inline or from the precomputed CSV files.
	Classifier     *classify.Params `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	CleanParamsCSV *string          `json:"clean_params_csv,omitempty" yaml:"clean_params_csv,omitempty"`
	DirtyParamsCSV *string          `json:"dirty_params_csv,omitempty" yaml:"dirty_params_csv,omitempty"`

	// AuxChannels maps auxiliary state keys to the board channel they are
	// forwarded on.
	AuxChannels map[string]int `json:"aux_channels,omitempty" yaml:"aux_channels,omitempty"`

	// JournalPath is the SQLite score journal. An explicit empty string
	// disables journalling.
	JournalPath *string `json:"journal_path,omitempty" yaml:"journal_path,omitempty"`
	DebugListen *string `json:"debug_listen,omitempty" yaml:"debug_listen,omitempty"`
}

func ptrString(v string) *string { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a .json, .yaml or .yml file.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must be .json, .yaml or .yml, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	if c.BaudRate != nil && *c.BaudRate <= 0 {
		return fmt.Errorf("baud_rate must be positive, got %d", *c.BaudRate)
	}
	if c.FrameRate != nil && *c.FrameRate <= 0 {
		return fmt.Errorf("frame_rate must be positive, got %f", *c.FrameRate)
	}
	for name, v := range map[string]*string{"serial_settle": c.SerialSettle, "idle_interval": c.IdleInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, *v)
		}
	}
	if c.BrightnessTarget != nil && *c.BrightnessTarget <= 0 {
		return fmt.Errorf("brightness_target must be positive, got %f", *c.BrightnessTarget)
	}
	if c.BrightnessCutoff != nil && (*c.BrightnessCutoff < 1 || *c.BrightnessCutoff > 255) {
		return fmt.Errorf("brightness_cutoff must be between 1 and 255, got %d", *c.BrightnessCutoff)
	}
	if c.CompareSize != nil && *c.CompareSize < 7 {
		return fmt.Errorf("compare_size must be at least 7, got %d", *c.CompareSize)
	}
	if c.KalmanProcessNoise != nil && *c.KalmanProcessNoise <= 0 {
		return fmt.Errorf("kalman_process_noise must be positive, got %g", *c.KalmanProcessNoise)
	}
	if c.KalmanMeasurementNoise != nil && *c.KalmanMeasurementNoise <= 0 {
		return fmt.Errorf("kalman_measurement_noise must be positive, got %g", *c.KalmanMeasurementNoise)
	}
	if c.Classifier != nil {
		if err := c.Classifier.Validate(); err != nil {
			return err
		}
	}
	for name, ch := range c.AuxChannels {
		if ch < 0 {
			return fmt.Errorf("aux channel for %q must not be negative, got %d", name, ch)
		}
		if ch == seriallink.LabelChannel {
			return fmt.Errorf("aux channel for %q collides with the label channel %d", name, seriallink.LabelChannel)
		}
	}
	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

func (c *Config) GetDeviceID() string { return stringOr(c.DeviceID, DefaultDeviceID) }
func (c *Config) GetRedisURL() string { return stringOr(c.RedisURL, DefaultRedisURL) }

// GetSerialPort returns the configured port, or "" to discover one.
func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "") }

func (c *Config) GetBaudRate() int {
	if c.BaudRate == nil {
		return DefaultBaudRate
	}
	return *c.BaudRate
}

// GetSerialSignatures returns the port description substrings used for
// discovery. Nil means the link's defaults.
func (c *Config) GetSerialSignatures() []string { return c.SerialSignatures }

func (c *Config) GetSerialSettle() time.Duration {
	return durationOr(c.SerialSettle, 2*time.Second)
}

func (c *Config) GetFramesDir() string { return stringOr(c.FramesDir, DefaultFramesDir) }

// GetWorkDir defaults to a directory under the system temp dir.
func (c *Config) GetWorkDir() string {
	return stringOr(c.WorkDir, filepath.Join(os.TempDir(), "panel-sweep"))
}

func (c *Config) GetFFmpegPath() string { return stringOr(c.FFmpegPath, "ffmpeg") }

func (c *Config) GetReferenceImage() string {
	return stringOr(c.ReferenceImage, DefaultReferenceImage)
}

func (c *Config) GetFrameRate() float64 {
	if c.FrameRate == nil {
		return DefaultFrameRate
	}
	return *c.FrameRate
}

func (c *Config) GetIdleInterval() time.Duration {
	return durationOr(c.IdleInterval, 100*time.Millisecond)
}

func (c *Config) GetBrightnessTarget() float64 {
	if c.BrightnessTarget == nil {
		return DefaultBrightnessTarget
	}
	return *c.BrightnessTarget
}

func (c *Config) GetBrightnessCutoff() uint8 {
	if c.BrightnessCutoff == nil {
		return DefaultBrightnessCutoff
	}
	return uint8(*c.BrightnessCutoff)
}

func (c *Config) GetCompareSize() int {
	if c.CompareSize == nil {
		return DefaultCompareSize
	}
	return *c.CompareSize
}

func (c *Config) GetKalmanProcessNoise() float64 {
	if c.KalmanProcessNoise == nil {
		return DefaultKalmanProcessNoise
	}
	return *c.KalmanProcessNoise
}

func (c *Config) GetKalmanMeasurementNoise() float64 {
	if c.KalmanMeasurementNoise == nil {
		return DefaultKalmanMeasurementNoise
	}
	return *c.KalmanMeasurementNoise
}

// GetClassifierParams returns the inline parameters if set, otherwise reads
// the CSV files.
func (c *Config) GetClassifierParams() (classify.Params, error) {
	if c.Classifier != nil {
		return *c.Classifier, nil
	}
	return classify.LoadParamsCSV(
		stringOr(c.CleanParamsCSV, DefaultCleanParamsCSV),
		stringOr(c.DirtyParamsCSV, DefaultDirtyParamsCSV),
	)
}

// GetAuxChannels returns the aux key to channel map. Unset means "move" on
// channel 0.
func (c *Config) GetAuxChannels() map[string]int {
	if c.AuxChannels == nil {
		return map[string]int{"move": 0}
	}
	return c.AuxChannels
}

// GetJournalPath returns "" when journalling is disabled.
func (c *Config) GetJournalPath() string {
	if c.JournalPath == nil {
		return DefaultJournalPath
	}
	return *c.JournalPath
}

func (c *Config) GetDebugListen() string { return stringOr(c.DebugListen, DefaultDebugListen) }
