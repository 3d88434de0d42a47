// Package config provides unified configuration for the hcilog recorder
// and renderer binaries.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for all hcilog components.
type Config struct {
	// DataDir is the base directory for the database and artifact files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Buffer configuration shared by all trackers
	Buffer BufferConfig `json:"buffer" yaml:"buffer"`

	// Trackers configuration, one block per modality
	Trackers TrackersConfig `json:"trackers" yaml:"trackers"`

	// Artifacts configuration (screenshot/audio/heatmap file storage)
	Artifacts ArtifactsConfig `json:"artifacts" yaml:"artifacts"`

	// Heatmap rendering configuration
	Heatmap HeatmapConfig `json:"heatmap" yaml:"heatmap"`
}

// BufferConfig holds event-buffer configuration.
type BufferConfig struct {
	// BatchSize is the capacity threshold that triggers an async flush
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// FlushInterval bounds event staleness between capacity flushes
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	// RetryBackoff is the wait before the single flush retry
	RetryBackoff time.Duration `json:"retry_backoff" yaml:"retry_backoff"`
}

// TrackersConfig holds per-modality tracker configuration.
type TrackersConfig struct {
	Pointer    PointerConfig    `json:"pointer" yaml:"pointer"`
	Screenshot ScreenshotConfig `json:"screenshot" yaml:"screenshot"`
	Audio      AudioConfig      `json:"audio" yaml:"audio"`
	Emotion    EmotionConfig    `json:"emotion" yaml:"emotion"`
	Gaze       GazeConfig       `json:"gaze" yaml:"gaze"`
}

// PointerConfig holds pointer tracker configuration.
type PointerConfig struct {
	// Enabled controls whether the pointer tracker starts
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MovementThreshold is the minimum Euclidean displacement in pixels
	// between accepted move events
	MovementThreshold float64 `json:"movement_threshold" yaml:"movement_threshold"`
}

// ScreenshotConfig holds screenshot tracker configuration.
type ScreenshotConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Mode selects the capture policy: periodic, event
	Mode string `json:"mode" yaml:"mode"`

	// Interval between captures in periodic mode
	Interval time.Duration `json:"interval" yaml:"interval"`

	// ScrollThreshold is the accumulated scroll in pixels that triggers
	// an event-mode capture
	ScrollThreshold float64 `json:"scroll_threshold" yaml:"scroll_threshold"`

	// Cooldown is the minimum time between event-mode captures
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`

	// Format is the image format written to the artifact store
	Format string `json:"format" yaml:"format"`

	// DedupeFrames skips frames whose content hash matches the previous
	// capture
	DedupeFrames bool `json:"dedupe_frames" yaml:"dedupe_frames"`
}

// AudioConfig holds audio tracker configuration.
type AudioConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SegmentDuration is the fixed length of each audio segment
	SegmentDuration time.Duration `json:"segment_duration" yaml:"segment_duration"`

	// SampleRate in Hz (44100 = CD quality, 16000 = voice)
	SampleRate int `json:"sample_rate" yaml:"sample_rate"`

	// Channels (1 = mono, 2 = stereo)
	Channels int `json:"channels" yaml:"channels"`
}

// EmotionConfig holds emotion tracker configuration.
type EmotionConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SampleRate is the analysis frequency in Hz (2.0 = every 0.5s)
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// GazeConfig holds gaze tracker configuration.
type GazeConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// SampleRate is the capture frequency in Hz
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// ArtifactsConfig holds artifact storage configuration.
type ArtifactsConfig struct {
	// Type is the artifact store type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local artifact root (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 artifact storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// HeatmapConfig holds heatmap rendering configuration.
type HeatmapConfig struct {
	// CellSize is the density grid sub-sampling factor in pixels
	CellSize int `json:"cell_size" yaml:"cell_size"`

	// BlurRadius is the Gaussian smoothing radius in grid cells
	BlurRadius int `json:"blur_radius" yaml:"blur_radius"`

	// ClickWeight is the density weight of a click relative to a move
	ClickWeight float64 `json:"click_weight" yaml:"click_weight"`

	// OverlayAlpha is the heatmap opacity when composited over a
	// screenshot (0 = invisible, 1 = opaque)
	OverlayAlpha float64 `json:"overlay_alpha" yaml:"overlay_alpha"`
}

// DefaultConfig returns the default configuration for local recording.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/hcilog",
		Buffer: BufferConfig{
			BatchSize:     50,
			FlushInterval: 5 * time.Second,
			RetryBackoff:  250 * time.Millisecond,
		},
		Trackers: TrackersConfig{
			Pointer: PointerConfig{
				Enabled:           true,
				MovementThreshold: 5,
			},
			Screenshot: ScreenshotConfig{
				Enabled:         true,
				Mode:            "event",
				Interval:        5 * time.Second,
				ScrollThreshold: 100,
				Cooldown:        500 * time.Millisecond,
				Format:          "png",
				DedupeFrames:    true,
			},
			Audio: AudioConfig{
				Enabled:         true,
				SegmentDuration: 30 * time.Second,
				SampleRate:      44100,
				Channels:        1,
			},
			Emotion: EmotionConfig{
				Enabled:    true,
				SampleRate: 2.0,
			},
			Gaze: GazeConfig{
				Enabled:    true,
				SampleRate: 30.0,
			},
		},
		Artifacts: ArtifactsConfig{
			Type: "local",
			Path: "",
		},
		Heatmap: HeatmapConfig{
			CellSize:     4,
			BlurRadius:   20,
			ClickWeight:  3,
			OverlayAlpha: 0.6,
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/hcilog"
	}

	if c.Artifacts.Path == "" {
		c.Artifacts.Path = filepath.Join(c.DataDir, "artifacts")
	}
}

// DatabasePath returns the path to the session database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "hcilog.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Buffer.BatchSize <= 0 {
		return fmt.Errorf("buffer.batch_size must be positive, got %d", c.Buffer.BatchSize)
	}
	if c.Buffer.FlushInterval <= 0 {
		return fmt.Errorf("buffer.flush_interval must be positive")
	}

	switch c.Trackers.Screenshot.Mode {
	case "periodic", "event":
		// Valid modes
	default:
		return fmt.Errorf("invalid screenshot mode: %s (must be periodic or event)", c.Trackers.Screenshot.Mode)
	}

	if c.Trackers.Pointer.MovementThreshold < 0 {
		return fmt.Errorf("pointer.movement_threshold must not be negative")
	}
	if c.Trackers.Audio.Enabled && c.Trackers.Audio.SegmentDuration <= 0 {
		return fmt.Errorf("audio.segment_duration must be positive")
	}
	if c.Trackers.Emotion.Enabled && c.Trackers.Emotion.SampleRate <= 0 {
		return fmt.Errorf("emotion.sample_rate must be positive")
	}
	if c.Trackers.Gaze.Enabled && c.Trackers.Gaze.SampleRate <= 0 {
		return fmt.Errorf("gaze.sample_rate must be positive")
	}

	if c.Artifacts.Type != "local" && c.Artifacts.Type != "s3" {
		return fmt.Errorf("invalid artifacts type: %s (must be local or s3)", c.Artifacts.Type)
	}
	if c.Artifacts.Type == "s3" && c.Artifacts.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when artifacts type is s3")
	}

	if c.Heatmap.CellSize <= 0 {
		return fmt.Errorf("heatmap.cell_size must be positive, got %d", c.Heatmap.CellSize)
	}
	if c.Heatmap.BlurRadius < 0 {
		return fmt.Errorf("heatmap.blur_radius must not be negative")
	}
	if c.Heatmap.ClickWeight <= 0 {
		return fmt.Errorf("heatmap.click_weight must be positive")
	}
	if c.Heatmap.OverlayAlpha < 0 || c.Heatmap.OverlayAlpha > 1 {
		return fmt.Errorf("heatmap.overlay_alpha must be in [0,1], got %v", c.Heatmap.OverlayAlpha)
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the HCILOG_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("HCILOG_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// Buffer configuration
	if v := os.Getenv("HCILOG_BUFFER_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Buffer.BatchSize)
	}
	if v := os.Getenv("HCILOG_BUFFER_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Buffer.FlushInterval = d
		}
	}

	// Tracker configuration
	if v := os.Getenv("HCILOG_POINTER_MOVEMENT_THRESHOLD"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Trackers.Pointer.MovementThreshold)
	}
	if v := os.Getenv("HCILOG_SCREENSHOT_MODE"); v != "" {
		cfg.Trackers.Screenshot.Mode = v
	}
	if v := os.Getenv("HCILOG_SCREENSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Trackers.Screenshot.Interval = d
		}
	}
	if v := os.Getenv("HCILOG_AUDIO_SEGMENT_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Trackers.Audio.SegmentDuration = d
		}
	}
	if v := os.Getenv("HCILOG_EMOTION_SAMPLE_RATE"); v != "" {
		fmt.Sscanf(v, "%f", &cfg.Trackers.Emotion.SampleRate)
	}

	// Artifact configuration
	if v := os.Getenv("HCILOG_ARTIFACTS_TYPE"); v != "" {
		cfg.Artifacts.Type = v
	}
	if v := os.Getenv("HCILOG_ARTIFACTS_PATH"); v != "" {
		cfg.Artifacts.Path = v
	}
	if v := os.Getenv("HCILOG_S3_BUCKET"); v != "" {
		cfg.Artifacts.S3.Bucket = v
	}
	if v := os.Getenv("HCILOG_S3_REGION"); v != "" {
		cfg.Artifacts.S3.Region = v
	}
	if v := os.Getenv("HCILOG_S3_ENDPOINT"); v != "" {
		cfg.Artifacts.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Artifacts.Path,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
