// Package config loads the recorder configuration from TOML or YAML files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/logging"
)

// Config represents the complete recorder configuration
type Config struct {
	Target    TargetConfig    `toml:"target" yaml:"target"`
	Output    OutputConfig    `toml:"output" yaml:"output"`
	Backend   string          `toml:"backend" yaml:"backend"` // gstreamer, sim
	Capture   CaptureConfig   `toml:"capture" yaml:"capture"`
	Rate      RateConfig      `toml:"rate" yaml:"rate"`
	Buffers   BuffersConfig   `toml:"buffers" yaml:"buffers"`
	Inference InferenceConfig `toml:"inference" yaml:"inference"`
	Encode    EncodeConfig    `toml:"encode" yaml:"encode"`
	Logging   logging.Config  `toml:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `toml:"metrics" yaml:"metrics"`
	Export    ExportConfig    `toml:"export" yaml:"export"`
	Shutdown  ShutdownConfig  `toml:"shutdown" yaml:"shutdown"`
}

// TargetConfig selects the window to record
type TargetConfig struct {
	Window   string `toml:"window" yaml:"window"`     // case-insensitive title substring
	Provider string `toml:"provider" yaml:"provider"` // wmctrl, static
}

// OutputConfig contains the recording destination
type OutputConfig struct {
	Path string `toml:"path" yaml:"path"`
}

// CaptureConfig contains capture source settings
type CaptureConfig struct {
	Element    string `toml:"element" yaml:"element"` // auto, d3d11screencapturesrc, ximagesrc, videotestsrc
	ShowCursor bool   `toml:"show_cursor" yaml:"show_cursor"`
	Width      int    `toml:"width" yaml:"width"`   // test source only
	Height     int    `toml:"height" yaml:"height"` // test source only
}

// RateConfig limits the units entering the fan-out
type RateConfig struct {
	MaxFPS int `toml:"max_fps" yaml:"max_fps"`
}

// BuffersConfig contains the bounded buffer of each branch
type BuffersConfig struct {
	Raw    BufferConfig `toml:"raw" yaml:"raw"`
	Encode BufferConfig `toml:"encode" yaml:"encode"`
}

// BufferConfig is one bounded buffer
type BufferConfig struct {
	Capacity     int    `toml:"capacity" yaml:"capacity"`
	Leaky        string `toml:"leaky" yaml:"leaky"` // block, drop-newest, drop-oldest
	LowWatermark int    `toml:"low_watermark" yaml:"low_watermark"`
}

// InferenceConfig fixes the frames handed to the analysis consumer
type InferenceConfig struct {
	Format string `toml:"format" yaml:"format"` // RGB, RGBA, BGRA
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
}

// EncodeConfig contains encoder and container settings
type EncodeConfig struct {
	Element          string `toml:"element" yaml:"element"`
	Profile          string `toml:"profile" yaml:"profile"` // baseline, main, high
	BitrateKbps      int    `toml:"bitrate_kbps" yaml:"bitrate_kbps"`
	KeyframeInterval int    `toml:"keyframe_interval" yaml:"keyframe_interval"`
	Tune             string `toml:"tune" yaml:"tune"`
	Width            int    `toml:"width" yaml:"width"`
	Height           int    `toml:"height" yaml:"height"`
	Container        string `toml:"container" yaml:"container"` // quicktime, mp4, matroska
}

// MetricsConfig contains the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // empty disables the endpoint
}

// ExportConfig contains the optional raw-frame export
type ExportConfig struct {
	Path string `toml:"path" yaml:"path"` // file or named pipe; empty disables export
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	DrainTimeoutS int `toml:"drain_timeout_s" yaml:"drain_timeout_s"`
}

// DrainTimeout returns the drain timeout as a duration.
func (s ShutdownConfig) DrainTimeout() time.Duration {
	return time.Duration(s.DrainTimeoutS) * time.Second
}

// Default returns the reference configuration: record the first window whose
// title contains "firefox" into test.mp4.
func Default() *Config {
	return &Config{
		Target:  TargetConfig{Window: "firefox", Provider: "wmctrl"},
		Output:  OutputConfig{Path: "test.mp4"},
		Backend: "gstreamer",
		Capture: CaptureConfig{Element: "auto"},
		Rate:    RateConfig{MaxFPS: 20},
		Buffers: BuffersConfig{
			Raw:    BufferConfig{Capacity: 200, Leaky: "block"},
			Encode: BufferConfig{Capacity: 200, Leaky: "block"},
		},
		Inference: InferenceConfig{Format: "RGB", Width: 192, Height: 192},
		Encode: EncodeConfig{
			Element:          "x264enc",
			Profile:          "main",
			BitrateKbps:      2048,
			KeyframeInterval: 40,
			Tune:             "zerolatency",
			Width:            640,
			Height:           480,
			Container:        "quicktime",
		},
		Logging:  logging.Config{Level: "info", Format: "text"},
		Shutdown: ShutdownConfig{DrainTimeoutS: 10},
	}
}

// Load reads a TOML (.toml) or YAML (.yaml, .yml) file over the defaults
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q (must be .toml, .yaml or .yml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
