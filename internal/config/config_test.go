package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "firefox", cfg.Target.Window)
	assert.Equal(t, "test.mp4", cfg.Output.Path)
	assert.Equal(t, 10*time.Second, cfg.Shutdown.DrainTimeout())
}

func TestDefaultMatchesReferenceTopology(t *testing.T) {
	opts, err := Default().GraphOptions()
	require.NoError(t, err)

	want := graph.DefaultOptions()
	if diff := cmp.Diff(want, opts); diff != "" {
		t.Errorf("default graph options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "recorder.toml", `
backend = "sim"

[target]
window = "terminal"

[output]
path = "/tmp/out.mkv"

[buffers.raw]
capacity = 8
leaky = "drop-oldest"

[encode]
profile = "high"
container = "matroska"

[shutdown]
drain_timeout_s = 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sim", cfg.Backend)
	assert.Equal(t, "terminal", cfg.Target.Window)
	assert.Equal(t, 3*time.Second, cfg.Shutdown.DrainTimeout())
	// untouched fields keep their defaults
	assert.Equal(t, 20, cfg.Rate.MaxFPS)
	assert.Equal(t, 2048, cfg.Encode.BitrateKbps)

	opts, err := cfg.GraphOptions()
	require.NoError(t, err)
	assert.Equal(t, backpressure.Policy{Capacity: 8, Leaky: backpressure.DropOldest}, opts.RawBuffer)
	assert.Equal(t, graph.ContainerMatroska, opts.Mux.Container)
	assert.Equal(t, graph.ProfileHigh, opts.Encode.Profile)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "recorder.yaml", `
target:
  window: editor
rate:
  max_fps: 10
inference:
  format: BGRA
  width: 224
  height: 224
logging:
  level: "4"
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Rate.MaxFPS)
	assert.Equal(t, "json", cfg.Logging.Format)

	opts, err := cfg.GraphOptions()
	require.NoError(t, err)
	assert.Equal(t, graph.FrameSinkConfig{Format: graph.FormatBGRA, Width: 224, Height: 224}, opts.FrameSink)
	assert.Equal(t, graph.ConvertConfig{Format: graph.FormatBGRA}, opts.RawConvert)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "recorder.json", `{}`))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, "bad.toml", `rate = [`))
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"empty window", func(c *Config) { c.Target.Window = " " }, "target.window"},
		{"bad provider", func(c *Config) { c.Target.Provider = "xdotool" }, "target.provider"},
		{"empty output", func(c *Config) { c.Output.Path = "" }, "output.path"},
		{"bad backend", func(c *Config) { c.Backend = "ffmpeg" }, "backend"},
		{"rate too high", func(c *Config) { c.Rate.MaxFPS = 1000 }, "rate.max_fps"},
		{"bad leaky", func(c *Config) { c.Buffers.Encode.Leaky = "sometimes" }, "buffers.encode"},
		{"zero capacity", func(c *Config) { c.Buffers.Raw.Capacity = 0 }, "buffers.raw"},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, "logging"},
		{"bad profile", func(c *Config) { c.Encode.Profile = "extreme" }, "unsupported profile"},
		{"I420 frames", func(c *Config) { c.Inference.Format = "I420" }, "frame sink format"},
		{"bad container", func(c *Config) { c.Encode.Container = "avi" }, "unsupported container"},
		{"negative drain", func(c *Config) { c.Shutdown.DrainTimeoutS = -1 }, "drain_timeout_s"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestCaptureElement(t *testing.T) {
	assert.Equal(t, graph.CaptureTestVideo, CaptureConfig{Element: graph.CaptureTestVideo}.CaptureElement())
	auto := CaptureConfig{Element: "auto"}.CaptureElement()
	assert.Contains(t, []string{graph.CaptureD3D11, graph.CaptureXImage}, auto)
}
