package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/logging"
)

// Validate checks bounded ranges and fills in derived defaults.
// Node-level checks are repeated by the graph builder.
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Target.Window) == "" {
		return fmt.Errorf("target.window is required")
	}
	switch cfg.Target.Provider {
	case "", "wmctrl", "static":
	default:
		return fmt.Errorf("target.provider must be wmctrl or static, got %q", cfg.Target.Provider)
	}
	if strings.TrimSpace(cfg.Output.Path) == "" {
		return fmt.Errorf("output.path is required")
	}
	switch cfg.Backend {
	case "gstreamer", "sim":
	default:
		return fmt.Errorf("backend must be gstreamer or sim, got %q", cfg.Backend)
	}

	if cfg.Rate.MaxFPS < 1 || cfg.Rate.MaxFPS > 240 {
		return fmt.Errorf("rate.max_fps must be 1-240, got %d", cfg.Rate.MaxFPS)
	}
	for name, b := range map[string]BufferConfig{"raw": cfg.Buffers.Raw, "encode": cfg.Buffers.Encode} {
		if _, err := bufferPolicy(b); err != nil {
			return fmt.Errorf("buffers.%s: %w", name, err)
		}
	}
	if cfg.Shutdown.DrainTimeoutS < 0 {
		return fmt.Errorf("shutdown.drain_timeout_s must be >= 0")
	}
	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	opts, err := cfg.GraphOptions()
	if err != nil {
		return err
	}
	for _, c := range []graph.NodeConfig{opts.FrameSink, opts.EncodeScale, opts.Encode, opts.Mux} {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s: %w", c.Kind(), err)
		}
	}
	return nil
}

func bufferPolicy(b BufferConfig) (backpressure.Policy, error) {
	leaky, err := backpressure.ParseLeaky(b.Leaky)
	if err != nil {
		return backpressure.Policy{}, err
	}
	p := backpressure.Policy{Capacity: b.Capacity, Leaky: leaky, LowWatermark: b.LowWatermark}
	return p, p.Validate()
}

// CaptureElement resolves "auto" to the window capture element of the
// platform.
func (c CaptureConfig) CaptureElement() string {
	if c.Element != "" && c.Element != "auto" {
		return c.Element
	}
	if runtime.GOOS == "windows" {
		return graph.CaptureD3D11
	}
	return graph.CaptureXImage
}

// GraphOptions converts the configuration into graph builder options.
func (cfg *Config) GraphOptions() (graph.Options, error) {
	raw, err := bufferPolicy(cfg.Buffers.Raw)
	if err != nil {
		return graph.Options{}, fmt.Errorf("buffers.raw: %w", err)
	}
	enc, err := bufferPolicy(cfg.Buffers.Encode)
	if err != nil {
		return graph.Options{}, fmt.Errorf("buffers.encode: %w", err)
	}

	opts := graph.DefaultOptions()
	opts.Capture = graph.CaptureConfig{
		Element:    cfg.Capture.CaptureElement(),
		ShowCursor: cfg.Capture.ShowCursor,
		Width:      cfg.Capture.Width,
		Height:     cfg.Capture.Height,
	}
	opts.Rate = graph.RateConfig{MaxRate: cfg.Rate.MaxFPS}
	opts.RawBuffer = raw
	opts.RawConvert = graph.ConvertConfig{Format: cfg.Inference.Format}
	opts.FrameSink = graph.FrameSinkConfig{
		Format: cfg.Inference.Format,
		Width:  cfg.Inference.Width,
		Height: cfg.Inference.Height,
	}
	opts.EncodeBuffer = enc
	opts.EncodeScale = graph.ScaleConfig{Width: cfg.Encode.Width, Height: cfg.Encode.Height}
	opts.Encode = graph.EncodeConfig{
		Element:          cfg.Encode.Element,
		Codec:            "h264",
		Profile:          cfg.Encode.Profile,
		BitrateKbps:      cfg.Encode.BitrateKbps,
		KeyframeInterval: cfg.Encode.KeyframeInterval,
		Tune:             cfg.Encode.Tune,
	}
	opts.Mux = graph.MuxConfig{Container: cfg.Encode.Container}
	return opts, nil
}
