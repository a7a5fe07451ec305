package windowrecorder

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// Option configures a Recorder.
type Option func(*Recorder)

// WithConfig replaces the default configuration.
func WithConfig(cfg *Config) Option {
	return func(r *Recorder) { r.cfg = cfg }
}

// WithProvider sets the window provider. Defaults to the one named in the
// configuration.
func WithProvider(p Provider) Option {
	return func(r *Recorder) { r.provider = p }
}

// WithBackend sets the media backend. Defaults to the one named in the
// configuration.
func WithBackend(b Backend) Option {
	return func(r *Recorder) { r.backend = b }
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// WithFrameHandler sets the frame-sink consumer. It runs on the raw branch
// streaming thread; sample data is only valid until it returns.
func WithFrameHandler(fn func(*Sample) Flow) Option {
	return func(r *Recorder) { r.handler = probe.Consumer(fn) }
}

// WithRegistry registers the recorder metrics on reg.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) { r.registry = reg }
}

// WithEvents publishes overruns, state transitions, warnings and runtime
// errors on bus.
func WithEvents(bus *EventBus) Option {
	return func(r *Recorder) { r.bus = bus }
}
