package windowrecorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/events"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/gstreamer"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/inference"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/metrics"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/sim"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

// Recorder runs one recording: resolve the window, build the graph, play it
// until end of stream or failure.
//
// A Recorder is single-use. RequestShutdown and Stats are safe from any
// goroutine.
type Recorder struct {
	cfg      *config.Config
	provider target.Provider
	backend  graph.Backend
	logger   *slog.Logger
	handler  probe.Consumer
	registry *prometheus.Registry
	bus      *events.Bus

	metrics *metrics.Collector
	meter   *cadence.Meter
	mailbox *inference.Mailbox

	started  atomic.Bool
	overruns atomic.Uint64

	mu      sync.Mutex
	g       *graph.Graph
	ctrl    *lifecycle.Controller
	pending bool // shutdown requested before the controller existed
	done    bool
}

// New validates the configuration and prepares a Recorder. Nothing is
// resolved or allocated until Run.
func New(opts ...Option) (*Recorder, error) {
	r := &Recorder{}
	for _, opt := range opts {
		opt(r)
	}
	if r.cfg == nil {
		r.cfg = config.Default()
	}
	if err := config.Validate(r.cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.bus == nil {
		r.bus = events.NewWithLogger(r.logger)
	}
	if r.provider == nil {
		r.provider = providerFor(r.cfg)
	}

	r.metrics = metrics.New(r.registry)
	r.meter = cadence.NewMeter(cadence.DefaultWindow)
	if r.cfg.Export.Path != "" {
		r.mailbox = inference.NewMailbox()
	}
	return r, nil
}

// providerFor returns the provider named in cfg. The static provider lists
// a single window titled after the selector, for test-pattern dry runs.
func providerFor(cfg *config.Config) target.Provider {
	if cfg.Target.Provider == "static" {
		return target.Static{{Title: cfg.Target.Window}}
	}
	return target.WMCtrl{}
}

func newBackend(name string, logger *slog.Logger) (graph.Backend, error) {
	switch name {
	case "sim":
		return sim.New(sim.Options{Logger: logger}), nil
	default:
		return gstreamer.New(gstreamer.Options{Logger: logger})
	}
}

// Run resolves the target window, builds the graph and plays it until it
// terminates. It blocks; call RequestShutdown from another goroutine to end
// the recording gracefully. Cancelling ctx stops immediately and the output
// is discarded.
func (r *Recorder) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("recorder: already started")
	}
	defer r.finish()

	desc, err := target.Resolve(ctx, r.provider, r.cfg.Target.Window)
	if err != nil {
		r.logger.Error("recorder: window not resolved", "window", r.cfg.Target.Window, "error", err)
		return err
	}
	r.logger.Info("recorder: window resolved",
		"window", r.cfg.Target.Window,
		"title", desc.Title,
		"handle", fmt.Sprintf("0x%x", desc.Handle),
		"pid", desc.PID,
		"path", desc.ProcessPath,
	)

	if r.backend == nil {
		b, err := newBackend(r.cfg.Backend, r.logger)
		if err != nil {
			return &graph.ConstructionError{Op: "backend", Err: err}
		}
		r.backend = b
	}

	opts, err := r.cfg.GraphOptions()
	if err != nil {
		return &graph.ConstructionError{Op: "validate", Err: err}
	}
	g, err := graph.NewBuilder(r.backend, opts, r.logger).Build(desc, r.cfg.Output.Path)
	if err != nil {
		r.logger.Error("recorder: graph construction failed", "error", err)
		return err
	}

	if err := r.instrument(g); err != nil {
		g.Close()
		return &graph.ConstructionError{Op: "probe", Err: err}
	}

	ctrl, err := lifecycle.New(g, lifecycle.Options{
		Logger:       r.logger,
		Events:       r.bus,
		DrainTimeout: r.cfg.Shutdown.DrainTimeout(),
	})
	if err != nil {
		g.Close()
		return err
	}

	unsub := r.metrics.Attach(r.bus)
	defer unsub()

	exportDone, err := r.startExport(ctx)
	if err != nil {
		g.Close()
		return &graph.ConstructionError{Op: "export", Err: err}
	}

	r.mu.Lock()
	r.g, r.ctrl = g, ctrl
	pending := r.pending
	r.mu.Unlock()
	if pending {
		// the handle holds it until the graph plays
		r.logger.Info("recorder: shutdown requested before the graph was built")
		ctrl.ShutdownHandle().RequestShutdown()
	}

	if err := ctrl.Start(); err != nil {
		r.stopExport(exportDone)
		return err
	}

	err = ctrl.Run(ctx)
	r.stopExport(exportDone)
	r.report(err)
	return err
}

// instrument attaches the frame counters, the cadence meter, the overrun
// handler and the frame-sink consumer.
func (r *Recorder) instrument(g *graph.Graph) error {
	h := g.Handles

	for _, port := range []*graph.Port{h.Rate.Output(), h.FrameSink.Input(), h.Encoder.Output()} {
		if err := g.AttachProbe(port, r.metrics.CountFrames(port.Path())); err != nil {
			return err
		}
	}
	if err := g.AttachProbe(h.FrameSink.Input(), r.meter.Probe()); err != nil {
		return err
	}

	g.OnOverrun(func(s backpressure.Signal) {
		r.overruns.Add(1)
		r.logger.Warn("recorder: buffer overrun",
			"buffer", s.Buffer,
			"capacity", s.Capacity,
			"episode", s.Episode,
		)
		r.bus.Publish(events.OverrunEvent{
			GraphID:  g.ID,
			Buffer:   s.Buffer,
			Capacity: s.Capacity,
			Episode:  s.Episode,
			At:       s.At,
		})
	})

	var consumers []probe.Consumer
	if r.mailbox != nil {
		consumers = append(consumers, r.mailbox.Consumer())
	}
	if r.handler != nil {
		consumers = append(consumers, r.handler)
	}
	switch len(consumers) {
	case 0:
	case 1:
		g.SetFrameConsumer(consumers[0])
	default:
		g.SetFrameConsumer(chainConsumers(consumers))
	}
	return nil
}

// chainConsumers delivers each sample to every consumer in order. The first
// flow other than FlowOK stops the chain and is returned.
func chainConsumers(consumers []probe.Consumer) probe.Consumer {
	return func(s *probe.Sample) probe.Flow {
		for _, c := range consumers {
			if flow := c(s); flow != probe.FlowOK {
				return flow
			}
		}
		return probe.FlowOK
	}
}

// startExport opens the export destination and starts streaming the mailbox
// to it. The returned channel is closed once the exporter stopped.
func (r *Recorder) startExport(ctx context.Context) (<-chan struct{}, error) {
	if r.mailbox == nil {
		return nil, nil
	}
	f, err := inference.OpenExport(r.cfg.Export.Path)
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	exporter := inference.NewExporter(r.mailbox, f, r.logger)
	go func() {
		defer close(done)
		defer f.Close()
		// A failed export does not stop the recording
		_ = exporter.Run(ctx)
	}()
	r.logger.Info("recorder: exporting frames", "path", r.cfg.Export.Path)
	return done, nil
}

func (r *Recorder) stopExport(done <-chan struct{}) {
	if done == nil {
		return
	}
	r.mailbox.Close()
	<-done
}

// report logs the cadence of the raw-frame branch and checks the output.
func (r *Recorder) report(runErr error) {
	stats := r.meter.Snapshot()
	r.metrics.SetFPS("framesink", stats.FPSMean)
	r.logger.Info("recorder: frame cadence",
		"frames", stats.Frames,
		"fps_mean", fmt.Sprintf("%.2f", stats.FPSMean),
		"fps_stddev", fmt.Sprintf("%.2f", stats.FPSStdDev),
		"jitter_max", stats.JitterMax,
		"stable", stats.IsStable,
	)

	if runErr != nil {
		return
	}
	info, err := os.Stat(r.cfg.Output.Path)
	if err != nil {
		r.logger.Warn("recorder: output missing after end of stream", "path", r.cfg.Output.Path, "error", err)
		return
	}
	r.metrics.SetOutputBytes(info.Size())
	if info.Size() == 0 {
		r.logger.Warn("recorder: output is empty", "path", r.cfg.Output.Path)
		return
	}
	r.logger.Info("recorder: output written", "path", r.cfg.Output.Path, "bytes", info.Size())
}

func (r *Recorder) finish() {
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}

// RequestShutdown asks the recording to end gracefully: end-of-stream is
// injected at the capture source and both branches drain before the file is
// finalized. A request made before the graph plays is applied once it does.
// It never blocks and reports whether the request was taken; requests after
// the recording ended, and repeated requests, return false.
func (r *Recorder) RequestShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return false
	}
	if r.ctrl == nil {
		if r.pending {
			return false
		}
		r.pending = true
		return true
	}
	return r.ctrl.ShutdownHandle().RequestShutdown()
}

// State returns the lifecycle state, or Constructed before the graph exists.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ctrl == nil {
		if r.done {
			return lifecycle.Terminated
		}
		return lifecycle.Constructed
	}
	return r.ctrl.State()
}

// Stats returns a snapshot of the recording counters.
func (r *Recorder) Stats() Stats {
	s := Stats{
		State:    r.State().String(),
		Overruns: r.overruns.Load(),
		Cadence:  r.meter.Snapshot(),
	}
	if r.mailbox != nil {
		s.Mailbox = r.mailbox.Stats()
	}

	r.mu.Lock()
	g := r.g
	r.mu.Unlock()
	if g != nil {
		s.GraphID = g.ID
		s.Target = g.Target
		s.Frames = g.Handles.FrameSink.FrameSink().Delivered()
	}
	return s
}

// MetricsHandler serves the recorder metrics in the Prometheus text format.
func (r *Recorder) MetricsHandler() http.Handler {
	return r.metrics.Handler()
}

// Windows lists the windows known to the configured provider.
func (r *Recorder) Windows(ctx context.Context) ([]Window, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.provider.Enumerate(ctx)
}
