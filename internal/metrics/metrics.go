// Package metrics exposes recorder telemetry as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/events"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

const namespace = "window_recorder"

// Pipeline state gauge values
var stateValues = map[string]float64{
	"constructed": 0,
	"playing":     1,
	"draining":    2,
	"terminated":  3,
}

// Collector holds the recorder metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	overruns      *prometheus.CounterVec
	frames        *prometheus.CounterVec
	runtimeErrors *prometheus.CounterVec
	warnings      *prometheus.CounterVec
	shutdowns     prometheus.Counter
	state         prometheus.Gauge
	fps           *prometheus.GaugeVec
	outputBytes   prometheus.Gauge
}

// New creates a collector. A nil registry gets a fresh one.
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		overruns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_overruns_total",
			Help:      "Saturation episodes per bounded buffer",
		}, []string{"buffer"}),
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Units observed per probed port",
		}, []string{"port"}),
		runtimeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runtime_errors_total",
			Help:      "Runtime errors per node and category",
		}, []string{"node", "category"}),
		warnings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Backend warnings per node",
		}, []string{"node"}),
		shutdowns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shutdown_requests_total",
			Help:      "Accepted graceful shutdown requests",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "Lifecycle state (0=constructed, 1=playing, 2=draining, 3=terminated)",
		}),
		fps: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cadence_fps",
			Help:      "Mean frame rate measured at a port",
		}, []string{"port"}),
		outputBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output_bytes",
			Help:      "Size of the finalized output file",
		}),
	}
}

// Registry returns the registry the metrics live on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Attach subscribes the collector to bus and returns the unsubscribe func.
func (c *Collector) Attach(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.OverrunEvent) {
			c.overruns.WithLabelValues(e.Buffer).Inc()
		}),
		bus.Subscribe(func(e events.PipelineStateEvent) {
			c.SetState(e.To)
		}),
		bus.Subscribe(func(e events.RuntimeErrorEvent) {
			c.runtimeErrors.WithLabelValues(e.Source, e.Category).Inc()
		}),
		bus.Subscribe(func(e events.WarningEvent) {
			c.warnings.WithLabelValues(e.Source).Inc()
		}),
		bus.Subscribe(func(events.ShutdownRequestedEvent) {
			c.shutdowns.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// SetState sets the pipeline state gauge from a state name.
func (c *Collector) SetState(name string) {
	if v, ok := stateValues[name]; ok {
		c.state.Set(v)
	}
}

// CountFrames returns a probe counting every unit crossing port.
func (c *Collector) CountFrames(port string) probe.Func {
	counter := c.frames.WithLabelValues(port)
	return func(*probe.Sample) probe.Disposition {
		counter.Inc()
		return probe.Continue
	}
}

// SetFPS records the measured mean frame rate at port.
func (c *Collector) SetFPS(port string, fps float64) {
	c.fps.WithLabelValues(port).Set(fps)
}

// SetOutputBytes records the size of the finalized output.
func (c *Collector) SetOutputBytes(n int64) {
	c.outputBytes.Set(float64(n))
}
