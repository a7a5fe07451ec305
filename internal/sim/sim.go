// Package sim is an in-process graph backend.
//
// It honours the same contract as the GStreamer backend with plain
// goroutines: the capture source runs on its own streaming goroutine and
// every bounded buffer starts a new one, so work between two buffers runs
// synchronously on the goroutine that pushed it. Frames are synthetic, the
// encoder passes pixels through and the mux writes a msgpack record stream.
// It is used for tests and dry runs.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// Options configures the simulated media framework.
type Options struct {
	// Width/Height of the synthetic capture frames (default 320x240)
	Width  int
	Height int
	// SourceRate is the capture rate before rate limiting (default 30/s)
	SourceRate int
	// Faults maps a node name to the error message it posts once it has
	// accepted FaultAfter units
	Faults     map[string]string
	FaultAfter int
	Logger     *slog.Logger
}

// Backend creates simulated graph instances.
type Backend struct {
	opts Options
}

// New returns a simulated backend.
func New(opts Options) *Backend {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 320, 240
	}
	if opts.SourceRate <= 0 {
		opts.SourceRate = 30
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Backend{opts: opts}
}

// Name returns "sim".
func (b *Backend) Name() string { return "sim" }

// NewInstance allocates an empty instance.
func (b *Backend) NewInstance(graphID string) (graph.Instance, error) {
	ctx, cancel := context.WithCancel(context.Background())
	return &Instance{
		id:     graphID,
		opts:   b.opts,
		logger: b.opts.Logger.With("graph_id", graphID),
		byNode: make(map[*graph.Node]*element),
		events: make(chan graph.Event, 64),
		eos:    make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// errFlushing unwinds a streaming goroutine that was stopped while blocked.
var errFlushing = errors.New("flushing")

// stageError is a failure posted by a node.
type stageError struct {
	node    string
	message string
	debug   string
}

func (e *stageError) Error() string { return e.node + ": " + e.message }

// Instance is one simulated graph.
type Instance struct {
	id     string
	opts   Options
	logger *slog.Logger

	elems  []*element
	byNode map[*graph.Node]*element
	source *element
	queues []*queue
	files  []*fileSink

	sinks     int
	sinksDone atomic.Int32

	events chan graph.Event

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	// stream is cancelled as soon as one streaming goroutine fails
	stream  context.Context
	playing atomic.Bool
	eos     chan struct{}
	eosOnce sync.Once

	closeOnce sync.Once
}

// Create allocates the simulated stage for n.
func (i *Instance) Create(n *graph.Node) error {
	e := &element{inst: i, node: n, fault: i.opts.Faults[n.Name()]}
	for _, p := range n.Outputs() {
		e.outs = append(e.outs, &pad{port: p})
	}
	if in := n.Input(); in != nil {
		e.in = &pad{port: in}
	}

	switch cfg := n.Config().(type) {
	case graph.CaptureConfig:
		if i.source != nil {
			return fmt.Errorf("sim: second capture source %s", n.Name())
		}
		i.source = e
	case graph.RateConfig:
		e.chain = rateChain(cfg.MaxRate)
	case graph.FanOutConfig:
		e.chain = fanOutChain
	case graph.QueueConfig:
		q := newQueue(e, cfg.Policy)
		i.queues = append(i.queues, q)
		e.chain = q.push
	case graph.ConvertConfig:
		e.chain = convertChain(cfg.Format)
	case graph.ScaleConfig:
		e.chain = scaleChain(cfg.Width, cfg.Height)
	case graph.EncodeConfig:
		e.chain = (&encoder{cfg: cfg}).chain
	case graph.MuxConfig:
		e.chain = (&muxer{cfg: cfg}).chain
	case graph.FileSinkConfig:
		fs := &fileSink{path: cfg.Path}
		i.files = append(i.files, fs)
		e.chain = fs.chain
		i.sinks++
	case graph.FrameSinkConfig:
		e.chain = (&frameSink{cfg: cfg}).chain
		i.sinks++
	default:
		return fmt.Errorf("sim: unsupported node kind %s", n.Kind())
	}

	i.elems = append(i.elems, e)
	i.byNode[n] = e
	return nil
}

// Link connects two created elements. Request ports get their pad here.
func (i *Instance) Link(l *graph.Link) error {
	from, ok := i.byNode[l.From.Node()]
	if !ok {
		return fmt.Errorf("sim: %s was not created", l.From.Node().Name())
	}
	to, ok := i.byNode[l.To.Node()]
	if !ok {
		return fmt.Errorf("sim: %s was not created", l.To.Node().Name())
	}

	p := from.outPad(l.From)
	if p == nil {
		p = &pad{port: l.From}
		from.outs = append(from.outs, p)
	}
	if p.peer != nil {
		return fmt.Errorf("sim: %s already linked", l.From.Path())
	}
	p.peer = to
	return nil
}

// InstallProbe enables probe evaluation on port.
func (i *Instance) InstallProbe(port *graph.Port) error {
	e, ok := i.byNode[port.Node()]
	if !ok {
		return fmt.Errorf("sim: %s was not created", port.Node().Name())
	}
	if e.in != nil && e.in.port == port {
		e.in.probed.Store(true)
		return nil
	}
	if p := e.outPad(port); p != nil {
		p.probed.Store(true)
		return nil
	}
	return fmt.Errorf("sim: unknown port %s", port.Path())
}

// Play opens the file sinks and starts the streaming goroutines.
func (i *Instance) Play() error {
	if i.source == nil {
		return errors.New("sim: graph has no capture source")
	}
	if !i.playing.CompareAndSwap(false, true) {
		return errors.New("sim: already playing")
	}

	i.post(graph.Event{Kind: graph.EventStateChanged, Source: "pipeline", From: "null", To: "ready"})

	for _, fs := range i.files {
		if err := fs.open(); err != nil {
			i.playing.Store(false)
			return err
		}
	}
	i.post(graph.Event{Kind: graph.EventStateChanged, Source: "pipeline", From: "ready", To: "paused"})

	g, gctx := errgroup.WithContext(i.ctx)
	i.group = g
	i.stream = gctx
	for _, q := range i.queues {
		q := q
		g.Go(func() error { return i.report(q.run(gctx)) })
	}
	g.Go(func() error { return i.report(i.runSource(gctx)) })

	i.post(graph.Event{Kind: graph.EventStateChanged, Source: "pipeline", From: "paused", To: "playing"})
	i.logger.Debug("sim: instance playing", "elements", len(i.elems), "queues", len(i.queues))
	return nil
}

// SendEOS asks the source to push end-of-stream after its current unit.
func (i *Instance) SendEOS() bool {
	if !i.playing.Load() {
		return false
	}
	sent := false
	i.eosOnce.Do(func() {
		close(i.eos)
		sent = true
	})
	return sent
}

// Events returns the ordered event channel.
func (i *Instance) Events() <-chan graph.Event { return i.events }

// Close stops all streaming goroutines and discards unfinished output.
func (i *Instance) Close() error {
	i.closeOnce.Do(func() {
		i.playing.Store(false)
		i.cancel()
		if i.group != nil {
			_ = i.group.Wait() // stage errors were already posted
		}
		for _, fs := range i.files {
			if err := fs.abort(); err != nil {
				i.logger.Warn("sim: failed to discard unfinished output", "path", fs.path, "error", err)
			}
		}
		i.logger.Debug("sim: instance closed")
	})
	return nil
}

// report turns a streaming goroutine result into a runtime event.
func (i *Instance) report(err error) error {
	if err == nil || errors.Is(err, errFlushing) {
		return nil
	}
	var se *stageError
	if !errors.As(err, &se) {
		se = &stageError{node: "pipeline", message: err.Error()}
	}
	i.logger.Debug("sim: stage failed", "node", se.node, "error", se.message)
	i.post(graph.Event{Kind: graph.EventError, Source: se.node, Message: se.message, Debug: se.debug})
	return err
}

// sinkEOS records end-of-stream at one sink; the last one posts EOS.
func (i *Instance) sinkEOS() {
	if int(i.sinksDone.Add(1)) == i.sinks {
		i.post(graph.Event{Kind: graph.EventEOS, Source: "pipeline"})
	}
}

func (i *Instance) post(ev graph.Event) {
	select {
	case i.events <- ev:
	case <-i.ctx.Done():
	}
}
