package graph

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

// Options holds the per-node configuration of the fixed topology.
type Options struct {
	// Capture is completed with the handle and title of the resolved target
	Capture CaptureConfig
	Rate    RateConfig
	FanOut  FanOutConfig

	RawBuffer  backpressure.Policy
	RawConvert ConvertConfig
	// FrameSink also sets the raw-branch scale restriction
	FrameSink FrameSinkConfig

	EncodeBuffer  backpressure.Policy
	EncodeConvert ConvertConfig
	EncodeScale   ScaleConfig
	Encode        EncodeConfig
	Mux           MuxConfig
}

// DefaultOptions returns the reference topology: 20 units/s, RGB 192x192 to
// the frame sink, H.264 main profile at 640x480 in a QuickTime container.
func DefaultOptions() Options {
	capture := CaptureXImage
	if runtime.GOOS == "windows" {
		capture = CaptureD3D11
	}
	return Options{
		Capture:       CaptureConfig{Element: capture},
		Rate:          RateConfig{MaxRate: 20},
		FanOut:        FanOutConfig{MaxOutputs: 2},
		RawBuffer:     backpressure.DefaultPolicy(),
		RawConvert:    ConvertConfig{Format: FormatRGB},
		FrameSink:     FrameSinkConfig{Format: FormatRGB, Width: 192, Height: 192},
		EncodeBuffer:  backpressure.DefaultPolicy(),
		EncodeConvert: ConvertConfig{Format: FormatI420},
		EncodeScale:   ScaleConfig{Width: 640, Height: 480},
		Encode: EncodeConfig{
			Element:          "x264enc",
			Codec:            "h264",
			Profile:          ProfileMain,
			BitrateKbps:      2048,
			KeyframeInterval: 40,
			Tune:             "zerolatency",
		},
		Mux: MuxConfig{Container: ContainerQuickTime},
	}
}

// Builder assembles graphs on a backend.
type Builder struct {
	backend Backend
	opts    Options
	logger  *slog.Logger
}

// NewBuilder creates a builder. A nil logger uses slog.Default().
func NewBuilder(backend Backend, opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{backend: backend, opts: opts, logger: logger}
}

// Build assembles the fixed topology for target t writing to outputPath.
//
// Every node config is validated before the backend allocates anything. Any
// later failure closes the partially built instance and returns a
// *ConstructionError; no partial graph is ever returned.
func (b *Builder) Build(t target.Descriptor, outputPath string) (*Graph, error) {
	g := &Graph{
		ID:         uuid.NewString(),
		Target:     t,
		OutputPath: outputPath,
	}
	g.plan(b.opts)

	for _, n := range g.nodes {
		if err := n.config.Validate(); err != nil {
			return nil, &ConstructionError{Node: n.name, Op: "validate", Err: err}
		}
	}

	inst, err := b.backend.NewInstance(g.ID)
	if err != nil {
		return nil, &ConstructionError{Op: "instance", Err: err}
	}
	g.inst = inst

	if err := b.realize(g); err != nil {
		if cerr := inst.Close(); cerr != nil {
			b.logger.Warn("graph: failed to release partial graph", "graph_id", g.ID, "error", cerr)
		}
		return nil, err
	}

	b.logger.Info("graph: built",
		"graph_id", g.ID,
		"backend", b.backend.Name(),
		"target", t.Title,
		"output", outputPath,
		"nodes", len(g.nodes),
		"links", len(g.links),
	)
	return g, nil
}

func (b *Builder) realize(g *Graph) error {
	for _, n := range g.nodes {
		if err := g.inst.Create(n); err != nil {
			return &ConstructionError{Node: n.name, Op: "create", Err: err}
		}
		b.logger.Debug("graph: node created", "graph_id", g.ID, "node", n.name)
	}

	h := &g.Handles

	// Primary path
	if err := g.link(h.Capture.Output(), h.Rate.Input()); err != nil {
		return err
	}
	if err := g.link(h.Rate.Output(), h.FanOut.Input()); err != nil {
		return err
	}

	// Branch chains
	for _, chain := range [][]*Node{
		{h.RawQueue, h.RawConvert, h.RawScale, h.FrameSink},
		{h.EncodeQueue, h.EncodeConvert, h.EncodeScale, h.Encoder, h.Mux, h.FileSink},
	} {
		for i := 0; i+1 < len(chain); i++ {
			if err := g.link(chain[i].Output(), chain[i+1].Input()); err != nil {
				return err
			}
		}
	}

	// Fan-out ports: raw-frame branch first
	for _, head := range []*Node{h.RawQueue, h.EncodeQueue} {
		out, err := h.FanOut.requestOutput()
		if err != nil {
			return &ConstructionError{Node: h.FanOut.name, Op: "request-port", Err: err}
		}
		if err := g.link(out, head.Input()); err != nil {
			return err
		}
	}

	if err := ValidateTopology(g); err != nil {
		return &ConstructionError{Op: "topology", Err: err}
	}
	return nil
}

func (g *Graph) link(from, to *Port) error {
	l := &Link{From: from, To: to}
	if from.peer != nil || to.peer != nil {
		return &ConstructionError{Node: from.node.name, Op: "link", Err: fmt.Errorf("%s: port already linked", l)}
	}
	if err := g.inst.Link(l); err != nil {
		return &ConstructionError{Node: from.node.name, Op: "link", Err: fmt.Errorf("%s: %w", l, err)}
	}
	from.peer = to
	to.peer = from
	g.links = append(g.links, l)
	return nil
}

// plan creates the node structs in construction order. Nothing touches the
// backend here.
func (g *Graph) plan(opts Options) {
	counters := map[NodeKind]int{}
	add := func(cfg NodeConfig) *Node {
		k := cfg.Kind()
		n := &Node{
			graph:  g,
			name:   fmt.Sprintf("%s-%d", k, counters[k]),
			kind:   k,
			config: cfg,
		}
		counters[k]++
		if k != KindCapture {
			n.addPort("sink", In)
		}
		if !k.IsSink() && k != KindFanOut {
			n.addPort("src", Out)
		}
		switch c := cfg.(type) {
		case QueueConfig:
			n.monitor = backpressure.NewMonitor(n.name, c.Policy, g.emitOverrun)
		case FrameSinkConfig:
			n.sink = &probe.Sink{}
		}
		g.nodes = append(g.nodes, n)
		return n
	}

	capture := opts.Capture
	capture.Handle = g.Target.Handle
	capture.Title = g.Target.Title

	h := &g.Handles
	h.Capture = add(capture)
	h.Rate = add(opts.Rate)
	h.FanOut = add(opts.FanOut)

	h.RawQueue = add(QueueConfig{Policy: opts.RawBuffer})
	h.RawConvert = add(opts.RawConvert)
	h.RawScale = add(ScaleConfig{Width: opts.FrameSink.Width, Height: opts.FrameSink.Height})
	h.FrameSink = add(opts.FrameSink)

	h.EncodeQueue = add(QueueConfig{Policy: opts.EncodeBuffer})
	h.EncodeConvert = add(opts.EncodeConvert)
	h.EncodeScale = add(opts.EncodeScale)
	h.Encoder = add(opts.Encode)
	h.Mux = add(opts.Mux)
	h.FileSink = add(FileSinkConfig{Path: g.OutputPath})

	// Sample hints for probes
	hint := func(p *Port, format string, w, ht int) {
		p.Format, p.Width, p.Height = format, w, ht
	}
	hint(h.Capture.Output(), FormatBGRA, capture.Width, capture.Height)
	hint(h.RawConvert.Output(), opts.RawConvert.Format, 0, 0)
	hint(h.RawScale.Output(), opts.FrameSink.Format, opts.FrameSink.Width, opts.FrameSink.Height)
	hint(h.EncodeConvert.Output(), opts.EncodeConvert.Format, 0, 0)
	hint(h.EncodeScale.Output(), opts.EncodeConvert.Format, opts.EncodeScale.Width, opts.EncodeScale.Height)
	hint(h.Encoder.Output(), "H264", opts.EncodeScale.Width, opts.EncodeScale.Height)
}
