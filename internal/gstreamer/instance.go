package gstreamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// nodeElements is the element chain realizing one node.
type nodeElements struct {
	node  *graph.Node
	elems []*gst.Element
	// requested holds the tee request pad per output port
	requested map[*graph.Port]*gst.Pad
	appsink   *app.Sink
}

func (ne *nodeElements) first() *gst.Element { return ne.elems[0] }
func (ne *nodeElements) last() *gst.Element  { return ne.elems[len(ne.elems)-1] }

// Instance is one GStreamer pipeline.
type Instance struct {
	pipeline *gst.Pipeline
	logger   *slog.Logger

	nodes map[*graph.Node]*nodeElements
	// owner maps element names to the node they realize
	owner   map[string]string
	capture *gst.Element

	events chan graph.Event

	cancel    context.CancelFunc
	pumpDone  chan struct{}
	playing   atomic.Bool
	closeOnce sync.Once
}

func newInstance(pipeline *gst.Pipeline, logger *slog.Logger, eventBuffer int) *Instance {
	return &Instance{
		pipeline: pipeline,
		logger:   logger,
		nodes:    make(map[*graph.Node]*nodeElements),
		owner:    make(map[string]string),
		events:   make(chan graph.Event, eventBuffer),
	}
}

// Create instantiates, configures and adds the elements of n, and links the
// elements inside the node.
func (i *Instance) Create(n *graph.Node) error {
	specs, err := specsFor(n)
	if err != nil {
		return err
	}

	ne := &nodeElements{node: n, requested: make(map[*graph.Port]*gst.Pad)}
	for _, s := range specs {
		elem, err := i.makeElement(ne, s)
		if err != nil {
			return err
		}
		if err := i.pipeline.Add(elem); err != nil {
			return fmt.Errorf("failed to add %s: %w", s.Name, err)
		}
		ne.elems = append(ne.elems, elem)
		i.owner[s.Name] = n.Name()
	}
	if len(ne.elems) > 1 {
		if err := gst.ElementLinkMany(ne.elems...); err != nil {
			return fmt.Errorf("failed to link %s internals: %w", n.Name(), err)
		}
	}

	switch n.Kind() {
	case graph.KindCapture:
		i.capture = ne.first()
		i.addSourceProbe(n, ne.last())
	case graph.KindQueue:
		if err := i.watchQueue(n, ne.first()); err != nil {
			return err
		}
	case graph.KindFrameSink:
		i.bindFrameSink(n, ne.appsink)
	}

	i.nodes[n] = ne
	return nil
}

func (i *Instance) makeElement(ne *nodeElements, s elementSpec) (*gst.Element, error) {
	var elem *gst.Element
	if s.Factory == "appsink" {
		sink, err := app.NewAppSink()
		if err != nil {
			return nil, fmt.Errorf("failed to create appsink: %w", err)
		}
		if err := sink.SetProperty("name", s.Name); err != nil {
			return nil, fmt.Errorf("failed to name appsink: %w", err)
		}
		if s.Caps != "" {
			sink.SetCaps(gst.NewCapsFromString(s.Caps))
		}
		ne.appsink = sink
		elem = sink.Element
	} else {
		var err error
		elem, err = gst.NewElementWithName(s.Factory, s.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", s.Factory, err)
		}
		if s.Caps != "" {
			if err := elem.SetProperty("caps", gst.NewCapsFromString(s.Caps)); err != nil {
				return nil, fmt.Errorf("failed to set caps on %s: %w", s.Name, err)
			}
		}
	}

	for _, p := range s.Props {
		if err := elem.SetProperty(p.Name, p.Value); err != nil {
			return nil, fmt.Errorf("failed to set %s.%s: %w", s.Name, p.Name, err)
		}
	}
	i.logger.Debug("gstreamer: element created", "element", s.Factory, "name", s.Name)
	return elem, nil
}

// Link connects two nodes. Fan-out links request a new tee pad.
func (i *Instance) Link(l *graph.Link) error {
	from, ok := i.nodes[l.From.Node()]
	if !ok {
		return fmt.Errorf("%s was not created", l.From.Node().Name())
	}
	to, ok := i.nodes[l.To.Node()]
	if !ok {
		return fmt.Errorf("%s was not created", l.To.Node().Name())
	}

	if from.node.Kind() != graph.KindFanOut {
		if err := from.last().Link(to.first()); err != nil {
			return fmt.Errorf("failed to link %s: %w", l, err)
		}
		return nil
	}

	srcPad := from.last().GetRequestPad("src_%u")
	if srcPad == nil {
		return fmt.Errorf("failed to request a pad on %s", from.node.Name())
	}
	sinkPad := to.first().GetStaticPad("sink")
	if sinkPad == nil {
		return fmt.Errorf("failed to get sink pad of %s", to.node.Name())
	}
	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		return fmt.Errorf("failed to link %s: %v", l, ret)
	}
	from.requested[l.From] = srcPad
	i.logger.Debug("gstreamer: pads linked", "src_pad", srcPad.GetName(), "sink", to.node.Name())
	return nil
}

// InstallProbe adds a buffer probe on the pad realizing port.
func (i *Instance) InstallProbe(port *graph.Port) error {
	ne, ok := i.nodes[port.Node()]
	if !ok {
		return fmt.Errorf("%s was not created", port.Node().Name())
	}

	var pad *gst.Pad
	switch {
	case port.Direction() == graph.In:
		pad = ne.first().GetStaticPad("sink")
	case ne.node.Kind() == graph.KindFanOut:
		pad = ne.requested[port]
	default:
		pad = ne.last().GetStaticPad("src")
	}
	if pad == nil {
		return fmt.Errorf("no pad for %s", port.Path())
	}

	pad.AddProbe(gst.PadProbeTypeBuffer, func(p *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
		return runProbes(p, port, info)
	})
	return nil
}

// Play starts the bus pump and sets the pipeline to PLAYING.
func (i *Instance) Play() error {
	if i.capture == nil {
		return errors.New("pipeline has no capture source")
	}
	if !i.playing.CompareAndSwap(false, true) {
		return errors.New("pipeline already playing")
	}

	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	i.pumpDone = make(chan struct{})
	go func() {
		defer close(i.pumpDone)
		i.pumpBus(ctx)
	}()

	if err := i.pipeline.SetState(gst.StatePlaying); err != nil {
		i.playing.Store(false)
		return fmt.Errorf("failed to set pipeline to PLAYING: %w", err)
	}
	i.logger.Info("gstreamer: pipeline playing", "pipeline", i.pipeline.GetName())
	return nil
}

// SendEOS pushes an end-of-stream event into the capture source.
func (i *Instance) SendEOS() bool {
	if !i.playing.Load() {
		return false
	}
	ok := i.capture.SendEvent(gst.NewEOSEvent())
	i.logger.Debug("gstreamer: end of stream sent to capture source", "accepted", ok)
	return ok
}

// Events returns the bus event channel.
func (i *Instance) Events() <-chan graph.Event { return i.events }

// Close stops the bus pump and sets the pipeline to NULL.
func (i *Instance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.playing.Store(false)
		if i.cancel != nil {
			i.cancel()
			<-i.pumpDone
		}
		if serr := i.pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("failed to set pipeline to NULL: %w", serr)
		}
		i.logger.Debug("gstreamer: pipeline released")
	})
	return err
}

func (i *Instance) post(ctx context.Context, ev graph.Event) {
	select {
	case i.events <- ev:
	case <-ctx.Done():
	}
}

// nodeOf maps an element name from a bus message to its node name.
func (i *Instance) nodeOf(element string) string {
	if n, ok := i.owner[element]; ok {
		return n
	}
	return element
}
