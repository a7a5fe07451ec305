// Package graph models the processing graph: typed nodes, ports, links and
// the realized backend instance behind them.
//
// A Graph is assembled once by Builder and is never restructured afterwards.
// Nodes are reached through explicit handles (Graph.Handles); there is no
// lookup by name.
package graph

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

// ErrForeignPort is returned when a port does not belong to the graph.
var ErrForeignPort = errors.New("graph: port belongs to another graph")

// Direction of a port
type Direction int

const (
	In Direction = iota
	Out
)

// Port is an input or output attachment point of a node.
type Port struct {
	node *Node
	name string
	dir  Direction

	// Format hints for probe samples (zero when unknown at this point)
	Format string
	Width  int
	Height int

	peer      *Port
	probes    probe.Chain
	installed atomic.Bool
}

// Node returns the owning node.
func (p *Port) Node() *Node { return p.node }

// Name returns the port name ("src", "sink", "src_0", ...).
func (p *Port) Name() string { return p.name }

// Direction returns whether the port is an input or an output.
func (p *Port) Direction() Direction { return p.dir }

// Path returns "<node>.<port>", e.g. "encoder-0.src".
func (p *Port) Path() string { return p.node.name + "." + p.name }

// Peer returns the port on the other side of the link, or nil.
func (p *Port) Peer() *Port { return p.peer }

// Probes returns the probe chain run for every unit crossing the port.
func (p *Port) Probes() *probe.Chain { return &p.probes }

// Node is one processing stage.
type Node struct {
	graph  *Graph
	name   string
	kind   NodeKind
	config NodeConfig

	inputs  []*Port
	outputs []*Port

	monitor *backpressure.Monitor // queue nodes
	sink    *probe.Sink           // frame sink nodes
}

// Name returns the node name, "<kind>-<n>".
func (n *Node) Name() string { return n.name }

// Kind returns the node kind.
func (n *Node) Kind() NodeKind { return n.kind }

// Config returns the typed config record.
func (n *Node) Config() NodeConfig { return n.config }

// Inputs returns the input ports in order.
func (n *Node) Inputs() []*Port { return n.inputs }

// Outputs returns the output ports in order. For the fan-out node this only
// contains the ports requested so far.
func (n *Node) Outputs() []*Port { return n.outputs }

// Input returns the first input port, or nil for the source.
func (n *Node) Input() *Port {
	if len(n.inputs) == 0 {
		return nil
	}
	return n.inputs[0]
}

// Output returns the first output port, or nil for sinks.
func (n *Node) Output() *Port {
	if len(n.outputs) == 0 {
		return nil
	}
	return n.outputs[0]
}

// Monitor returns the overrun monitor of a queue node, nil otherwise.
func (n *Node) Monitor() *backpressure.Monitor { return n.monitor }

// FrameSink returns the consumer slot of a frame sink node, nil otherwise.
func (n *Node) FrameSink() *probe.Sink { return n.sink }

func (n *Node) addPort(name string, dir Direction) *Port {
	p := &Port{node: n, name: name, dir: dir}
	if dir == In {
		n.inputs = append(n.inputs, p)
	} else {
		n.outputs = append(n.outputs, p)
	}
	return p
}

// requestOutput creates the next request port of a fan-out node.
func (n *Node) requestOutput() (*Port, error) {
	cfg, ok := n.config.(FanOutConfig)
	if !ok {
		return nil, fmt.Errorf("node %s does not have request ports", n.name)
	}
	if len(n.outputs) >= cfg.MaxOutputs {
		return nil, ErrPortExhausted
	}
	return n.addPort(fmt.Sprintf("src_%d", len(n.outputs)), Out), nil
}

// Link connects one output port to one input port.
type Link struct {
	From *Port
	To   *Port
}

// String returns "from -> to"
func (l *Link) String() string {
	return l.From.Path() + " -> " + l.To.Path()
}

// Handles are the explicit node references returned by the builder.
type Handles struct {
	Capture *Node
	Rate    *Node
	FanOut  *Node

	// Raw-frame branch
	RawQueue   *Node
	RawConvert *Node
	RawScale   *Node
	FrameSink  *Node

	// Encode branch
	EncodeQueue   *Node
	EncodeConvert *Node
	EncodeScale   *Node
	Encoder       *Node
	Mux           *Node
	FileSink      *Node
}

// Graph is a fully linked processing graph bound to one backend instance.
type Graph struct {
	// ID identifies this graph instance in logs
	ID         string
	Target     target.Descriptor
	OutputPath string
	Handles    Handles

	nodes []*Node
	links []*Link
	inst  Instance

	overrun atomic.Pointer[func(backpressure.Signal)]
	claimed atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// Nodes returns the nodes in creation order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Links returns the links in linking order.
func (g *Graph) Links() []*Link {
	return append([]*Link(nil), g.links...)
}

// Instance returns the realized backend instance.
func (g *Graph) Instance() Instance { return g.inst }

// Claim marks the graph as owned. Only the first call succeeds.
func (g *Graph) Claim() bool {
	return g.claimed.CompareAndSwap(false, true)
}

// AttachProbe appends fn to the probe chain of port.
//
// The first probe on a port asks the backend to start instrumenting it.
// Probes may be attached before or after the graph starts playing.
func (g *Graph) AttachProbe(port *Port, fn probe.Func) error {
	if port == nil || port.node == nil || port.node.graph != g {
		return ErrForeignPort
	}
	if fn == nil {
		return fmt.Errorf("graph: nil probe for %s", port.Path())
	}
	port.probes.Add(fn)
	if port.installed.CompareAndSwap(false, true) {
		if err := g.inst.InstallProbe(port); err != nil {
			port.installed.Store(false)
			return fmt.Errorf("graph: install probe on %s: %w", port.Path(), err)
		}
	}
	return nil
}

// SetFrameConsumer installs the callback of the frame sink. nil removes it.
func (g *Graph) SetFrameConsumer(fn probe.Consumer) {
	g.Handles.FrameSink.sink.SetConsumer(fn)
}

// OnOverrun installs the handler that receives overrun signals of both
// bounded buffers. It runs on the streaming goroutine and must not block.
func (g *Graph) OnOverrun(fn func(backpressure.Signal)) {
	if fn == nil {
		g.overrun.Store(nil)
		return
	}
	g.overrun.Store(&fn)
}

func (g *Graph) emitOverrun(s backpressure.Signal) {
	if fn := g.overrun.Load(); fn != nil {
		(*fn)(s)
	}
}

// Close releases the backend instance. In-flight data is discarded.
// Safe to call multiple times.
func (g *Graph) Close() error {
	g.closeOnce.Do(func() {
		if g.inst != nil {
			g.closeErr = g.inst.Close()
		}
	})
	return g.closeErr
}
