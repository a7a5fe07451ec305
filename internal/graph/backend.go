package graph

// Backend realizes graphs on a media framework.
type Backend interface {
	// Name identifies the backend in logs ("gstreamer", "sim")
	Name() string
	// NewInstance allocates the framework-side container of one graph
	NewInstance(graphID string) (Instance, error)
}

// Instance is the framework-side realization of one graph.
//
// The builder calls Create for every node and then Link for every link, in
// order. Close must be safe after a partial build and idempotent.
type Instance interface {
	// Create allocates the stage for n. Request ports are created by Link.
	Create(n *Node) error
	// Link connects l.From to l.To. Links are never renegotiated.
	Link(l *Link) error
	// InstallProbe starts running p.Probes() for every unit crossing p.
	InstallProbe(p *Port) error
	// Play transitions the instance to playing and returns once accepted.
	Play() error
	// SendEOS injects end-of-stream at the capture source without blocking.
	// It reports whether the event was accepted.
	SendEOS() bool
	// Close stops all stages and releases their resources.
	Close() error
	// Events is the ordered runtime event channel of this instance.
	Events() <-chan Event
}

// EventKind classifies runtime events.
type EventKind int

const (
	EventEOS EventKind = iota
	EventError
	EventStateChanged
	EventWarning
)

// String returns a human-readable event kind
func (k EventKind) String() string {
	switch k {
	case EventEOS:
		return "eos"
	case EventError:
		return "error"
	case EventStateChanged:
		return "state-changed"
	case EventWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Event is one asynchronous notification from a running instance.
type Event struct {
	Kind EventKind
	// Source is the path of the node that posted the event
	Source  string
	Message string
	Debug   string
	// From/To are set for EventStateChanged
	From string
	To   string
}
