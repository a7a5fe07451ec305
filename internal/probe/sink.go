package probe

import "sync/atomic"

// Flow is the flow-continuation value a frame consumer returns to the graph.
type Flow int

const (
	// FlowOK keeps data flowing.
	FlowOK Flow = iota
	// FlowEOS tells the sink that the consumer wants no more data.
	FlowEOS
	// FlowError reports a consumer failure; the graph posts a runtime error.
	FlowError
)

// String returns a human-readable representation of the flow value
func (f Flow) String() string {
	switch f {
	case FlowOK:
		return "ok"
	case FlowEOS:
		return "eos"
	case FlowError:
		return "error"
	default:
		return "unknown"
	}
}

// Consumer receives every unit arriving at a frame-delivery sink.
type Consumer func(s *Sample) Flow

// Sink holds the consumer of a frame-delivery sink node.
//
// The consumer may be installed or replaced at any time, including while the
// graph is playing. Without a consumer, samples are discarded with FlowOK.
type Sink struct {
	consumer  atomic.Pointer[Consumer]
	delivered atomic.Uint64
}

// SetConsumer installs fn as the sink consumer. A nil fn removes it.
func (k *Sink) SetConsumer(fn Consumer) {
	if fn == nil {
		k.consumer.Store(nil)
		return
	}
	k.consumer.Store(&fn)
}

// Deliver hands s to the consumer and returns its flow value.
func (k *Sink) Deliver(s *Sample) Flow {
	k.delivered.Add(1)
	fn := k.consumer.Load()
	if fn == nil {
		return FlowOK
	}
	return (*fn)(s)
}

// Delivered returns how many samples reached the sink.
func (k *Sink) Delivered() uint64 {
	return k.delivered.Load()
}
