package sim

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
)

// queue is a bounded buffer with its own downstream streaming goroutine.
type queue struct {
	elem    *element
	ch      chan *buffer
	policy  backpressure.Policy
	dropped atomic.Uint64
}

func newQueue(e *element, p backpressure.Policy) *queue {
	return &queue{
		elem:   e,
		ch:     make(chan *buffer, p.Capacity),
		policy: p,
	}
}

func (q *queue) monitorFull() {
	if m := q.elem.node.Monitor(); m != nil {
		m.Full()
	}
}

// push runs on the upstream goroutine.
func (q *queue) push(e *element, b *buffer) error {
	select {
	case q.ch <- b:
		return nil
	default:
	}

	// Full. End-of-stream is never dropped.
	if b.eos || q.policy.Leaky == backpressure.Block {
		if !b.eos {
			q.monitorFull()
		}
		select {
		case q.ch <- b:
			return nil
		case <-e.inst.stream.Done():
			return errFlushing
		}
	}

	for {
		q.monitorFull()
		switch q.policy.Leaky {
		case backpressure.DropNewest:
			q.dropped.Add(1)
			return nil
		case backpressure.DropOldest:
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
			}
		}
		select {
		case q.ch <- b:
			return nil
		default:
		}
	}
}

// run is the downstream streaming goroutine.
func (q *queue) run(ctx context.Context) error {
	monitor := q.elem.node.Monitor()
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-q.ch:
			if monitor != nil {
				monitor.Level(len(q.ch))
			}
			if err := q.elem.pushOut(0, b); err != nil {
				if errors.Is(err, errFlushing) {
					return nil
				}
				return err
			}
			if b.eos {
				q.elem.inst.logger.Debug("sim: queue drained", "buffer", q.elem.node.Name(), "dropped", q.dropped.Load())
				return nil
			}
		}
	}
}
