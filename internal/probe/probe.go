// Package probe implements per-port observation hooks and the frame-delivery
// sink callback.
//
// A probe sees every unit of media data crossing the port it is attached to.
// Callbacks run synchronously on the goroutine (or GStreamer streaming thread)
// that is transporting the unit, so they must return quickly and must not keep
// a reference to the Sample after returning.
package probe

import (
	"sync"
	"sync/atomic"
	"time"
)

// Disposition is the verdict a probe returns for a unit of data.
type Disposition int

const (
	// Continue forwards the unit unchanged.
	Continue Disposition = iota
	// Drop removes the unit from this path only.
	Drop
)

// String returns a human-readable representation of the disposition
func (d Disposition) String() string {
	switch d {
	case Continue:
		return "continue"
	case Drop:
		return "drop"
	default:
		return "unknown"
	}
}

// Sample is a transient handle to one unit of media data at a probe point.
//
// Data aliases memory owned by the graph. It is valid only for the duration
// of the callback; copy it if it must outlive the call.
type Sample struct {
	// Port is the full name of the port the sample was observed on
	// (e.g. "capture-0.src").
	Port string
	// Seq is the per-port monotonic sequence number (starts at 1)
	Seq uint64
	// Timestamp is when the unit reached the port
	Timestamp time.Time
	// Width in pixels (0 if unknown at this port)
	Width int
	// Height in pixels (0 if unknown at this port)
	Height int
	// Format is the pixel layout (e.g. "RGB", "BGRA"), or the encoded media
	// type on the encode branch after the encoder
	Format string
	// Data is the raw payload
	Data []byte
}

// Func observes a sample and decides whether it continues on this path.
type Func func(s *Sample) Disposition

// Chain is an ordered, concurrency-safe list of probes attached to one port.
//
// Attach is rare and Run is hot, so the list is copy-on-write behind an
// atomic pointer: Run never takes a lock.
type Chain struct {
	mu    sync.Mutex
	funcs atomic.Pointer[[]Func]
	seq   atomic.Uint64
}

// Add appends fn to the chain and returns the new chain length.
func (c *Chain) Add(fn Func) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var next []Func
	if cur := c.funcs.Load(); cur != nil {
		next = make([]Func, len(*cur), len(*cur)+1)
		copy(next, *cur)
	}
	next = append(next, fn)
	c.funcs.Store(&next)
	return len(next)
}

// Len returns the number of attached probes.
func (c *Chain) Len() int {
	if cur := c.funcs.Load(); cur != nil {
		return len(*cur)
	}
	return 0
}

// NextSeq returns the next per-port sequence number.
func (c *Chain) NextSeq() uint64 {
	return c.seq.Add(1)
}

// Run executes the probes in attachment order. The first Drop stops the
// chain and is returned.
func (c *Chain) Run(s *Sample) Disposition {
	cur := c.funcs.Load()
	if cur == nil {
		return Continue
	}
	for _, fn := range *cur {
		if fn(s) == Drop {
			return Drop
		}
	}
	return Continue
}
