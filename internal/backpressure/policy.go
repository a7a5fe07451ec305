// Package backpressure governs the bounded buffers that decouple the graph
// branches from the fan-out point.
//
// A buffer reaching capacity is not an error. Monitor turns the raw "buffer
// is full" notifications coming from the buffer implementation into exactly
// one Signal per saturation episode, for logs and metrics.
package backpressure

import (
	"fmt"
	"strings"
)

const (
	// MinCapacity is the smallest accepted buffer capacity
	MinCapacity = 1
	// MaxCapacity is the largest accepted buffer capacity
	MaxCapacity = 4096
	// DefaultCapacity matches the GStreamer queue default (200 buffers)
	DefaultCapacity = 200
)

// Leaky selects what a full buffer does with new data.
type Leaky int

const (
	// Block stalls upstream until space is available (nothing is dropped)
	Block Leaky = iota
	// DropNewest discards the incoming unit when full
	DropNewest
	// DropOldest discards the oldest queued unit to make room
	DropOldest
)

// String returns the config name of the policy
func (l Leaky) String() string {
	switch l {
	case Block:
		return "block"
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	default:
		return "unknown"
	}
}

// ParseLeaky converts a config name into a Leaky policy.
func ParseLeaky(s string) (Leaky, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block", "no":
		return Block, nil
	case "drop-newest", "upstream":
		return DropNewest, nil
	case "drop-oldest", "downstream":
		return DropOldest, nil
	default:
		return Block, fmt.Errorf("backpressure: unknown leaky policy %q (must be block, drop-newest or drop-oldest)", s)
	}
}

// Policy configures one bounded buffer.
type Policy struct {
	// Capacity is the maximum number of queued units (1-4096)
	Capacity int
	// Leaky is the behavior when the buffer is full
	Leaky Leaky
	// LowWatermark ends a saturation episode once the fill level drops to it.
	// Zero means Capacity/2.
	LowWatermark int
}

// DefaultPolicy returns the blocking policy used by both branches.
func DefaultPolicy() Policy {
	return Policy{
		Capacity: DefaultCapacity,
		Leaky:    Block,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.Capacity < MinCapacity || p.Capacity > MaxCapacity {
		return fmt.Errorf("backpressure: invalid capacity %d (must be %d-%d)", p.Capacity, MinCapacity, MaxCapacity)
	}
	if p.Leaky < Block || p.Leaky > DropOldest {
		return fmt.Errorf("backpressure: invalid leaky policy %d", p.Leaky)
	}
	if p.LowWatermark < 0 || p.LowWatermark >= p.Capacity {
		return fmt.Errorf("backpressure: invalid low watermark %d (must be 0-%d)", p.LowWatermark, p.Capacity-1)
	}
	return nil
}

// Watermark returns the effective low watermark.
func (p Policy) Watermark() int {
	if p.LowWatermark > 0 {
		return p.LowWatermark
	}
	return p.Capacity / 2
}
