package backpressure

import (
	"sync/atomic"
	"time"
)

// Signal reports that a bounded buffer reached capacity.
//
// It carries no data and drops nothing; what happens to the data is decided
// by the buffer's Leaky policy.
type Signal struct {
	// Buffer is the name of the buffer node (e.g. "queue-1")
	Buffer string
	// Capacity is the configured buffer capacity
	Capacity int
	// Episode is the 1-based saturation episode number for this buffer
	Episode uint64
	// At is when the buffer became full
	At time.Time
}

// Monitor debounces overrun notifications for one buffer.
//
// Full may be called for every unit that finds the buffer full; only the first
// call of an episode emits a Signal. Level reports the fill level after a unit
// leaves the buffer and ends the episode at or below the low watermark.
// Both methods are lock-free and safe from any goroutine.
type Monitor struct {
	name      string
	capacity  int
	watermark int
	emit      func(Signal)

	saturated atomic.Bool
	episodes  atomic.Uint64
}

// NewMonitor creates a monitor for the named buffer. emit may be nil.
func NewMonitor(name string, p Policy, emit func(Signal)) *Monitor {
	return &Monitor{
		name:      name,
		capacity:  p.Capacity,
		watermark: p.Watermark(),
		emit:      emit,
	}
}

// Name returns the buffer name.
func (m *Monitor) Name() string { return m.name }

// Full records that the buffer is at capacity.
func (m *Monitor) Full() {
	if !m.saturated.CompareAndSwap(false, true) {
		return
	}
	ep := m.episodes.Add(1)
	if m.emit != nil {
		m.emit(Signal{
			Buffer:   m.name,
			Capacity: m.capacity,
			Episode:  ep,
			At:       time.Now(),
		})
	}
}

// Level records the current fill level.
func (m *Monitor) Level(n int) {
	if n <= m.watermark {
		m.saturated.Store(false)
	}
}

// Saturated reports whether an episode is in progress.
func (m *Monitor) Saturated() bool { return m.saturated.Load() }

// Episodes returns the number of saturation episodes so far.
func (m *Monitor) Episodes() uint64 { return m.episodes.Load() }
