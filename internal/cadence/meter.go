package cadence

import (
	"sync"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// DefaultWindow is the number of timestamps kept by a Meter
const DefaultWindow = 600

// Meter records the arrival times of the last Window frames on one port.
type Meter struct {
	mu      sync.Mutex
	times   []time.Time
	next    int
	full    bool
	started time.Time
	total   uint64
	now     func() time.Time
}

// NewMeter creates a meter keeping window timestamps (DefaultWindow if <= 0).
func NewMeter(window int) *Meter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Meter{times: make([]time.Time, window), now: time.Now}
}

// Observe records one frame at t.
func (m *Meter) Observe(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started.IsZero() {
		m.started = t
	}
	m.times[m.next] = t
	m.next = (m.next + 1) % len(m.times)
	if m.next == 0 {
		m.full = true
	}
	m.total++
}

// Probe returns a probe that observes every sample and lets it continue.
func (m *Meter) Probe() probe.Func {
	return func(s *probe.Sample) probe.Disposition {
		m.Observe(s.Timestamp)
		return probe.Continue
	}
}

// Total returns the number of frames observed since creation.
func (m *Meter) Total() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Snapshot computes statistics over the retained window, measured until now.
func (m *Meter) Snapshot() Stats {
	m.mu.Lock()
	var ordered []time.Time
	if m.full {
		ordered = append(ordered, m.times[m.next:]...)
		ordered = append(ordered, m.times[:m.next]...)
	} else {
		ordered = append(ordered, m.times[:m.next]...)
	}
	m.mu.Unlock()

	if len(ordered) == 0 {
		return Stats{}
	}
	return Calculate(ordered, m.now().Sub(ordered[0]))
}
