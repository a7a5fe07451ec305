package inference

import (
	"context"
	"sync"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// Mailbox is a single-slot buffer with overwrite semantics: Put replaces an
// unconsumed frame and Next blocks until a frame is available.
type Mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	frame *Frame // nil = consumed

	closed    bool
	published uint64
	consumed  uint64
	drops     uint64
}

// MailboxStats is a point-in-time view of the mailbox counters.
type MailboxStats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
}

// NewMailbox returns an empty open mailbox.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Put stores f, replacing any unconsumed frame. It never blocks on the
// consumer. Put after Close is a no-op.
func (m *Mailbox) Put(f *Frame) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if m.frame != nil {
		m.drops++
	}
	m.frame = f
	m.published++
	m.cond.Signal()
}

// Consumer returns a frame-sink consumer that copies every sample into the
// mailbox.
func (m *Mailbox) Consumer() probe.Consumer {
	return func(s *probe.Sample) probe.Flow {
		m.Put(FromSample(s))
		return probe.FlowOK
	}
}

// Next blocks until a frame is available, the mailbox is closed or ctx is
// done. It returns false in the last two cases. Single consumer only.
func (m *Mailbox) Next(ctx context.Context) (*Frame, bool) {
	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		m.cond.Broadcast()
		m.mu.Unlock()
	})
	defer stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	for m.frame == nil && !m.closed && ctx.Err() == nil {
		m.cond.Wait()
	}
	if m.frame == nil {
		return nil, false
	}

	f := m.frame
	m.frame = nil
	m.consumed++
	return f, true
}

// Close wakes the consumer. A pending frame can still be read.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Stats returns the mailbox counters.
func (m *Mailbox) Stats() MailboxStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MailboxStats{Published: m.published, Consumed: m.consumed, Dropped: m.drops}
}
