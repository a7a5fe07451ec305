// Package lifecycle drives a built graph through its states and reacts to
// the asynchronous events it reports.
//
// State machine:
//
//	Constructed --Start--> Playing
//	Playing --end of stream--> Draining --teardown--> Terminated
//	Playing --error / context cancelled / drain timeout--> Terminated
//
// Terminated is absorbing. Teardown kills the liveness token before the
// backend instance is closed, so a concurrent shutdown request either
// completes against a live graph or becomes a no-op.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/events"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// DefaultDrainTimeout bounds the wait for end-of-stream after a shutdown request
const DefaultDrainTimeout = 10 * time.Second

// Options configures a Controller.
type Options struct {
	// Logger defaults to slog.Default()
	Logger *slog.Logger
	// Events receives state transitions, warnings and runtime errors; may be nil
	Events *events.Bus
	// DrainTimeout; zero means DefaultDrainTimeout
	DrainTimeout time.Duration
}

// Controller owns one graph for its whole lifetime.
type Controller struct {
	g      *graph.Graph
	inst   graph.Instance
	logger *slog.Logger
	bus    *events.Bus

	drainTimeout time.Duration

	state    atomic.Int32
	token    *Token
	shutdown chan struct{}
	handle   *ShutdownHandle

	startedAt time.Time
}

// New claims g and returns its controller in the Constructed state.
// A graph can be claimed once; later calls return ErrGraphClaimed.
func New(g *graph.Graph, opts Options) (*Controller, error) {
	if g == nil || g.Instance() == nil {
		return nil, fmt.Errorf("lifecycle: graph is not built")
	}
	if !g.Claim() {
		return nil, ErrGraphClaimed
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = DefaultDrainTimeout
	}

	c := &Controller{
		g:            g,
		inst:         g.Instance(),
		logger:       logger.With("graph_id", g.ID),
		bus:          opts.Events,
		drainTimeout: drain,
		token:        &Token{},
		shutdown:     make(chan struct{}, 1),
	}
	c.handle = &ShutdownHandle{
		token:  c.token,
		inst:   c.inst,
		notify: c.shutdown,
		logger: c.logger,
	}
	return c, nil
}

// State returns the current state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// ShutdownHandle returns the handle used to request a graceful shutdown
// from other goroutines (typically a signal handler).
func (c *Controller) ShutdownHandle() *ShutdownHandle {
	return c.handle
}

// Start transitions Constructed -> Playing. It returns once the backend has
// accepted the state change; a refusal terminates the graph.
func (c *Controller) Start() error {
	if s := c.State(); s != Constructed {
		return fmt.Errorf("lifecycle: cannot start from state %s", s)
	}

	if err := c.inst.Play(); err != nil {
		c.logger.Error("lifecycle: backend refused to play", "error", err)
		c.terminate()
		return fmt.Errorf("lifecycle: start: %w", err)
	}

	c.startedAt = time.Now()
	c.setState(Playing)
	c.handle.start()
	return nil
}

// Run consumes runtime events until the graph terminates.
//
// It returns nil after a clean end of stream, a *RuntimeError when a stage
// fails, ErrDrainTimeout when a requested shutdown does not complete in time,
// and ctx.Err() when ctx is cancelled (immediate stop, in-flight data is
// discarded).
func (c *Controller) Run(ctx context.Context) error {
	if s := c.State(); s != Playing {
		return fmt.Errorf("lifecycle: cannot run from state %s", s)
	}

	evs := c.inst.Events()

	var drain <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.Warn("lifecycle: context cancelled, stopping without drain", "error", ctx.Err())
			c.terminate()
			return ctx.Err()

		case <-c.shutdown:
			if timer == nil {
				c.logger.Info("lifecycle: shutdown requested, waiting for end of stream",
					"drain_timeout", c.drainTimeout,
				)
				c.bus.Publish(events.ShutdownRequestedEvent{GraphID: c.g.ID, At: time.Now()})
				timer = time.NewTimer(c.drainTimeout)
				drain = timer.C
			}

		case <-drain:
			c.logger.Error("lifecycle: end of stream did not arrive, forcing teardown",
				"drain_timeout", c.drainTimeout,
			)
			c.terminate()
			return ErrDrainTimeout

		case ev, ok := <-evs:
			if !ok {
				c.terminate()
				return ErrEventsClosed
			}
			if done, err := c.handleEvent(ev); done {
				return err
			}
		}
	}
}

// handleEvent applies one runtime event. It reports whether the graph reached
// a terminal state and, if so, the result Run should return.
func (c *Controller) handleEvent(ev graph.Event) (bool, error) {
	if c.State() == Terminated {
		c.logger.Debug("lifecycle: event after termination ignored", "kind", ev.Kind.String(), "source", ev.Source)
		return false, nil
	}

	switch ev.Kind {
	case graph.EventEOS:
		c.logger.Info("lifecycle: end of stream received", "uptime", c.uptime())
		c.setState(Draining)
		c.terminate()
		return true, nil

	case graph.EventError:
		rerr := &RuntimeError{
			NodePath: ev.Source,
			Message:  ev.Message,
			Debug:    ev.Debug,
			Category: graph.ClassifyError(ev.Message, ev.Debug),
		}
		c.logger.Error("lifecycle: runtime error",
			"node", ev.Source,
			"error", ev.Message,
			"debug", ev.Debug,
			"category", rerr.Category.String(),
			"uptime", c.uptime(),
		)
		c.bus.Publish(events.RuntimeErrorEvent{
			GraphID:  c.g.ID,
			Source:   ev.Source,
			Message:  ev.Message,
			Category: rerr.Category.String(),
			At:       time.Now(),
		})
		c.terminate()
		return true, rerr

	case graph.EventStateChanged:
		c.logger.Debug("lifecycle: backend state changed", "node", ev.Source, "from", ev.From, "to", ev.To)

	case graph.EventWarning:
		c.logger.Warn("lifecycle: backend warning", "node", ev.Source, "message", ev.Message, "debug", ev.Debug)
		c.bus.Publish(events.WarningEvent{
			GraphID: c.g.ID,
			Source:  ev.Source,
			Message: ev.Message,
			At:      time.Now(),
		})
	}
	return false, nil
}

// terminate tears the graph down exactly once.
func (c *Controller) terminate() {
	if c.State() == Terminated {
		return
	}
	c.token.Kill()
	if err := c.g.Close(); err != nil {
		c.logger.Warn("lifecycle: failed to release graph", "error", err)
	}
	c.setState(Terminated)
}

func (c *Controller) setState(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.logger.Info("lifecycle: state changed", "from", from.String(), "state", to.String())
	c.bus.Publish(events.PipelineStateEvent{
		GraphID: c.g.ID,
		From:    from.String(),
		To:      to.String(),
		At:      time.Now(),
	})
}

func (c *Controller) uptime() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	return time.Since(c.startedAt)
}

// ShutdownHandle requests a graceful shutdown of a playing graph.
type ShutdownHandle struct {
	token  *Token
	inst   graph.Instance
	notify chan<- struct{}
	logger *slog.Logger

	// requested is set once a request was taken (pending or delivered)
	requested atomic.Bool
	// playing is set by Start; earlier requests stay pending until then
	playing atomic.Bool
	// sent guards the single end-of-stream injection
	sent atomic.Bool
}

// RequestShutdown injects end-of-stream at the capture source so both
// branches drain and the output file is finalized. A request made before
// Start is remembered and delivered once the graph plays.
//
// It never blocks and is safe from any goroutine. It reports whether this
// call took the request; a second request, or a request after the graph
// terminated, is a no-op returning false. A request the backend refuses is
// forgotten, so the caller may retry.
func (h *ShutdownHandle) RequestShutdown() bool {
	if h == nil || !h.token.Acquire() {
		return false
	}
	defer h.token.Release()

	if !h.requested.CompareAndSwap(false, true) {
		return false
	}
	if !h.playing.Load() {
		h.logger.Debug("lifecycle: shutdown requested before start, deferring")
		return true
	}
	return h.deliver()
}

// start marks the graph playing and delivers a pending request.
func (h *ShutdownHandle) start() {
	h.playing.Store(true)
	if h.requested.Load() {
		h.deliver()
	}
}

func (h *ShutdownHandle) deliver() bool {
	if !h.sent.CompareAndSwap(false, true) {
		// delivered by the other side of a Start race
		return true
	}
	if !h.inst.SendEOS() {
		h.logger.Warn("lifecycle: backend refused end of stream, shutdown request dropped")
		h.sent.Store(false)
		h.requested.Store(false)
		return false
	}

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return true
}
