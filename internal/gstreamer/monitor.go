package gstreamer

import (
	"context"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// busPollInterval bounds how long Close waits for the pump to notice cancellation
const busPollInterval = 50 * time.Millisecond

// pumpBus translates pipeline bus messages into graph events until ctx is
// cancelled. Only pipeline-level state changes are forwarded.
func (i *Instance) pumpBus(ctx context.Context) {
	bus := i.pipeline.GetPipelineBus()
	name := i.pipeline.GetName()

	for {
		select {
		case <-ctx.Done():
			i.logger.Debug("gstreamer: context cancelled, stopping bus monitor")
			return
		default:
		}

		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			i.logger.Debug("gstreamer: end of stream on bus")
			i.post(ctx, graph.Event{Kind: graph.EventEOS, Source: "pipeline"})

		case gst.MessageError:
			gerr := msg.ParseError()
			i.post(ctx, graph.Event{
				Kind:    graph.EventError,
				Source:  i.nodeOf(msg.Source()),
				Message: gerr.Error(),
				Debug:   gerr.DebugString(),
			})

		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			i.post(ctx, graph.Event{
				Kind:    graph.EventWarning,
				Source:  i.nodeOf(msg.Source()),
				Message: gerr.Error(),
				Debug:   gerr.DebugString(),
			})

		case gst.MessageStateChanged:
			if msg.Source() != name {
				continue
			}
			from, to := msg.ParseStateChanged()
			i.post(ctx, graph.Event{
				Kind:   graph.EventStateChanged,
				Source: "pipeline",
				From:   from.String(),
				To:     to.String(),
			})
		}
	}
}
