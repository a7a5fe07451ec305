package gstreamer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// videoFormat is the part of the negotiated caps a Sample reports.
type videoFormat struct {
	Width  int
	Height int
	Format string
}

// mergeFormat fills the fields caps did not carry with the port hint.
func mergeFormat(negotiated, hint videoFormat) videoFormat {
	if negotiated.Width <= 0 || negotiated.Height <= 0 {
		negotiated.Width, negotiated.Height = hint.Width, hint.Height
	}
	if negotiated.Format == "" {
		negotiated.Format = hint.Format
	}
	return negotiated
}

// formatOf reads the caps currently negotiated on pad. The capture size
// follows the window, so the port hint is only a fallback.
func formatOf(pad *gst.Pad, port *graph.Port) videoFormat {
	hint := videoFormat{Width: port.Width, Height: port.Height, Format: port.Format}
	if pad == nil {
		return hint
	}
	caps := pad.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 {
		return hint
	}
	structure := caps.GetStructureAt(0)
	if structure == nil {
		return hint
	}

	var got videoFormat
	if val, err := structure.GetValue("width"); err == nil {
		got.Width, _ = val.(int)
	}
	if val, err := structure.GetValue("height"); err == nil {
		got.Height, _ = val.(int)
	}
	if val, err := structure.GetValue("format"); err == nil {
		got.Format, _ = val.(string)
	}
	return mergeFormat(got, hint)
}

// runProbes evaluates the probe chain of port for one buffer. It runs on
// the streaming thread that carries the buffer.
func runProbes(pad *gst.Pad, port *graph.Port, info *gst.PadProbeInfo) gst.PadProbeReturn {
	chain := port.Probes()
	if chain.Len() == 0 {
		return gst.PadProbeOK
	}
	buffer := info.GetBuffer()
	if buffer == nil {
		return gst.PadProbeOK
	}
	format := formatOf(pad, port)

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	// Data is only valid until Unmap; probes must not retain it
	s := &probe.Sample{
		Port:      port.Path(),
		Seq:       chain.NextSeq(),
		Timestamp: time.Now(),
		Width:     format.Width,
		Height:    format.Height,
		Format:    format.Format,
		Data:      mapInfo.Bytes(),
	}
	if chain.Run(s) == probe.Drop {
		return gst.PadProbeDrop
	}
	return gst.PadProbeOK
}

// addSourceProbe logs every new frame leaving the capture source.
func (i *Instance) addSourceProbe(n *graph.Node, elem *gst.Element) {
	pad := elem.GetStaticPad("src")
	if pad == nil {
		i.logger.Warn("gstreamer: capture source has no src pad, frame counter disabled", "node", n.Name())
		return
	}
	var frames atomic.Uint64
	pad.AddProbe(gst.PadProbeTypeBuffer, func(*gst.Pad, *gst.PadProbeInfo) gst.PadProbeReturn {
		count := frames.Add(1)
		i.logger.Debug("gstreamer: new frame in capture source", "node", n.Name(), "frames", count)
		return gst.PadProbeOK
	})
}

// watchQueue feeds the node overrun monitor: the queue "overrun" signal marks
// the buffer full and the fill level is sampled on every dequeued buffer.
func (i *Instance) watchQueue(n *graph.Node, queue *gst.Element) error {
	monitor := n.Monitor()
	if monitor == nil {
		return nil
	}

	if _, err := queue.Connect("overrun", func(*gst.Element) {
		monitor.Full()
	}); err != nil {
		return fmt.Errorf("failed to connect overrun signal of %s: %w", n.Name(), err)
	}

	pad := queue.GetStaticPad("src")
	if pad == nil {
		return fmt.Errorf("failed to get src pad of %s", n.Name())
	}
	pad.AddProbe(gst.PadProbeTypeBuffer, func(*gst.Pad, *gst.PadProbeInfo) gst.PadProbeReturn {
		if !monitor.Saturated() {
			return gst.PadProbeOK
		}
		v, err := queue.GetProperty("current-level-buffers")
		if err != nil {
			return gst.PadProbeOK
		}
		if level, ok := v.(uint); ok {
			monitor.Level(int(level))
		}
		return gst.PadProbeOK
	})
	return nil
}

// bindFrameSink hands every appsink sample to the node consumer.
func (i *Instance) bindFrameSink(n *graph.Node, sink *app.Sink) {
	cfg, _ := n.Config().(graph.FrameSinkConfig)
	target := n.FrameSink()
	var seq atomic.Uint64

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			sample := sink.PullSample()
			if sample == nil {
				// A single bad sample should not stop the branch
				i.logger.Warn("gstreamer: failed to pull sample from appsink, skipping frame", "node", n.Name())
				return gst.FlowOK
			}
			buffer := sample.GetBuffer()
			if buffer == nil {
				i.logger.Warn("gstreamer: failed to get buffer from sample, skipping frame", "node", n.Name())
				return gst.FlowOK
			}

			mapInfo := buffer.Map(gst.MapRead)
			data := mapInfo.Bytes()
			if len(data) == 0 {
				buffer.Unmap()
				i.logger.Warn("gstreamer: empty buffer received", "node", n.Name())
				return gst.FlowOK
			}
			flow := target.Deliver(&probe.Sample{
				Port:      n.Name(),
				Seq:       seq.Add(1),
				Timestamp: time.Now(),
				Width:     cfg.Width,
				Height:    cfg.Height,
				Format:    cfg.Format,
				Data:      data,
			})
			buffer.Unmap()

			switch flow {
			case probe.FlowEOS:
				return gst.FlowEOS
			case probe.FlowError:
				return gst.FlowError
			default:
				return gst.FlowOK
			}
		},
	})
}
