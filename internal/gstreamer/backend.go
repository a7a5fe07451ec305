// Package gstreamer realizes graphs as GStreamer pipelines.
//
// Every node maps to a short chain of elements (see specsFor). Bounded
// buffers are queue elements, so each branch after the tee runs on its own
// streaming thread. Runtime messages are read from the pipeline bus by a
// polling goroutine and forwarded on the instance event channel.
package gstreamer

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// Options configures the GStreamer backend.
type Options struct {
	Logger *slog.Logger
	// EventBuffer is the capacity of each instance event channel (default 64)
	EventBuffer int
}

// Backend creates GStreamer pipelines.
type Backend struct {
	logger      *slog.Logger
	eventBuffer int
}

// New initializes GStreamer and checks that it is usable.
func New(opts Options) (*Backend, error) {
	if err := checkGStreamerAvailable(); err != nil {
		return nil, fmt.Errorf("gstreamer: not available: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buf := opts.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Backend{logger: logger, eventBuffer: buf}, nil
}

// Name returns "gstreamer".
func (b *Backend) Name() string { return "gstreamer" }

// NewInstance creates an empty pipeline named after the graph.
func (b *Backend) NewInstance(graphID string) (graph.Instance, error) {
	pipeline, err := gst.NewPipeline("recorder-" + graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return newInstance(pipeline, b.logger.With("graph_id", graphID), b.eventBuffer), nil
}

// checkGStreamerAvailable is a fail-fast probe run at backend construction.
func checkGStreamerAvailable() error {
	// Safe to call multiple times
	gst.Init(nil)

	elem, err := gst.NewElement("fakesrc")
	if err != nil {
		return fmt.Errorf("GStreamer not available or not properly installed: %w", err)
	}
	elem.SetState(gst.StateNull)
	return nil
}

// CheckElements reports which of the given element factories are missing.
func CheckElements(factories ...string) []string {
	var missing []string
	for _, f := range factories {
		elem, err := gst.NewElement(f)
		if err != nil {
			missing = append(missing, f)
			continue
		}
		elem.SetState(gst.StateNull)
	}
	return missing
}
