package gstreamer

import (
	"fmt"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// prop is one element property, applied in order.
type prop struct {
	Name  string
	Value any
}

// elementSpec describes one GStreamer element realizing (part of) a node.
type elementSpec struct {
	Factory string
	Name    string
	Props   []prop
	// Caps is set for capsfilter elements
	Caps string
}

// Queue leaky enum values (GstQueueLeaky)
const (
	leakyNo         = 0
	leakyUpstream   = 1
	leakyDownstream = 2
)

// x264enc and d3d11screencapturesrc enum values
const (
	x264TuneZeroLatency   = 0x4
	x264SpeedUltrafast    = 1
	x264SpeedVeryfast     = 3
	d3d11CaptureAPIWGC    = 1
	d3d11WindowModeClient = 1 // client area only, follows resizes
)

// rawCaps builds a raw video caps string; zero values are left open.
func rawCaps(format string, width, height int) string {
	var b strings.Builder
	b.WriteString("video/x-raw")
	if format != "" {
		fmt.Fprintf(&b, ",format=%s", format)
	}
	if width > 0 && height > 0 {
		fmt.Fprintf(&b, ",width=%d,height=%d", width, height)
	}
	return b.String()
}

// encodedCaps pins the H.264 profile and the stream format the muxers accept.
func encodedCaps(profile string) string {
	return fmt.Sprintf("video/x-h264,profile=%s,stream-format=avc,alignment=au", profile)
}

func leakyValue(l backpressure.Leaky) int {
	switch l {
	case backpressure.DropNewest:
		return leakyUpstream
	case backpressure.DropOldest:
		return leakyDownstream
	default:
		return leakyNo
	}
}

func muxFactory(container string) (string, error) {
	switch container {
	case graph.ContainerQuickTime:
		return "qtmux", nil
	case graph.ContainerMP4:
		return "mp4mux", nil
	case graph.ContainerMatroska:
		return "matroskamux", nil
	}
	return "", fmt.Errorf("unsupported container %q", container)
}

func speedPreset(tune string) int {
	if tune == "zerolatency" {
		return x264SpeedUltrafast
	}
	return x264SpeedVeryfast
}

// specsFor maps a node to the chain of elements realizing it. The first
// element receives the node input and the last one produces its output.
// The first element carries the node name so bus messages map back to it.
func specsFor(n *graph.Node) ([]elementSpec, error) {
	name := n.Name()
	capsName := name + "-caps"

	switch cfg := n.Config().(type) {
	case graph.CaptureConfig:
		src := elementSpec{Factory: cfg.Element, Name: name}
		switch cfg.Element {
		case graph.CaptureD3D11:
			src.Props = []prop{
				{"window-handle", cfg.Handle},
				{"capture-api", d3d11CaptureAPIWGC},
				{"window-capture-mode", d3d11WindowModeClient},
				{"show-cursor", cfg.ShowCursor},
			}
		case graph.CaptureXImage:
			src.Props = []prop{
				{"xid", cfg.Handle},
				{"use-damage", false},
				{"show-pointer", cfg.ShowCursor},
			}
		case graph.CaptureTestVideo:
			src.Props = []prop{{"is-live", true}}
			if cfg.Width > 0 && cfg.Height > 0 {
				return []elementSpec{src, {
					Factory: "capsfilter",
					Name:    capsName,
					Caps:    rawCaps(graph.FormatBGRA, cfg.Width, cfg.Height),
				}}, nil
			}
		default:
			return nil, fmt.Errorf("unknown capture element %q", cfg.Element)
		}
		return []elementSpec{src}, nil

	case graph.RateConfig:
		return []elementSpec{{
			Factory: "videorate",
			Name:    name,
			Props: []prop{
				{"max-rate", cfg.MaxRate},
				{"drop-only", true},
				{"skip-to-first", true},
			},
		}}, nil

	case graph.FanOutConfig:
		return []elementSpec{{Factory: "tee", Name: name}}, nil

	case graph.QueueConfig:
		return []elementSpec{{
			Factory: "queue",
			Name:    name,
			Props: []prop{
				{"max-size-buffers", uint(cfg.Policy.Capacity)},
				{"max-size-bytes", uint(0)},
				{"max-size-time", uint64(0)},
				{"leaky", leakyValue(cfg.Policy.Leaky)},
			},
		}}, nil

	case graph.ConvertConfig:
		return []elementSpec{
			{Factory: "videoconvert", Name: name},
			{Factory: "capsfilter", Name: capsName, Caps: rawCaps(cfg.Format, 0, 0)},
		}, nil

	case graph.ScaleConfig:
		return []elementSpec{
			{Factory: "videoscale", Name: name},
			{Factory: "capsfilter", Name: capsName, Caps: rawCaps("", cfg.Width, cfg.Height)},
		}, nil

	case graph.EncodeConfig:
		enc := elementSpec{Factory: cfg.Element, Name: name}
		if cfg.Element == "x264enc" {
			enc.Props = []prop{
				{"bitrate", uint(cfg.BitrateKbps)},
				{"key-int-max", uint(cfg.KeyframeInterval)},
				{"speed-preset", speedPreset(cfg.Tune)},
			}
			if cfg.Tune == "zerolatency" {
				enc.Props = append(enc.Props, prop{"tune", x264TuneZeroLatency})
			}
		}
		return []elementSpec{
			enc,
			{Factory: "capsfilter", Name: capsName, Caps: encodedCaps(cfg.Profile)},
			{Factory: "h264parse", Name: name + "-parse"},
		}, nil

	case graph.MuxConfig:
		factory, err := muxFactory(cfg.Container)
		if err != nil {
			return nil, err
		}
		return []elementSpec{{Factory: factory, Name: name}}, nil

	case graph.FileSinkConfig:
		return []elementSpec{{
			Factory: "filesink",
			Name:    name,
			Props: []prop{
				{"location", cfg.Path},
				{"sync", false},
				{"async", false},
			},
		}}, nil

	case graph.FrameSinkConfig:
		// appsink is created through the app package; Caps applies to it
		return []elementSpec{{
			Factory: "appsink",
			Name:    name,
			Props: []prop{
				{"sync", false},
				{"emit-signals", false},
			},
			Caps: rawCaps(cfg.Format, cfg.Width, cfg.Height),
		}}, nil
	}
	return nil, fmt.Errorf("unsupported node kind %s", n.Kind())
}
