package gstreamer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

func TestRawCaps(t *testing.T) {
	tests := []struct {
		format string
		w, h   int
		want   string
	}{
		{"RGB", 192, 192, "video/x-raw,format=RGB,width=192,height=192"},
		{"I420", 0, 0, "video/x-raw,format=I420"},
		{"", 640, 480, "video/x-raw,width=640,height=480"},
		{"", 0, 0, "video/x-raw"},
	}
	for _, tt := range tests {
		if got := rawCaps(tt.format, tt.w, tt.h); got != tt.want {
			t.Errorf("rawCaps(%q, %d, %d) = %q, want %q", tt.format, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestLeakyValue(t *testing.T) {
	assert.Equal(t, leakyNo, leakyValue(backpressure.Block))
	assert.Equal(t, leakyUpstream, leakyValue(backpressure.DropNewest))
	assert.Equal(t, leakyDownstream, leakyValue(backpressure.DropOldest))
}

func TestMuxFactory(t *testing.T) {
	for container, want := range map[string]string{
		graph.ContainerQuickTime: "qtmux",
		graph.ContainerMP4:       "mp4mux",
		graph.ContainerMatroska:  "matroskamux",
	} {
		got, err := muxFactory(container)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := muxFactory("avi")
	assert.Error(t, err)
}

// planGraph builds a graph on a backend that never touches GStreamer, so
// the node configs can be inspected.
func planGraph(t *testing.T, opts graph.Options, desc target.Descriptor) *graph.Graph {
	t.Helper()
	g, err := graph.NewBuilder(nopBackend{}, opts, nil).Build(desc, "out.mp4")
	require.NoError(t, err)
	return g
}

type nopBackend struct{}

func (nopBackend) Name() string                               { return "nop" }
func (nopBackend) NewInstance(string) (graph.Instance, error) { return nopInstance{}, nil }

type nopInstance struct{}

func (nopInstance) Create(*graph.Node) error       { return nil }
func (nopInstance) Link(*graph.Link) error         { return nil }
func (nopInstance) InstallProbe(*graph.Port) error { return nil }
func (nopInstance) Play() error                    { return nil }
func (nopInstance) SendEOS() bool                  { return false }
func (nopInstance) Close() error                   { return nil }
func (nopInstance) Events() <-chan graph.Event     { return nil }

func TestSpecsForReferenceTopology(t *testing.T) {
	opts := graph.DefaultOptions()
	opts.Capture.Element = graph.CaptureD3D11
	g := planGraph(t, opts, target.Descriptor{Handle: 0x2a, Title: "Mozilla Firefox"})
	h := g.Handles

	specs, err := specsFor(h.Capture)
	require.NoError(t, err)
	want := []elementSpec{{
		Factory: "d3d11screencapturesrc",
		Name:    "capture-0",
		Props: []prop{
			{"window-handle", uint64(0x2a)},
			{"capture-api", d3d11CaptureAPIWGC},
			{"window-capture-mode", 1}, // client area
			{"show-cursor", false},
		},
	}}
	if diff := cmp.Diff(want, specs); diff != "" {
		t.Errorf("capture specs mismatch (-want +got):\n%s", diff)
	}

	specs, err = specsFor(h.Rate)
	require.NoError(t, err)
	assert.Equal(t, "videorate", specs[0].Factory)
	assert.Contains(t, specs[0].Props, prop{"max-rate", 20})

	specs, err = specsFor(h.FanOut)
	require.NoError(t, err)
	assert.Equal(t, []elementSpec{{Factory: "tee", Name: "fanout-0"}}, specs)

	specs, err = specsFor(h.RawScale)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "video/x-raw,width=192,height=192", specs[1].Caps)

	specs, err = specsFor(h.FrameSink)
	require.NoError(t, err)
	assert.Equal(t, "video/x-raw,format=RGB,width=192,height=192", specs[0].Caps)

	specs, err = specsFor(h.Encoder)
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, "encoder-0", specs[0].Name)
	assert.Contains(t, specs[0].Props, prop{"bitrate", uint(2048)})
	assert.Contains(t, specs[0].Props, prop{"tune", x264TuneZeroLatency})
	assert.Contains(t, specs[1].Caps, "profile=main")

	specs, err = specsFor(h.RawQueue)
	require.NoError(t, err)
	assert.Contains(t, specs[0].Props, prop{"max-size-buffers", uint(backpressure.DefaultCapacity)})
	assert.Contains(t, specs[0].Props, prop{"leaky", leakyNo})

	specs, err = specsFor(h.FileSink)
	require.NoError(t, err)
	assert.Contains(t, specs[0].Props, prop{"location", "out.mp4"})
}

func TestSpecsForXImage(t *testing.T) {
	opts := graph.DefaultOptions()
	opts.Capture = graph.CaptureConfig{Element: graph.CaptureXImage, ShowCursor: true}
	g := planGraph(t, opts, target.Descriptor{Handle: 77})

	specs, err := specsFor(g.Handles.Capture)
	require.NoError(t, err)
	assert.Contains(t, specs[0].Props, prop{"xid", uint64(77)})
	assert.Contains(t, specs[0].Props, prop{"show-pointer", true})
}

// newTestBackend skips the test when GStreamer or the needed plugins are missing.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Options{})
	if err != nil {
		t.Skipf("Skipping test: GStreamer not available: %v", err)
	}
	if missing := CheckElements("videotestsrc", "videorate", "x264enc", "h264parse", "qtmux", "appsink"); len(missing) > 0 {
		t.Skipf("Skipping test: missing GStreamer elements %v", missing)
	}
	return b
}

func TestPipelineRecordsTestPattern(t *testing.T) {
	b := newTestBackend(t)

	opts := graph.DefaultOptions()
	opts.Capture = graph.CaptureConfig{Element: graph.CaptureTestVideo, Width: 320, Height: 240}
	opts.EncodeScale = graph.ScaleConfig{Width: 160, Height: 120}
	out := filepath.Join(t.TempDir(), "test.mp4")

	g, err := graph.NewBuilder(b, opts, nil).Build(target.Descriptor{Title: "test pattern"}, out)
	require.NoError(t, err)

	var frames atomic.Int64
	var badSize atomic.Bool
	g.SetFrameConsumer(func(s *probe.Sample) probe.Flow {
		if len(s.Data) < 192*192*3 {
			badSize.Store(true)
		}
		frames.Add(1)
		return probe.FlowOK
	})

	var probed atomic.Int64
	var badCaps atomic.Bool
	require.NoError(t, g.AttachProbe(g.Handles.Rate.Output(), func(s *probe.Sample) probe.Disposition {
		// the rate output carries no hint, so the size comes from caps
		if s.Width != 320 || s.Height != 240 || s.Format == "" {
			badCaps.Store(true)
		}
		probed.Add(1)
		return probe.Continue
	}))

	ctrl, err := lifecycle.New(g, lifecycle.Options{DrainTimeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())

	errc := make(chan error, 1)
	go func() { errc <- ctrl.Run(context.Background()) }()

	assert.Eventually(t, func() bool { return frames.Load() >= 5 }, 10*time.Second, 20*time.Millisecond)
	assert.True(t, ctrl.ShutdownHandle().RequestShutdown())

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("pipeline did not drain")
	}

	assert.False(t, badSize.Load())
	assert.False(t, badCaps.Load(), "probe sample does not match negotiated caps")
	assert.GreaterOrEqual(t, probed.Load(), frames.Load())

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestIncompatibleEncoderInputFails(t *testing.T) {
	b := newTestBackend(t)

	// x264enc does not take packed RGB
	opts := graph.DefaultOptions()
	opts.Capture = graph.CaptureConfig{Element: graph.CaptureTestVideo, Width: 320, Height: 240}
	opts.Encode.Element = "x264enc"
	opts.EncodeConvert = graph.ConvertConfig{Format: graph.FormatRGB}
	out := filepath.Join(t.TempDir(), "test.mp4")

	g, err := graph.NewBuilder(b, opts, nil).Build(target.Descriptor{}, out)
	if err != nil {
		// Some GStreamer versions already refuse the link
		var cerr *graph.ConstructionError
		require.ErrorAs(t, err, &cerr)
		return
	}

	ctrl, err := lifecycle.New(g, lifecycle.Options{})
	require.NoError(t, err)
	if err := ctrl.Start(); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = ctrl.Run(ctx)

	var rerr *lifecycle.RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.NotEmpty(t, rerr.NodePath)
	assert.Equal(t, lifecycle.Terminated, ctrl.State())
}

func TestMergeFormat(t *testing.T) {
	hint := videoFormat{Width: 192, Height: 192, Format: graph.FormatRGB}

	tests := []struct {
		name       string
		negotiated videoFormat
		want       videoFormat
	}{
		{"caps win", videoFormat{Width: 1280, Height: 720, Format: graph.FormatBGRA}, videoFormat{Width: 1280, Height: 720, Format: graph.FormatBGRA}},
		{"no caps", videoFormat{}, hint},
		{"size only", videoFormat{Width: 800, Height: 600}, videoFormat{Width: 800, Height: 600, Format: graph.FormatRGB}},
		{"format only", videoFormat{Format: graph.FormatI420}, videoFormat{Width: 192, Height: 192, Format: graph.FormatI420}},
		{"half a size", videoFormat{Width: 800}, hint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mergeFormat(tt.negotiated, hint))
		})
	}
}

func TestFormatOfWithoutPadUsesHint(t *testing.T) {
	g := planGraph(t, graph.DefaultOptions(), target.Descriptor{Title: "test"})
	port := g.Handles.RawScale.Output()

	got := formatOf(nil, port)
	assert.Equal(t, videoFormat{Width: port.Width, Height: port.Height, Format: port.Format}, got)
	assert.Equal(t, 192, got.Width)
}
