package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

// fakeBackend records every call the builder makes.
type fakeBackend struct {
	instances []*fakeInstance
	failNew   error

	failCreate string // node name
	failLink   string // link string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) NewInstance(id string) (Instance, error) {
	if b.failNew != nil {
		return nil, b.failNew
	}
	inst := &fakeInstance{backend: b, events: make(chan Event, 4)}
	b.instances = append(b.instances, inst)
	return inst, nil
}

type fakeInstance struct {
	backend   *fakeBackend
	created   []string
	linked    []string
	installed []string
	closed    int
	events    chan Event
}

func (f *fakeInstance) Create(n *Node) error {
	if n.Name() == f.backend.failCreate {
		return errors.New("no such element")
	}
	f.created = append(f.created, n.Name())
	return nil
}

func (f *fakeInstance) Link(l *Link) error {
	if l.String() == f.backend.failLink {
		return errors.New("incompatible caps")
	}
	f.linked = append(f.linked, l.String())
	return nil
}

func (f *fakeInstance) InstallProbe(p *Port) error {
	f.installed = append(f.installed, p.Path())
	return nil
}

func (f *fakeInstance) Play() error          { return nil }
func (f *fakeInstance) SendEOS() bool        { return true }
func (f *fakeInstance) Events() <-chan Event { return f.events }
func (f *fakeInstance) Close() error {
	f.closed++
	return nil
}

var firefox = target.Descriptor{Handle: 0x200, Title: "Mozilla Firefox", PID: 20}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Capture.Element = CaptureXImage
	return opts
}

func build(t *testing.T, b *fakeBackend, opts Options) (*Graph, error) {
	t.Helper()
	return NewBuilder(b, opts, nil).Build(firefox, "test.mp4")
}

func TestBuild_Topology(t *testing.T) {
	b := &fakeBackend{}
	g, err := build(t, b, testOptions())
	require.NoError(t, err)
	require.NoError(t, ValidateTopology(g))

	var names []string
	for _, n := range g.Nodes() {
		names = append(names, n.Name())
	}
	wantNodes := []string{
		"capture-0", "rate-0", "fanout-0",
		"queue-0", "convert-0", "scale-0", "framesink-0",
		"queue-1", "convert-1", "scale-1", "encoder-0", "mux-0", "filesink-0",
	}
	if diff := cmp.Diff(wantNodes, names); diff != "" {
		t.Errorf("node order mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, b.instances, 1)
	inst := b.instances[0]
	assert.Equal(t, wantNodes, inst.created)

	wantLinks := []string{
		"capture-0.src -> rate-0.sink",
		"rate-0.src -> fanout-0.sink",
		"queue-0.src -> convert-0.sink",
		"convert-0.src -> scale-0.sink",
		"scale-0.src -> framesink-0.sink",
		"queue-1.src -> convert-1.sink",
		"convert-1.src -> scale-1.sink",
		"scale-1.src -> encoder-0.sink",
		"encoder-0.src -> mux-0.sink",
		"mux-0.src -> filesink-0.sink",
		"fanout-0.src_0 -> queue-0.sink",
		"fanout-0.src_1 -> queue-1.sink",
	}
	if diff := cmp.Diff(wantLinks, inst.linked); diff != "" {
		t.Errorf("link order mismatch (-want +got):\n%s", diff)
	}
	assert.Zero(t, inst.closed)

	h := g.Handles
	assert.Len(t, h.FanOut.Outputs(), 2)
	assert.Equal(t, uint64(0x200), h.Capture.Config().(CaptureConfig).Handle)
	assert.Equal(t, "test.mp4", h.FileSink.Config().(FileSinkConfig).Path)
	assert.NotNil(t, h.RawQueue.Monitor())
	assert.NotNil(t, h.EncodeQueue.Monitor())
	assert.NotNil(t, h.FrameSink.FrameSink())
	assert.Nil(t, h.FileSink.FrameSink())
	assert.Equal(t, FormatRGB, h.RawScale.Output().Format)
	assert.Equal(t, 192, h.RawScale.Output().Width)
	assert.NotEmpty(t, g.ID)
}

func TestBuild_GraphsShareNothing(t *testing.T) {
	b := &fakeBackend{}
	g1, err := build(t, b, testOptions())
	require.NoError(t, err)
	g2, err := build(t, b, testOptions())
	require.NoError(t, err)

	assert.NotEqual(t, g1.ID, g2.ID)

	nodes := map[*Node]bool{}
	ports := map[*Port]bool{}
	for _, n := range g1.Nodes() {
		nodes[n] = true
		for _, p := range append(n.Inputs(), n.Outputs()...) {
			ports[p] = true
		}
	}
	for _, n := range g2.Nodes() {
		assert.False(t, nodes[n], "node %s shared", n.Name())
		for _, p := range append(n.Inputs(), n.Outputs()...) {
			assert.False(t, ports[p], "port %s shared", p.Path())
		}
	}
	links := map[*Link]bool{}
	for _, l := range g1.Links() {
		links[l] = true
	}
	for _, l := range g2.Links() {
		assert.False(t, links[l], "link %s shared", l)
	}
}

func TestBuild_ValidationBeforeAllocation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
		node   string
	}{
		{"bad profile", func(o *Options) { o.Encode.Profile = "extreme" }, "encoder-0"},
		{"zero rate", func(o *Options) { o.Rate.MaxRate = 0 }, "rate-0"},
		{"buffer too large", func(o *Options) { o.EncodeBuffer.Capacity = 5000 }, "queue-1"},
		{"frame sink format", func(o *Options) { o.FrameSink.Format = "YUY2" }, "framesink-0"},
		{"unknown container", func(o *Options) { o.Mux.Container = "avi" }, "mux-0"},
		{"unknown capture element", func(o *Options) { o.Capture.Element = "nope" }, "capture-0"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{}
			opts := testOptions()
			tc.mutate(&opts)

			g, err := build(t, b, opts)
			assert.Nil(t, g)

			var cerr *ConstructionError
			require.True(t, errors.As(err, &cerr), "got %v", err)
			assert.Equal(t, tc.node, cerr.Node)
			assert.Equal(t, "validate", cerr.Op)
			assert.Empty(t, b.instances, "backend must not be touched")
		})
	}
}

func TestBuild_EmptyOutputPath(t *testing.T) {
	b := &fakeBackend{}
	g, err := NewBuilder(b, testOptions(), nil).Build(firefox, "  ")
	assert.Nil(t, g)

	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "filesink-0", cerr.Node)
}

func TestBuild_CreateFailureReleasesInstance(t *testing.T) {
	b := &fakeBackend{failCreate: "encoder-0"}
	g, err := build(t, b, testOptions())
	assert.Nil(t, g)

	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "encoder-0", cerr.Node)
	assert.Equal(t, "create", cerr.Op)
	assert.Contains(t, err.Error(), "no such element")

	require.Len(t, b.instances, 1)
	assert.Equal(t, 1, b.instances[0].closed)
}

func TestBuild_LinkFailureReleasesInstance(t *testing.T) {
	b := &fakeBackend{failLink: "scale-1.src -> encoder-0.sink"}
	g, err := build(t, b, testOptions())
	assert.Nil(t, g)

	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "scale-1", cerr.Node)
	assert.Equal(t, "link", cerr.Op)
	assert.Equal(t, 1, b.instances[0].closed)
}

func TestBuild_PortExhaustion(t *testing.T) {
	b := &fakeBackend{}
	opts := testOptions()
	opts.FanOut.MaxOutputs = 1

	g, err := build(t, b, opts)
	assert.Nil(t, g)
	assert.ErrorIs(t, err, ErrPortExhausted)

	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "fanout-0", cerr.Node)
	assert.Equal(t, "request-port", cerr.Op)

	// The raw-frame branch got its port before exhaustion
	assert.Contains(t, b.instances[0].linked, "fanout-0.src_0 -> queue-0.sink")
	assert.Equal(t, 1, b.instances[0].closed)
}

func TestBuild_InstanceFailure(t *testing.T) {
	b := &fakeBackend{failNew: errors.New("gstreamer not available")}
	_, err := build(t, b, testOptions())

	var cerr *ConstructionError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "instance", cerr.Op)
}

func TestGraph_AttachProbe(t *testing.T) {
	b := &fakeBackend{}
	g, err := build(t, b, testOptions())
	require.NoError(t, err)
	other, err := build(t, b, testOptions())
	require.NoError(t, err)

	port := g.Handles.Capture.Output()
	noop := func(*probe.Sample) probe.Disposition { return probe.Continue }

	require.NoError(t, g.AttachProbe(port, noop))
	require.NoError(t, g.AttachProbe(port, noop))
	assert.Equal(t, 2, port.Probes().Len())
	assert.Equal(t, []string{"capture-0.src"}, b.instances[0].installed, "backend instruments a port once")

	assert.ErrorIs(t, g.AttachProbe(other.Handles.Capture.Output(), noop), ErrForeignPort)
	assert.ErrorIs(t, g.AttachProbe(nil, noop), ErrForeignPort)
	assert.Error(t, g.AttachProbe(port, nil))
}

func TestGraph_FrameConsumer(t *testing.T) {
	g, err := build(t, &fakeBackend{}, testOptions())
	require.NoError(t, err)

	var got uint64
	g.SetFrameConsumer(func(s *probe.Sample) probe.Flow {
		got = s.Seq
		return probe.FlowOK
	})
	assert.Equal(t, probe.FlowOK, g.Handles.FrameSink.FrameSink().Deliver(&probe.Sample{Seq: 7}))
	assert.Equal(t, uint64(7), got)
}

func TestGraph_OverrunRouting(t *testing.T) {
	g, err := build(t, &fakeBackend{}, testOptions())
	require.NoError(t, err)

	// Signals before a handler is installed are counted but not routed
	g.Handles.RawQueue.Monitor().Full()
	g.Handles.RawQueue.Monitor().Level(0)

	var signals []backpressure.Signal
	g.OnOverrun(func(s backpressure.Signal) { signals = append(signals, s) })

	g.Handles.EncodeQueue.Monitor().Full()
	g.Handles.EncodeQueue.Monitor().Full()

	require.Len(t, signals, 1)
	assert.Equal(t, "queue-1", signals[0].Buffer)
	assert.Equal(t, backpressure.DefaultCapacity, signals[0].Capacity)
}

func TestGraph_ClaimAndClose(t *testing.T) {
	b := &fakeBackend{}
	g, err := build(t, b, testOptions())
	require.NoError(t, err)

	assert.True(t, g.Claim())
	assert.False(t, g.Claim())

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	assert.Equal(t, 1, b.instances[0].closed)
}

func TestValidateTopology_DetectsBrokenGraphs(t *testing.T) {
	g, err := build(t, &fakeBackend{}, testOptions())
	require.NoError(t, err)

	// Cut the encode branch below the encoder
	enc := g.Handles.Encoder.Output()
	mux := enc.peer
	enc.peer, mux.peer = nil, nil
	assert.Error(t, ValidateTopology(g))

	enc.peer, mux.peer = mux, enc
	assert.NoError(t, ValidateTopology(g))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		message, debug string
		want           ErrorCategory
	}{
		{"unsupported profile", "", ErrCategoryCodec},
		{"Internal data stream error.", "streaming stopped, reason not-negotiated", ErrCategoryNegotiation},
		{"Internal data stream error.", "streaming stopped, reason error (-5)", ErrCategoryStream},
		{"not negotiated", "", ErrCategoryNegotiation},
		{"Could not open file \"test.mp4\" for writing.", "", ErrCategoryResource},
		{"", "", ErrCategoryUnknown},
		{"something odd", "", ErrCategoryUnknown},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ClassifyError(tc.message, tc.debug), tc.message)
	}
}
