package sim

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/renameio/v2"
	"golang.org/x/time/rate"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// buffer is one unit flowing through the simulated graph. An eos buffer
// carries no data.
type buffer struct {
	eos    bool
	pts    time.Duration
	format string
	width  int
	height int
	data   []byte
	key    bool
}

type chainFunc func(e *element, b *buffer) error

type pad struct {
	port   *graph.Port
	peer   *element
	probed atomic.Bool
}

// run evaluates the probe chain of the pad for b.
func (p *pad) run(b *buffer) probe.Disposition {
	chain := p.port.Probes()
	return chain.Run(&probe.Sample{
		Port:      p.port.Path(),
		Seq:       chain.NextSeq(),
		Timestamp: time.Now(),
		Width:     b.width,
		Height:    b.height,
		Format:    b.format,
		Data:      b.data,
	})
}

type element struct {
	inst  *Instance
	node  *graph.Node
	in    *pad
	outs  []*pad
	chain chainFunc
	fault string
	units atomic.Uint64
}

func (e *element) outPad(port *graph.Port) *pad {
	for _, p := range e.outs {
		if p.port == port {
			return p
		}
	}
	return nil
}

// receive is the input side of an element.
func (e *element) receive(b *buffer) error {
	if !b.eos {
		n := e.units.Add(1)
		if e.fault != "" && n > uint64(e.inst.opts.FaultAfter) {
			return &stageError{node: e.node.Name(), message: e.fault}
		}
		if e.in != nil && e.in.probed.Load() && e.in.run(b) == probe.Drop {
			return nil
		}
	}
	return e.chain(e, b)
}

// pushOut hands b to the element linked to output i.
func (e *element) pushOut(i int, b *buffer) error {
	p := e.outs[i]
	if !b.eos && p.probed.Load() && p.run(b) == probe.Drop {
		return nil
	}
	if p.peer == nil {
		return &stageError{node: e.node.Name(), message: "Internal data stream error.", debug: "streaming stopped, reason not-linked"}
	}
	return p.peer.receive(b)
}

func notNegotiated(e *element, err error) error {
	return &stageError{node: e.node.Name(), message: "not negotiated", debug: err.Error()}
}

// rateChain drops units so that at most max pass per second of stream time.
func rateChain(max int) chainFunc {
	limiter := rate.NewLimiter(rate.Limit(max), 1)
	epoch := time.Unix(0, 0)
	return func(e *element, b *buffer) error {
		if !b.eos && !limiter.AllowN(epoch.Add(b.pts), 1) {
			return nil
		}
		return e.pushOut(0, b)
	}
}

func fanOutChain(e *element, b *buffer) error {
	for i := range e.outs {
		if err := e.pushOut(i, b); err != nil {
			return err
		}
	}
	return nil
}

func convertChain(format string) chainFunc {
	return func(e *element, b *buffer) error {
		if b.eos {
			return e.pushOut(0, b)
		}
		out, err := convertFormat(b, format)
		if err != nil {
			return notNegotiated(e, err)
		}
		return e.pushOut(0, out)
	}
}

func scaleChain(w, h int) chainFunc {
	return func(e *element, b *buffer) error {
		if b.eos {
			return e.pushOut(0, b)
		}
		out, err := scaleFrame(b, w, h)
		if err != nil {
			return notNegotiated(e, err)
		}
		return e.pushOut(0, out)
	}
}

// encoder tags I420 frames as access units; pixels pass through.
type encoder struct {
	cfg    graph.EncodeConfig
	frames uint64
}

func (enc *encoder) chain(e *element, b *buffer) error {
	if b.eos {
		return e.pushOut(0, b)
	}
	if b.format != graph.FormatI420 {
		return notNegotiated(e, fmt.Errorf("encoder input must be %s, got %s", graph.FormatI420, b.format))
	}
	interval := uint64(enc.cfg.KeyframeInterval)
	key := enc.frames == 0 || (interval > 0 && enc.frames%interval == 0)
	enc.frames++
	return e.pushOut(0, &buffer{
		pts:    b.pts,
		format: "H264/" + enc.cfg.Profile,
		width:  b.width,
		height: b.height,
		data:   b.data,
		key:    key,
	})
}

// muxer serializes access units into container records.
type muxer struct {
	cfg     graph.MuxConfig
	started bool
	packets uint64
	first   time.Duration
	last    time.Duration
}

func (m *muxer) chain(e *element, b *buffer) error {
	if b.eos {
		if !m.started {
			if err := m.header(e, b); err != nil {
				return err
			}
		}
		rec, err := encodeRecord(recordTrailer, Trailer{Packets: m.packets, Duration: m.last - m.first})
		if err != nil {
			return &stageError{node: e.node.Name(), message: "could not write trailer", debug: err.Error()}
		}
		if err := e.pushOut(0, &buffer{data: rec}); err != nil {
			return err
		}
		return e.pushOut(0, b)
	}

	if !m.started {
		if err := m.header(e, b); err != nil {
			return err
		}
		m.first = b.pts
	}
	rec, err := encodeRecord(recordPacket, Packet{Seq: m.packets, PTS: b.pts, Key: b.key, Data: b.data})
	if err != nil {
		return &stageError{node: e.node.Name(), message: "could not mux packet", debug: err.Error()}
	}
	m.packets++
	m.last = b.pts
	return e.pushOut(0, &buffer{pts: b.pts, format: m.cfg.Container, data: rec})
}

func (m *muxer) header(e *element, b *buffer) error {
	m.started = true
	codec, profile, _ := strings.Cut(b.format, "/")
	rec, err := encodeRecord(recordHeader, Header{
		Container: m.cfg.Container,
		Codec:     codec,
		Profile:   profile,
		Width:     b.width,
		Height:    b.height,
		Created:   time.Now().UTC(),
	})
	if err != nil {
		return &stageError{node: e.node.Name(), message: "could not write header", debug: err.Error()}
	}
	return e.pushOut(0, &buffer{format: m.cfg.Container, data: rec})
}

// fileSink writes to a pending file that only replaces the output path once
// end-of-stream arrives.
type fileSink struct {
	path      string
	pending   *renameio.PendingFile
	finalized bool
	written   uint64
}

func (fs *fileSink) open() error {
	pf, err := renameio.NewPendingFile(fs.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("sim: could not open %q for writing: %w", fs.path, err)
	}
	fs.pending = pf
	return nil
}

func (fs *fileSink) chain(e *element, b *buffer) error {
	if fs.finalized {
		return nil
	}
	if b.eos {
		if err := fs.pending.CloseAtomicallyReplace(); err != nil {
			return &stageError{node: e.node.Name(), message: fmt.Sprintf("Could not close file %q.", fs.path), debug: err.Error()}
		}
		fs.finalized = true
		e.inst.sinkEOS()
		return nil
	}
	n, err := fs.pending.Write(b.data)
	if err != nil {
		return &stageError{node: e.node.Name(), message: fmt.Sprintf("Error while writing to file %q.", fs.path), debug: err.Error()}
	}
	fs.written += uint64(n)
	return nil
}

// abort discards an unfinished output.
func (fs *fileSink) abort() error {
	if fs.pending == nil || fs.finalized {
		return nil
	}
	err := fs.pending.Cleanup()
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// frameSink hands every unit to the consumer installed on the node.
type frameSink struct {
	cfg  graph.FrameSinkConfig
	seq  uint64
	done bool
}

func (fs *frameSink) chain(e *element, b *buffer) error {
	if fs.done {
		return nil
	}
	if b.eos {
		fs.done = true
		e.inst.sinkEOS()
		return nil
	}
	if b.format != fs.cfg.Format || b.width != fs.cfg.Width || b.height != fs.cfg.Height {
		return notNegotiated(e, fmt.Errorf("got %s %dx%d, want %s %dx%d",
			b.format, b.width, b.height, fs.cfg.Format, fs.cfg.Width, fs.cfg.Height))
	}

	fs.seq++
	flow := e.node.FrameSink().Deliver(&probe.Sample{
		Port:      e.node.Name(),
		Seq:       fs.seq,
		Timestamp: time.Now(),
		Width:     b.width,
		Height:    b.height,
		Format:    b.format,
		Data:      b.data,
	})
	switch flow {
	case probe.FlowEOS:
		fs.done = true
		e.inst.sinkEOS()
	case probe.FlowError:
		return &stageError{node: e.node.Name(), message: "frame consumer returned an error"}
	}
	return nil
}
