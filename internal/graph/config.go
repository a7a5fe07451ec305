package graph

import (
	"fmt"
	"strings"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/backpressure"
)

// NodeKind identifies the role of a processing node.
type NodeKind int

const (
	KindCapture NodeKind = iota
	KindRate
	KindFanOut
	KindQueue
	KindConvert
	KindScale
	KindEncode
	KindMux
	KindFileSink
	KindFrameSink
)

// String returns the name prefix used for nodes of this kind
func (k NodeKind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindRate:
		return "rate"
	case KindFanOut:
		return "fanout"
	case KindQueue:
		return "queue"
	case KindConvert:
		return "convert"
	case KindScale:
		return "scale"
	case KindEncode:
		return "encoder"
	case KindMux:
		return "mux"
	case KindFileSink:
		return "filesink"
	case KindFrameSink:
		return "framesink"
	default:
		return "unknown"
	}
}

// IsSink reports whether nodes of this kind terminate a branch.
func (k NodeKind) IsSink() bool {
	return k == KindFileSink || k == KindFrameSink
}

// NodeConfig is the typed configuration record of a node.
type NodeConfig interface {
	Kind() NodeKind
	Validate() error
}

// Capture elements understood by the backends
const (
	CaptureD3D11     = "d3d11screencapturesrc"
	CaptureXImage    = "ximagesrc"
	CaptureTestVideo = "videotestsrc"
)

// CaptureConfig parametrizes the capture source with the resolved target.
type CaptureConfig struct {
	Element    string
	Handle     uint64
	Title      string
	ShowCursor bool
	// Width/Height of the produced frames (test source and simulator only)
	Width  int
	Height int
}

func (CaptureConfig) Kind() NodeKind { return KindCapture }

// Validate checks that the element is known and that window capture has a handle.
func (c CaptureConfig) Validate() error {
	switch c.Element {
	case CaptureD3D11, CaptureXImage:
		if c.Handle == 0 {
			return fmt.Errorf("capture element %s requires a window handle", c.Element)
		}
	case CaptureTestVideo:
	default:
		return fmt.Errorf("unknown capture element %q", c.Element)
	}
	if c.Width < 0 || c.Height < 0 {
		return fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	}
	return nil
}

// RateConfig limits the unit rate on the primary path.
type RateConfig struct {
	// MaxRate is the maximum number of units per second
	MaxRate int
}

func (RateConfig) Kind() NodeKind { return KindRate }

func (c RateConfig) Validate() error {
	if c.MaxRate < 1 || c.MaxRate > 240 {
		return fmt.Errorf("invalid max rate %d (must be 1-240)", c.MaxRate)
	}
	return nil
}

// FanOutConfig configures the single fan-out point.
type FanOutConfig struct {
	// MaxOutputs caps how many output ports may be requested
	MaxOutputs int
}

func (FanOutConfig) Kind() NodeKind { return KindFanOut }

func (c FanOutConfig) Validate() error {
	if c.MaxOutputs < 1 || c.MaxOutputs > 16 {
		return fmt.Errorf("invalid max outputs %d (must be 1-16)", c.MaxOutputs)
	}
	return nil
}

// QueueConfig configures a bounded buffer.
type QueueConfig struct {
	Policy backpressure.Policy
}

func (QueueConfig) Kind() NodeKind { return KindQueue }

func (c QueueConfig) Validate() error { return c.Policy.Validate() }

// Pixel formats accepted by convert and frame-sink nodes
const (
	FormatRGB  = "RGB"
	FormatRGBA = "RGBA"
	FormatBGRA = "BGRA"
	FormatI420 = "I420"
)

func validFormat(f string) bool {
	switch f {
	case FormatRGB, FormatRGBA, FormatBGRA, FormatI420:
		return true
	}
	return false
}

// ConvertConfig restricts the output pixel format.
type ConvertConfig struct {
	Format string
}

func (ConvertConfig) Kind() NodeKind { return KindConvert }

func (c ConvertConfig) Validate() error {
	if !validFormat(c.Format) {
		return fmt.Errorf("unsupported pixel format %q", c.Format)
	}
	return nil
}

// ScaleConfig restricts the output resolution.
type ScaleConfig struct {
	Width  int
	Height int
}

func (ScaleConfig) Kind() NodeKind { return KindScale }

func (c ScaleConfig) Validate() error {
	return validateSize(c.Width, c.Height)
}

func validateSize(w, h int) error {
	if w < 16 || w > 7680 || h < 16 || h > 4320 {
		return fmt.Errorf("invalid resolution %dx%d (must be 16x16-7680x4320)", w, h)
	}
	return nil
}

// H.264 profiles
const (
	ProfileBaseline = "baseline"
	ProfileMain     = "main"
	ProfileHigh     = "high"
)

// EncodeConfig configures the encoder node.
type EncodeConfig struct {
	Element     string
	Codec       string
	Profile     string
	BitrateKbps int
	// KeyframeInterval is the maximum distance between keyframes, in frames
	KeyframeInterval int
	Tune             string
}

func (EncodeConfig) Kind() NodeKind { return KindEncode }

func (c EncodeConfig) Validate() error {
	if c.Element == "" {
		return fmt.Errorf("encoder element is required")
	}
	if !strings.EqualFold(c.Codec, "h264") {
		return fmt.Errorf("unsupported codec %q", c.Codec)
	}
	switch c.Profile {
	case ProfileBaseline, ProfileMain, ProfileHigh:
	default:
		return fmt.Errorf("unsupported profile %q", c.Profile)
	}
	if c.BitrateKbps < 64 || c.BitrateKbps > 100000 {
		return fmt.Errorf("invalid bitrate %d kbps (must be 64-100000)", c.BitrateKbps)
	}
	if c.KeyframeInterval < 0 {
		return fmt.Errorf("invalid keyframe interval %d", c.KeyframeInterval)
	}
	return nil
}

// Containers understood by the mux node
const (
	ContainerQuickTime = "quicktime"
	ContainerMP4       = "mp4"
	ContainerMatroska  = "matroska"
)

// MuxConfig selects the output container.
type MuxConfig struct {
	Container string
}

func (MuxConfig) Kind() NodeKind { return KindMux }

func (c MuxConfig) Validate() error {
	switch c.Container {
	case ContainerQuickTime, ContainerMP4, ContainerMatroska:
		return nil
	}
	return fmt.Errorf("unsupported container %q", c.Container)
}

// FileSinkConfig binds the file sink to the output path.
type FileSinkConfig struct {
	Path string
}

func (FileSinkConfig) Kind() NodeKind { return KindFileSink }

func (c FileSinkConfig) Validate() error {
	if strings.TrimSpace(c.Path) == "" {
		return fmt.Errorf("output path is required")
	}
	return nil
}

// FrameSinkConfig fixes the format delivered to the frame consumer.
type FrameSinkConfig struct {
	Format string
	Width  int
	Height int
}

func (FrameSinkConfig) Kind() NodeKind { return KindFrameSink }

func (c FrameSinkConfig) Validate() error {
	if !validFormat(c.Format) || c.Format == FormatI420 {
		return fmt.Errorf("unsupported frame sink format %q", c.Format)
	}
	return validateSize(c.Width, c.Height)
}
