package windowrecorder

import (
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/cadence"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/config"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/events"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/inference"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/lifecycle"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/target"
)

// Re-exported types used at the API boundary.
type (
	Window            = target.Window
	Descriptor        = target.Descriptor
	Provider          = target.Provider
	Sample            = probe.Sample
	Flow              = probe.Flow
	ResolutionError   = target.ResolutionError
	ConstructionError = graph.ConstructionError
	RuntimeError      = lifecycle.RuntimeError
	State             = lifecycle.State

	Config       = config.Config
	BufferConfig = config.BufferConfig
	Backend      = graph.Backend
	CadenceStats = cadence.Stats
	MailboxStats = inference.MailboxStats

	EventBus               = events.Bus
	OverrunEvent           = events.OverrunEvent
	PipelineStateEvent     = events.PipelineStateEvent
	WarningEvent           = events.WarningEvent
	RuntimeErrorEvent      = events.RuntimeErrorEvent
	ShutdownRequestedEvent = events.ShutdownRequestedEvent
)

const (
	StateConstructed = lifecycle.Constructed
	StatePlaying     = lifecycle.Playing
	StateDraining    = lifecycle.Draining
	StateTerminated  = lifecycle.Terminated
)

const (
	FlowOK    = probe.FlowOK
	FlowEOS   = probe.FlowEOS
	FlowError = probe.FlowError
)

// ErrNotFound is wrapped by a *ResolutionError when no window matches.
var ErrNotFound = target.ErrNotFound

// ErrProviderUnavailable is wrapped by a *ResolutionError when the window
// provider cannot run on this host (e.g. wmctrl is not installed).
var ErrProviderUnavailable = target.ErrUnavailable

// DefaultConfig returns the reference configuration. Callers set at least
// Target.Window and Output.Path before passing it to WithConfig.
func DefaultConfig() *Config { return config.Default() }

// LoadConfig reads a TOML or YAML configuration file over the defaults.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewEventBus returns a bus for WithEvents. Subscribe with a typed handler,
// e.g. func(OverrunEvent).
func NewEventBus() *EventBus { return events.New() }

// StaticWindows is a Provider over a fixed window list.
func StaticWindows(windows ...Window) Provider { return target.Static(windows) }

// Stats is a point-in-time view of a recording.
type Stats struct {
	GraphID string
	State   string
	Target  Descriptor
	// Frames is the number of samples delivered to the frame sink
	Frames uint64
	// Overruns counts saturation episodes over all bounded buffers
	Overruns uint64
	Cadence  CadenceStats
	Mailbox  MailboxStats
}
