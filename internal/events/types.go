// Package events broadcasts observational notifications (overruns, state
// transitions, warnings, runtime errors) to in-process subscribers.
//
// Delivery is asynchronous: publishers never wait for subscribers. Nothing
// published here drives the lifecycle; the controller consumes the graph
// event channel directly.
package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeOverrun uint32 = iota + 1
	TypePipelineState
	TypeWarning
	TypeRuntimeError
	TypeShutdownRequested
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// OverrunEvent reports the start of a saturation episode of a bounded buffer.
type OverrunEvent struct {
	GraphID  string
	Buffer   string
	Capacity int
	Episode  uint64
	At       time.Time
}

// Type returns the event type identifier for OverrunEvent.
func (e OverrunEvent) Type() uint32 { return TypeOverrun }

// PipelineStateEvent reports a lifecycle transition.
type PipelineStateEvent struct {
	GraphID string
	From    string
	To      string
	At      time.Time
}

// Type returns the event type identifier for PipelineStateEvent.
func (e PipelineStateEvent) Type() uint32 { return TypePipelineState }

// WarningEvent carries a non-fatal backend warning.
type WarningEvent struct {
	GraphID string
	Source  string
	Message string
	At      time.Time
}

// Type returns the event type identifier for WarningEvent.
func (e WarningEvent) Type() uint32 { return TypeWarning }

// RuntimeErrorEvent reports the error that terminated a graph.
type RuntimeErrorEvent struct {
	GraphID  string
	Source   string
	Message  string
	Category string
	At       time.Time
}

// Type returns the event type identifier for RuntimeErrorEvent.
func (e RuntimeErrorEvent) Type() uint32 { return TypeRuntimeError }

// ShutdownRequestedEvent reports an accepted out-of-band shutdown request.
type ShutdownRequestedEvent struct {
	GraphID string
	At      time.Time
}

// Type returns the event type identifier for ShutdownRequestedEvent.
func (e ShutdownRequestedEvent) Type() uint32 { return TypeShutdownRequested }
