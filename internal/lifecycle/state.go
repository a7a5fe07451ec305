package lifecycle

import (
	"errors"
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/graph"
)

// State is the lifecycle state of a graph.
type State int32

const (
	Constructed State = iota
	Playing
	Draining
	Terminated
)

// String returns a human-readable representation of the state
func (s State) String() string {
	switch s {
	case Constructed:
		return "constructed"
	case Playing:
		return "playing"
	case Draining:
		return "draining"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

var (
	// ErrGraphClaimed is returned when a graph already has a controller.
	ErrGraphClaimed = errors.New("lifecycle: graph already owned by a controller")
	// ErrDrainTimeout is returned when end-of-stream does not arrive in time
	// after a shutdown request.
	ErrDrainTimeout = errors.New("lifecycle: drain timed out waiting for end of stream")
	// ErrEventsClosed is returned when the backend closes its event channel
	// while the graph is still playing.
	ErrEventsClosed = errors.New("lifecycle: event channel closed unexpectedly")
)

// RuntimeError is a failure reported by a stage while playing.
// Its text carries the node path and the stage message unmodified.
type RuntimeError struct {
	NodePath string
	Message  string
	Debug    string
	Category graph.ErrorCategory
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error from %s: %s", e.NodePath, e.Message)
}
