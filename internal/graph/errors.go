package graph

import (
	"errors"
	"fmt"
)

// ErrPortExhausted is returned when the fan-out has no request port left.
var ErrPortExhausted = errors.New("no request port available")

// ConstructionError reports a failure while building a graph.
// Nothing built before the failure survives it.
type ConstructionError struct {
	// Node is the name of the node involved, empty for graph-wide checks
	Node string
	// Op is the build step: "validate", "create", "request-port", "link", "topology"
	Op  string
	Err error
}

func (e *ConstructionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph construction failed (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("graph construction failed at %s (%s): %v", e.Node, e.Op, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }
