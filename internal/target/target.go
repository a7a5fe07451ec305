// Package target resolves the on-screen window to capture.
package target

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no window matches a selector.
var ErrNotFound = errors.New("no matching window")

// ErrUnavailable is returned when a provider cannot enumerate windows on
// this host at all.
var ErrUnavailable = errors.New("window provider unavailable")

// Window is one top-level window reported by a Provider.
type Window struct {
	Title       string
	Handle      uint64
	PID         uint32
	ProcessPath string
}

// Descriptor identifies the resolved capture target. It is a value type and
// does not change once resolved.
type Descriptor struct {
	Handle      uint64
	Title       string
	PID         uint32
	ProcessPath string
}

// Provider enumerates the windows available for capture.
type Provider interface {
	Enumerate(ctx context.Context) ([]Window, error)
}

// ResolutionError reports that a selector could not be resolved.
type ResolutionError struct {
	Selector string
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve window %q: %v", e.Selector, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Resolve returns the first window whose title contains selector,
// compared case-insensitively, in enumeration order.
func Resolve(ctx context.Context, p Provider, selector string) (Descriptor, error) {
	windows, err := p.Enumerate(ctx)
	if err != nil {
		return Descriptor{}, &ResolutionError{Selector: selector, Err: fmt.Errorf("enumerate windows: %w", err)}
	}

	needle := strings.ToLower(selector)
	for _, w := range windows {
		if strings.Contains(strings.ToLower(w.Title), needle) {
			return Descriptor{
				Handle:      w.Handle,
				Title:       w.Title,
				PID:         w.PID,
				ProcessPath: w.ProcessPath,
			}, nil
		}
	}
	return Descriptor{}, &ResolutionError{Selector: selector, Err: ErrNotFound}
}

// Static is a Provider over a fixed window list.
type Static []Window

// Enumerate returns a copy of the list.
func (s Static) Enumerate(ctx context.Context) ([]Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return append([]Window(nil), s...), nil
}
