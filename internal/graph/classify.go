package graph

import "strings"

// ErrorCategory classifies runtime errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryNegotiation indicates caps/format negotiation failures
	ErrCategoryNegotiation ErrorCategory = iota
	// ErrCategoryResource indicates file, device or window access failures
	ErrCategoryResource
	// ErrCategoryCodec indicates encoder or muxer failures
	ErrCategoryCodec
	// ErrCategoryStream indicates generic data-flow failures
	ErrCategoryStream
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	case ErrCategoryCodec:
		return "codec"
	case ErrCategoryStream:
		return "stream"
	default:
		return "unknown"
	}
}

var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	// Most specific first
	{ErrCategoryNegotiation, []string{
		"not negotiated",
		"not-negotiated",
		"negotiation",
		"caps",
		"no common format",
	}},
	{ErrCategoryCodec, []string{
		"profile",
		"encode",
		"encoder",
		"codec",
		"h264",
		"mux",
		"missing plugin",
	}},
	{ErrCategoryResource, []string{
		"could not open",
		"permission denied",
		"no space",
		"not found",
		"window",
		"resource",
		"device",
		"file",
	}},
	{ErrCategoryStream, []string{
		"stream",
		"flow",
		"internal data",
	}},
}

// ClassifyError categorizes a runtime error by message heuristics.
// Both the message and the debug string are inspected, case-insensitively.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	if strings.TrimSpace(combined) == "" {
		return ErrCategoryUnknown
	}
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(combined, kw) {
				return c.category
			}
		}
	}
	return ErrCategoryUnknown
}
