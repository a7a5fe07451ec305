// Package inference hands frame-sink samples to an analysis consumer.
//
// The frame sink callback runs on a streaming thread and must never block,
// so samples are copied into a single-slot Mailbox that keeps only the
// latest frame. A consumer goroutine (for example the Exporter) reads from
// the mailbox at its own pace; frames it is too slow for are counted as
// dropped.
package inference

import (
	"time"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/window-recorder/internal/probe"
)

// Frame is an owned copy of a frame-sink sample.
type Frame struct {
	// TraceID follows the frame across process boundaries
	TraceID   string    `msgpack:"trace_id"`
	Seq       uint64    `msgpack:"seq"`
	Port      string    `msgpack:"port"`
	Timestamp time.Time `msgpack:"timestamp"`
	Width     int       `msgpack:"width"`
	Height    int       `msgpack:"height"`
	Format    string    `msgpack:"format"`
	Data      []byte    `msgpack:"data"`
}

// FromSample copies s. The sample data is only valid during the callback.
func FromSample(s *probe.Sample) *Frame {
	data := make([]byte, len(s.Data))
	copy(data, s.Data)
	return &Frame{
		TraceID:   uuid.NewString(),
		Seq:       s.Seq,
		Port:      s.Port,
		Timestamp: s.Timestamp,
		Width:     s.Width,
		Height:    s.Height,
		Format:    s.Format,
		Data:      data,
	}
}
