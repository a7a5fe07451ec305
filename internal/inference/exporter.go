package inference

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// maxFrameSize bounds a single encoded record (a 4K RGBA frame plus headers)
const maxFrameSize = 64 << 20

// WriteFrame writes f as a 4-byte big-endian length followed by the msgpack
// encoding.
func WriteFrame(w io.Writer, f *Frame) error {
	payload, err := msgpack.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal frame %d: %w", f.Seq, err)
	}
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}
	return nil
}

// ReadFrame reads one record written by WriteFrame. It returns io.EOF at a
// clean end of stream.
func ReadFrame(r io.Reader) (*Frame, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame record too large: %d bytes", n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}
	var f Frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal frame: %w", err)
	}
	return &f, nil
}

// Exporter streams mailbox frames to a writer.
type Exporter struct {
	mailbox *Mailbox
	w       io.Writer
	logger  *slog.Logger

	written uint64
}

// NewExporter returns an exporter reading from m and writing to w.
func NewExporter(m *Mailbox, w io.Writer, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{mailbox: m, w: w, logger: logger}
}

// Run writes frames until the mailbox is closed or ctx is done. A write
// failure stops the exporter; the recording continues without it.
func (e *Exporter) Run(ctx context.Context) error {
	e.logger.Info("inference: exporter started")
	for {
		f, ok := e.mailbox.Next(ctx)
		if !ok {
			stats := e.mailbox.Stats()
			e.logger.Info("inference: exporter stopped",
				"written", e.written,
				"dropped", stats.Dropped,
			)
			return nil
		}
		if err := WriteFrame(e.w, f); err != nil {
			e.logger.Error("inference: export failed, stopping exporter", "seq", f.Seq, "error", err)
			return err
		}
		e.written++
	}
}

// Written returns the number of exported frames. Only valid after Run returns.
func (e *Exporter) Written() uint64 { return e.written }

// OpenExport opens path for writing. Named pipes block until a reader opens
// the other end.
func OpenExport(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %w", path, err)
	}
	return f, nil
}
