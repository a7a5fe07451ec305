package sim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// The simulated muxer writes a sequence of records, each framed as
// [1-byte kind][4-byte big-endian length][msgpack body].
const (
	recordHeader byte = iota + 1
	recordPacket
	recordTrailer
)

// Header opens a simulated recording.
type Header struct {
	Container string    `msgpack:"container"`
	Codec     string    `msgpack:"codec"`
	Profile   string    `msgpack:"profile"`
	Width     int       `msgpack:"width"`
	Height    int       `msgpack:"height"`
	Created   time.Time `msgpack:"created"`
}

// Packet is one encoded unit.
type Packet struct {
	Seq  uint64        `msgpack:"seq"`
	PTS  time.Duration `msgpack:"pts"`
	Key  bool          `msgpack:"key"`
	Data []byte        `msgpack:"data"`
}

// Trailer closes a simulated recording. A file without trailer was not
// finalized.
type Trailer struct {
	Packets  uint64        `msgpack:"packets"`
	Duration time.Duration `msgpack:"duration"`
}

// Recording is a decoded simulated output file.
type Recording struct {
	Header  Header
	Packets []Packet
	Trailer *Trailer
}

func encodeRecord(kind byte, v any) ([]byte, error) {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	out := make([]byte, 5+len(body))
	out[0] = kind
	binary.BigEndian.PutUint32(out[1:5], uint32(len(body)))
	copy(out[5:], body)
	return out, nil
}

// ReadRecording decodes a file written by the simulated mux + file sink.
func ReadRecording(r io.Reader) (*Recording, error) {
	rec := &Recording{}
	var sawHeader bool
	prefix := make([]byte, 5)

	for {
		if _, err := io.ReadFull(r, prefix); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read record prefix: %w", err)
		}
		size := binary.BigEndian.Uint32(prefix[1:5])
		body := make([]byte, size)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, fmt.Errorf("failed to read record body: %w", err)
		}

		dec := msgpack.NewDecoder(bytes.NewReader(body))
		switch prefix[0] {
		case recordHeader:
			if err := dec.Decode(&rec.Header); err != nil {
				return nil, fmt.Errorf("failed to decode header: %w", err)
			}
			sawHeader = true
		case recordPacket:
			var p Packet
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("failed to decode packet: %w", err)
			}
			rec.Packets = append(rec.Packets, p)
		case recordTrailer:
			var t Trailer
			if err := dec.Decode(&t); err != nil {
				return nil, fmt.Errorf("failed to decode trailer: %w", err)
			}
			rec.Trailer = &t
		default:
			return nil, fmt.Errorf("unknown record kind %d", prefix[0])
		}
	}

	if !sawHeader {
		return nil, errors.New("recording has no header")
	}
	return rec, nil
}
