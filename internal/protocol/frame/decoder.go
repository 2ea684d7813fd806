package frame

import (
	"encoding/binary"
	"fmt"
)

// Status is the outcome of one Decoder.Next step.
type Status uint8

const (
	// NotSynchronized means no marker is buffered yet.
	NotSynchronized Status = iota
	// IncompleteFrame means a frame start is known but more bytes are needed.
	IncompleteFrame
	// CorruptFrame means a frame was dropped; the buffer has moved past it.
	CorruptFrame
	// Decoded means Next returned a frame.
	Decoded
)

func (s Status) String() string {
	switch s {
	case NotSynchronized:
		return "not_synchronized"
	case IncompleteFrame:
		return "incomplete_frame"
	case CorruptFrame:
		return "corrupt_frame"
	case Decoded:
		return "decoded"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Waiting reports whether the caller should feed more bytes before calling
// Next again.
func (s Status) Waiting() bool {
	return s == NotSynchronized || s == IncompleteFrame
}

// Decoder turns an arbitrarily chunked byte stream into frames. It owns its
// buffer and is not safe for concurrent use.
type Decoder struct {
	buf *Buffer
	// total is the length of the frame at offset zero once its header has been
	// read; zero while unsynchronized.
	total int
}

func NewDecoder(capacity int) *Decoder {
	return &Decoder{buf: NewBuffer(capacity)}
}

// Feed buffers p. It returns false, dropping all of p, when p does not fit.
func (d *Decoder) Feed(p []byte) bool {
	return d.buf.Append(p)
}

// Free is the number of bytes Feed can currently accept.
func (d *Decoder) Free() int { return d.buf.Free() }

func (d *Decoder) Buffered() int { return d.buf.Len() }

func (d *Decoder) Capacity() int { return d.buf.Cap() }

// Next advances by at most one frame. Call it until the status is Waiting.
//
// While a frame's length is known the buffer is not rescanned, so marker bytes
// inside its payload cannot trigger a resync. A decoded or corrupt frame is
// always compacted away, trading the frame for forward progress.
func (d *Decoder) Next() (Frame, Status, error) {
	if d.total == 0 {
		if !Align(d.buf) {
			return Frame{}, NotSynchronized, nil
		}
		if d.buf.Len() < MinSyncLen {
			return Frame{}, IncompleteFrame, nil
		}
		total := binary.LittleEndian.Uint32(d.buf.Bytes()[totalLenOffset:])
		if total < PreambleLen || uint64(total) > uint64(d.buf.Cap()) {
			d.buf.Compact(MarkerLen)
			return Frame{}, CorruptFrame, fmt.Errorf("%w: len=%d capacity=%d", ErrPacketLenOutOfRange, total, d.buf.Cap())
		}
		d.total = int(total)
	}

	if d.buf.Len() < d.total {
		return Frame{}, IncompleteFrame, nil
	}

	f, err := decode(d.buf.Bytes()[:d.total])
	d.buf.Compact(d.total)
	d.total = 0
	if err != nil {
		return Frame{}, CorruptFrame, err
	}
	return f, Decoded, nil
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf.Reset()
	d.total = 0
}
