package frame

// DefaultCapacity is the receive buffer size used when none is configured.
const DefaultCapacity = 1 << 15

// Buffer is a fixed-capacity byte accumulator. Only the prefix [0, Len()) is
// valid; the tail is zeroed on compaction and never read.
type Buffer struct {
	data []byte
	n    int
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{data: make([]byte, capacity)}
}

// Append copies p after the valid prefix. It appends all of p or nothing and
// reports false when p does not fit.
func (b *Buffer) Append(p []byte) bool {
	if b.n+len(p) > len(b.data) {
		return false
	}
	b.n += copy(b.data[b.n:], p)
	return true
}

// Compact drops the first offset bytes and shifts the rest to the front.
func (b *Buffer) Compact(offset int) {
	if offset <= 0 {
		return
	}
	if offset >= b.n {
		clear(b.data[:b.n])
		b.n = 0
		return
	}
	copy(b.data, b.data[offset:b.n])
	clear(b.data[b.n-offset : b.n])
	b.n -= offset
}

// Bytes returns the valid prefix. The slice is invalidated by the next
// Append or Compact.
func (b *Buffer) Bytes() []byte { return b.data[:b.n] }

func (b *Buffer) Len() int { return b.n }

func (b *Buffer) Cap() int { return len(b.data) }

func (b *Buffer) Free() int { return len(b.data) - b.n }

func (b *Buffer) Reset() { b.Compact(b.n) }
