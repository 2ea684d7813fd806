package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the size of one segment header: type(u32) + length(u32).
const HeaderLen = 8

var (
	ErrShortSegmentHeader = errors.New("tlv: short segment header")
	ErrShortSegmentValue  = errors.New("tlv: segment length runs past frame")
)

// Segment type IDs emitted by the vital-signs demo firmware.
const (
	TypeDetectedPoints uint32 = 1
	TypeRangeProfile   uint32 = 2
	TypeVitalSigns     uint32 = 6
)

// Segment is one TLV inside a frame body. Payload aliases the source buffer.
type Segment struct {
	Type    uint32
	Payload []byte
}

func EncodeSegment(s Segment) []byte {
	buf := make([]byte, HeaderLen+len(s.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], s.Type)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(s.Payload)))
	copy(buf[HeaderLen:], s.Payload)
	return buf
}

func EncodeSegments(segments []Segment) []byte {
	out := make([]byte, 0)
	for _, s := range segments {
		out = append(out, EncodeSegment(s)...)
	}
	return out
}

// Walk reads exactly count segments from body. It trusts the declared
// lengths but never reads past len(body). Segments decoded before a failure
// are returned alongside the error.
func Walk(body []byte, count uint32) ([]Segment, error) {
	segments := make([]Segment, 0, min(int(count), 16))
	i := 0
	for n := uint32(0); n < count; n++ {
		if len(body)-i < HeaderLen {
			return segments, fmt.Errorf("%w: segment %d at offset %d", ErrShortSegmentHeader, n, i)
		}
		typ := binary.LittleEndian.Uint32(body[i : i+4])
		l := binary.LittleEndian.Uint32(body[i+4 : i+8])
		i += HeaderLen
		if uint64(len(body)-i) < uint64(l) {
			return segments, fmt.Errorf("%w: segment %d type=%d len=%d remaining=%d", ErrShortSegmentValue, n, typ, l, len(body)-i)
		}
		segments = append(segments, Segment{Type: typ, Payload: body[i : i+int(l)]})
		i += int(l)
	}
	return segments, nil
}

func GetSegment(segments []Segment, typ uint32) (Segment, bool) {
	for _, s := range segments {
		if s.Type == typ {
			return s, true
		}
	}
	return Segment{}, false
}
