package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/vitalrelay/internal/protocol/tlv"
)

const (
	// HeaderLen covers the eight header words plus reserved padding; TLVs start
	// right after it.
	HeaderLen   = 40
	PreambleLen = MarkerLen + HeaderLen

	totalLenOffset = MarkerLen + 4
)

var (
	ErrPacketLenOutOfRange = errors.New("frame: total_packet_len out of range")
	ErrShortHeader         = errors.New("frame: short fixed header")
)

// Header is the fixed frame header that follows the marker.
type Header struct {
	Version        uint32
	TotalPacketLen uint32
	Platform       uint32
	FrameNumber    uint32
	TimeCPUCycles  uint32
	NumDetectedObj uint32
	NumTLVs        uint32
	SubFrameNumber uint32
}

// Frame is one decoded radar frame. Vitals and RangeProfile are nil when the
// frame carried no such segment.
type Frame struct {
	Header       Header
	Vitals       *tlv.VitalSigns
	RangeProfile []float64
	// Skipped lists segment types that were walked over but not decoded.
	Skipped []uint32
}

// HasRecords reports whether any segment decoded into a record.
func (f Frame) HasRecords() bool {
	return f.Vitals != nil || f.RangeProfile != nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderLen)
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	binary.LittleEndian.PutUint32(buf[4:8], h.TotalPacketLen)
	binary.LittleEndian.PutUint32(buf[8:12], h.Platform)
	binary.LittleEndian.PutUint32(buf[12:16], h.FrameNumber)
	binary.LittleEndian.PutUint32(buf[16:20], h.TimeCPUCycles)
	binary.LittleEndian.PutUint32(buf[20:24], h.NumDetectedObj)
	binary.LittleEndian.PutUint32(buf[24:28], h.NumTLVs)
	binary.LittleEndian.PutUint32(buf[28:32], h.SubFrameNumber)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(b))
	}
	return Header{
		Version:        binary.LittleEndian.Uint32(b[0:4]),
		TotalPacketLen: binary.LittleEndian.Uint32(b[4:8]),
		Platform:       binary.LittleEndian.Uint32(b[8:12]),
		FrameNumber:    binary.LittleEndian.Uint32(b[12:16]),
		TimeCPUCycles:  binary.LittleEndian.Uint32(b[16:20]),
		NumDetectedObj: binary.LittleEndian.Uint32(b[20:24]),
		NumTLVs:        binary.LittleEndian.Uint32(b[24:28]),
		SubFrameNumber: binary.LittleEndian.Uint32(b[28:32]),
	}, nil
}

// Encode builds a complete frame. TotalPacketLen and NumTLVs are derived from
// segments.
func Encode(h Header, segments []tlv.Segment) []byte {
	body := tlv.EncodeSegments(segments)
	h.TotalPacketLen = uint32(PreambleLen + len(body))
	h.NumTLVs = uint32(len(segments))

	out := make([]byte, 0, PreambleLen+len(body))
	out = append(out, Marker[:]...)
	out = append(out, EncodeHeader(h)...)
	return append(out, body...)
}

// decode parses one complete frame. raw spans exactly TotalPacketLen bytes.
func decode(raw []byte) (Frame, error) {
	h, err := DecodeHeader(raw[MarkerLen:])
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Header: h}

	segments, err := tlv.Walk(raw[PreambleLen:], h.NumTLVs)
	if err != nil {
		return f, fmt.Errorf("frame %d: %w", h.FrameNumber, err)
	}

	var vitals, profile *tlv.Segment
	for i := range segments {
		switch segments[i].Type {
		case tlv.TypeVitalSigns:
			vitals = &segments[i]
		case tlv.TypeRangeProfile:
			profile = &segments[i]
		default:
			f.Skipped = append(f.Skipped, segments[i].Type)
		}
	}

	// All segments are walked first so the bin span from the vital-signs
	// segment applies whatever the segment order.
	knownBins := 0
	if vitals != nil {
		v := tlv.DecodeVitalSigns(vitals.Payload)
		f.Vitals = &v
		if n, ok := v.BinSpan(); ok {
			knownBins = n
		}
	}
	if profile != nil {
		f.RangeProfile = tlv.DecodeRangeProfile(profile.Payload, knownBins)
	}
	return f, nil
}
