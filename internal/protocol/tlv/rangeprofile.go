package tlv

import (
	"encoding/binary"
	"math"
)

// RangeBinLen is one complex range bin: real(int16 BE) + imag(int16 BE).
const RangeBinLen = 4

// Bin is one raw complex range bin.
type Bin struct {
	Real int16
	Imag int16
}

// DecodeRangeProfile returns the magnitude of each bin. knownBins <= 0 means
// the bin count comes from the payload length; otherwise the smaller of the
// two bounds the iteration.
func DecodeRangeProfile(payload []byte, knownBins int) []float64 {
	n := len(payload) / RangeBinLen
	if knownBins > 0 && knownBins < n {
		n = knownBins
	}
	out := make([]float64, n)
	for i := range n {
		off := i * RangeBinLen
		re := float64(int16(binary.BigEndian.Uint16(payload[off:])))
		im := float64(int16(binary.BigEndian.Uint16(payload[off+2:])))
		out[i] = math.Sqrt(re*re + im*im)
	}
	return out
}

func EncodeRangeProfile(bins []Bin) []byte {
	out := make([]byte, 0, len(bins)*RangeBinLen)
	for _, b := range bins {
		out = binary.BigEndian.AppendUint16(out, uint16(b.Real))
		out = binary.BigEndian.AppendUint16(out, uint16(b.Imag))
	}
	return out
}
