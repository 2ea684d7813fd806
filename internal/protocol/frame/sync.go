package frame

import "bytes"

const (
	MarkerLen = 8
	// MinSyncLen is the smallest buffer that holds the marker, version and
	// totalPacketLen.
	MinSyncLen = 16
)

// Marker opens every frame on the data port.
var Marker = [MarkerLen]byte{2, 1, 4, 3, 6, 5, 8, 7}

// Align moves the first complete marker in b to offset zero. Every byte equal
// to Marker[0] is a candidate; a failed comparison does not end the scan.
// When no marker is found everything but the last MarkerLen-1 bytes is
// discarded, since a marker may straddle the next read.
func Align(b *Buffer) bool {
	if b.Len() < MinSyncLen {
		return false
	}
	data := b.Bytes()
	last := len(data) - MarkerLen
	for s := 0; s <= last; s++ {
		i := bytes.IndexByte(data[s:last+1], Marker[0])
		if i < 0 {
			break
		}
		s += i
		if bytes.Equal(data[s:s+MarkerLen], Marker[:]) {
			b.Compact(s)
			return true
		}
	}
	b.Compact(len(data) - (MarkerLen - 1))
	return false
}
