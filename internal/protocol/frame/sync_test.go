package frame

import (
	"bytes"
	"testing"
)

func TestAlignDropsLeadingGarbage(t *testing.T) {
	b := NewBuffer(64)
	b.Append([]byte{9, 9, 9})
	b.Append(Marker[:])
	b.Append(bytes.Repeat([]byte{0xEE}, 10))
	if !Align(b) {
		t.Fatalf("expected marker found")
	}
	if !bytes.Equal(b.Bytes()[:MarkerLen], Marker[:]) {
		t.Fatalf("marker not at offset zero: %v", b.Bytes())
	}
	if b.Len() != MarkerLen+10 {
		t.Fatalf("unexpected len after align: %d", b.Len())
	}
}

func TestAlignSkipsFalseCandidates(t *testing.T) {
	b := NewBuffer(64)
	// Marker[0] appears twice before the real marker, once followed by a
	// partial marker.
	b.Append([]byte{2, 0, 2, 1, 4, 3, 0})
	b.Append(Marker[:])
	b.Append(make([]byte, 8))
	if !Align(b) {
		t.Fatalf("expected marker found past false candidates")
	}
	if !bytes.Equal(b.Bytes()[:MarkerLen], Marker[:]) {
		t.Fatalf("marker not at offset zero: %v", b.Bytes())
	}
}

func TestAlignNeedsMinimumLength(t *testing.T) {
	b := NewBuffer(64)
	b.Append(Marker[:])
	if Align(b) {
		t.Fatalf("expected not synchronized below %d bytes", MinSyncLen)
	}
	if b.Len() != MarkerLen {
		t.Fatalf("short buffer must be left untouched, len=%d", b.Len())
	}
}

func TestAlignWithoutMarkerKeepsPossiblePrefix(t *testing.T) {
	b := NewBuffer(64)
	b.Append(bytes.Repeat([]byte{0xAB}, 20))
	b.Append(Marker[:5])
	if Align(b) {
		t.Fatalf("expected no marker")
	}
	if b.Len() != MarkerLen-1 {
		t.Fatalf("expected %d trailing bytes kept, got %d", MarkerLen-1, b.Len())
	}

	b.Append(Marker[5:])
	b.Append(make([]byte, 8))
	if !Align(b) {
		t.Fatalf("expected straddling marker found after more bytes")
	}
}
