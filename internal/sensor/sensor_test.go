package sensor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/testutil/testlog"
)

const demoProfile = `% vital signs demo profile
sensorStop
flushCfg

dfeDataOutputMode 1
channelCfg 15 3 0
profileCfg 0 77 7 3 28 0 0 100 1 64 2000 0 0 40
chirpCfg 0 0 0 0 0 0 0 1
chirpCfg 1 1 0 0 0 0 0 2
frameCfg 0 1 2 0 50 1 0
vitalSignsCfg 0.3 0.9 256 512 4 0.1 0.05 100000 300000
sensorStart
`

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestParseProfileDerivesParams(t *testing.T) {
	p, err := ParseProfile(strings.NewReader(demoProfile))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Lines) != 10 {
		t.Fatalf("expected 10 command lines, got %d: %q", len(p.Lines), p.Lines)
	}
	if p.Lines[0] != "sensorStop" || p.Lines[len(p.Lines)-1] != "sensorStart" {
		t.Fatalf("unexpected line order: %q", p.Lines)
	}
	want := map[string]float64{
		ParamRangeResolution: 0.046875,
		ParamMaxRange:        2.7,
		ParamNumRangeBins:    64,
		ParamNumDopplerBins:  2,
		ParamRangeStart:      0.3,
		ParamRangeEnd:        0.9,
	}
	for k, v := range want {
		if got, ok := p.Params[k]; !ok || !near(got, v) {
			t.Fatalf("%s: got=%v want=%v", k, got, v)
		}
	}
}

func TestParseProfileRoundsRangeBinsUp(t *testing.T) {
	in := "profileCfg 0 77 7 3 28 0 0 100 1 100 2000 0 0 40\nframeCfg 0 1 2 0 50 1 0\n"
	p, err := ParseProfile(strings.NewReader(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Params[ParamNumRangeBins] != 128 {
		t.Fatalf("expected 128 range bins, got %v", p.Params[ParamNumRangeBins])
	}
	if _, ok := p.Params[ParamRangeStart]; ok {
		t.Fatalf("expected no range gates without vitalSignsCfg")
	}
}

func TestParseProfileErrors(t *testing.T) {
	if _, err := ParseProfile(strings.NewReader("profileCfg 0 77 7 3 28 0 0 100 1 64 2000\n")); !errors.Is(err, ErrIncompleteProfile) {
		t.Fatalf("expected ErrIncompleteProfile, got %v", err)
	}
	short := "profileCfg 0 77 7\nframeCfg 0 1 2\n"
	if _, err := ParseProfile(strings.NewReader(short)); !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
	bad := "profileCfg 0 77 7 3 28 0 0 fast 1 64 2000\nframeCfg 0 1 2\n"
	if _, err := ParseProfile(strings.NewReader(bad)); !errors.Is(err, ErrMalformedCommand) {
		t.Fatalf("expected ErrMalformedCommand, got %v", err)
	}
	p, err := ParseProfile(strings.NewReader("sensorStart\n"))
	if err != nil || len(p.Params) != 0 {
		t.Fatalf("expected empty params, got %v err=%v", p.Params, err)
	}
}

func TestLoadProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitals.cfg")
	if err := os.WriteFile(path, []byte(demoProfile), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Params[ParamNumRangeBins] != 64 {
		t.Fatalf("unexpected params: %v", p.Params)
	}
	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.cfg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestControllerConfigureAndStop(t *testing.T) {
	testlog.Start(t)
	var cli bytes.Buffer
	c := NewController(&cli)
	var delays []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	if err := c.Configure(context.Background(), []string{"sensorStop", "flushCfg", "sensorStart"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if got, want := cli.String(), "sensorStop\nflushCfg\nsensorStart\nsensorStop\n"; got != want {
		t.Fatalf("cli output: got=%q want=%q", got, want)
	}
	if len(delays) != 3 || delays[0] != CommandDelay {
		t.Fatalf("expected a %v pause per line, got %v", CommandDelay, delays)
	}
}

func TestControllerConfigureHonoursContext(t *testing.T) {
	var cli bytes.Buffer
	c := NewController(&cli)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Configure(ctx, []string{"a", "b"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if cli.String() != "a\n" {
		t.Fatalf("expected one line before cancellation, got %q", cli.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestControllerWriteFailure(t *testing.T) {
	c := NewController(failingWriter{})
	if err := c.Configure(context.Background(), []string{"sensorStart"}); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected io.ErrClosedPipe, got %v", err)
	}
	if err := c.Stop(); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("expected io.ErrClosedPipe, got %v", err)
	}
}

func TestSimulatorFramesDecode(t *testing.T) {
	testlog.Start(t)
	sim := NewSimulator(0, 1)
	dec := frame.NewDecoder(frame.DefaultCapacity)
	buf := make([]byte, 97)

	var frames []frame.Frame
	for len(frames) < 5 {
		n, err := sim.Read(buf)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !dec.Feed(buf[:n]) {
			t.Fatalf("decoder buffer full")
		}
		for {
			f, st, err := dec.Next()
			if st == frame.CorruptFrame {
				t.Fatalf("corrupt simulated frame: %v", err)
			}
			if st.Waiting() {
				break
			}
			frames = append(frames, f)
		}
	}

	for i, f := range frames {
		if f.Header.FrameNumber != uint32(i+1) {
			t.Fatalf("frame %d numbered %d", i, f.Header.FrameNumber)
		}
		if f.Vitals == nil || len(f.RangeProfile) != SimulatedRangeBins {
			t.Fatalf("frame %d missing records: vitals=%v bins=%d", i, f.Vitals != nil, len(f.RangeProfile))
		}
		if hr := *f.Vitals.HeartRateEstFFT; hr < 72 || hr > 78 {
			t.Fatalf("heart rate out of range: %v", hr)
		}
		if len(f.Skipped) != 1 {
			t.Fatalf("expected detected points skipped, got %v", f.Skipped)
		}
		if peak := int(*f.Vitals.RangeBinIndexMax); f.RangeProfile[peak] < 800 {
			t.Fatalf("expected body reflection at bin %d, got %v", peak, f.RangeProfile[peak])
		}
	}
}

func TestSimulatorCloseEndsStream(t *testing.T) {
	sim := NewSimulator(time.Hour, 1)
	done := make(chan error, 1)
	go func() {
		_, err := sim.Read(make([]byte, 16))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	if err := sim.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read did not return after close")
	}
}
