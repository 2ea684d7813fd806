package session

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/danmuck/vitalrelay/internal/protocol/frame"
	"github.com/danmuck/vitalrelay/internal/protocol/tlv"
	"github.com/danmuck/vitalrelay/internal/testutil/testlog"
)

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       false,
	}
	if got := NextBackoffDelay(cfg, 1, nil); got != 250*time.Millisecond {
		t.Fatalf("attempt1 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 2, nil); got != 500*time.Millisecond {
		t.Fatalf("attempt2 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 3, nil); got != time.Second {
		t.Fatalf("attempt3 got=%v", got)
	}
	if got := NextBackoffDelay(cfg, 6, nil); got != 5*time.Second {
		t.Fatalf("attempt6 got=%v", got)
	}
}

func TestBackoffDefaultSequenceAndReset(t *testing.T) {
	testlog.Start(t)
	b := NewBackoff(DefaultConfig().Backoff, nil)
	want := []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
		3375 * time.Millisecond,
		5062500 * time.Microsecond,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Fatalf("failure %d: got=%v want=%v", i+1, got, w)
		}
	}
	if b.Failures() != 5 {
		t.Fatalf("unexpected failures=%d", b.Failures())
	}
	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Fatalf("after reset got=%v", got)
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	b := NewBackoff(DefaultConfig().Backoff, nil)
	var last time.Duration
	for range 40 {
		last = b.Next()
	}
	if last != 30*time.Second {
		t.Fatalf("expected cap 30s, got %v", last)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{QueueSize: 7}.WithDefaults()
	if cfg.QueueSize != 7 {
		t.Fatalf("explicit queue size overwritten: %d", cfg.QueueSize)
	}
	if cfg.Backoff != DefaultConfig().Backoff {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.Backoff)
	}
}

func delivery(n uint32) Delivery {
	return Delivery{Frame: n}
}

func TestQueueOverflowEvictsOldest(t *testing.T) {
	testlog.Start(t)
	q := NewQueue(2)
	if q.Offer(delivery(1)) || q.Offer(delivery(2)) {
		t.Fatalf("no eviction expected while below capacity")
	}
	if !q.Offer(delivery(3)) {
		t.Fatalf("expected eviction on full queue")
	}
	if q.Len() != 2 || q.Evicted() != 1 {
		t.Fatalf("unexpected len=%d evicted=%d", q.Len(), q.Evicted())
	}

	ctx := context.Background()
	for _, want := range []uint32{2, 3} {
		d, err := q.Take(ctx)
		if err != nil {
			t.Fatalf("take: %v", err)
		}
		if d.Frame != want {
			t.Fatalf("expected frame %d, got %d", want, d.Frame)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue")
	}
}

func TestQueueTakeBlocksUntilOffer(t *testing.T) {
	q := NewQueue(4)
	got := make(chan Delivery, 1)
	go func() {
		d, err := q.Take(context.Background())
		if err == nil {
			got <- d
		}
	}()
	time.Sleep(10 * time.Millisecond)
	q.Offer(delivery(9))
	select {
	case d := <-got:
		if d.Frame != 9 {
			t.Fatalf("unexpected frame %d", d.Frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("take did not wake up")
	}
}

func TestQueueTakeHonorsContext(t *testing.T) {
	q := NewQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Take(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestQueueCloseDiscardsAndUnblocks(t *testing.T) {
	q := NewQueue(4)
	q.Offer(delivery(1))
	q.Offer(delivery(2))
	if dropped := q.Close(); dropped != 2 {
		t.Fatalf("expected 2 dropped, got %d", dropped)
	}
	if _, err := q.Take(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if q.Offer(delivery(3)) || q.Len() != 0 {
		t.Fatalf("offer after close must be dropped")
	}
	if q.Close() != 0 {
		t.Fatalf("second close must be a no-op")
	}
}

func TestDeliveryJSONShape(t *testing.T) {
	testlog.Start(t)
	hr := float32(72.5)
	nan := float32(math.NaN())
	f := frame.Frame{
		Header:       frame.Header{FrameNumber: 17, NumDetectedObj: 2},
		Vitals:       &tlv.VitalSigns{HeartRateEstFFT: &hr, MaxVal: &nan},
		RangeProfile: []float64{5, 10},
	}
	cfg := map[string]float64{"rangeStart": 0.3, "maxRange": math.Inf(1)}
	d := NewDelivery(time.Unix(1700000000, 500_000_000), f, cfg)
	cfg["rangeStart"] = 99

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		Timestamp float64            `json:"timestamp"`
		Frame     int                `json:"frame"`
		Vitals    map[string]any     `json:"vitals"`
		Config    map[string]float64 `json:"config"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, b)
	}
	if out.Timestamp != 1700000000.5 || out.Frame != 17 {
		t.Fatalf("unexpected envelope: %s", b)
	}
	if out.Vitals["heartRateEst_FFT"] != 72.5 {
		t.Fatalf("missing heart rate: %s", b)
	}
	if _, ok := out.Vitals["maxVal"]; ok {
		t.Fatalf("NaN field must be omitted: %s", b)
	}
	if _, ok := out.Vitals["motionDetectedFlag"]; ok {
		t.Fatalf("absent field must be omitted: %s", b)
	}
	if out.Vitals["numDetectedObj"] != float64(2) {
		t.Fatalf("missing numDetectedObj: %s", b)
	}
	if rp, ok := out.Vitals["RangeProfile"].([]any); !ok || len(rp) != 2 {
		t.Fatalf("missing RangeProfile: %s", b)
	}
	if out.Config["rangeStart"] != 0.3 {
		t.Fatalf("config snapshot not isolated from caller: %s", b)
	}
	if _, ok := out.Config["maxRange"]; ok {
		t.Fatalf("infinite config value must be omitted: %s", b)
	}
}
