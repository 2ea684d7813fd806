package observability

import (
	"testing"
	"time"

	"github.com/danmuck/vitalrelay/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("vitalrelay", "GET", "/health", 200, 12*time.Millisecond)
	RecordBytes(128, true)
	RecordBytes(64, false)
	RecordFrame("decoded")
	RecordQueue(3, true)
	RecordRelaySent(2)
	RecordRelayFailure("dial", time.Second)
	SetRelayConnected(true)

	if got := testutil.ToFloat64(queueDepth); got != 2 {
		t.Fatalf("unexpected queue depth gauge: %v", got)
	}
	if got := testutil.ToFloat64(relayConnected); got != 1 {
		t.Fatalf("unexpected connected gauge: %v", got)
	}
	SetRelayConnected(false)
	if got := testutil.ToFloat64(relayConnected); got != 0 {
		t.Fatalf("unexpected connected gauge: %v", got)
	}
	if got := testutil.ToFloat64(decoderBytes.WithLabelValues("dropped")); got < 64 {
		t.Fatalf("dropped bytes not recorded: %v", got)
	}
}
