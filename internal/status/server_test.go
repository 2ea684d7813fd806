package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vitalrelay/internal/pipeline"
	"github.com/danmuck/vitalrelay/internal/relay"
	"github.com/danmuck/vitalrelay/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
)

type stubSource struct {
	running bool
	stats   pipeline.Stats
}

func (s stubSource) Stats() pipeline.Stats { return s.stats }
func (s stubSource) Running() bool         { return s.running }

func init() {
	gin.SetMode(gin.TestMode)
}

func get(t *testing.T, s *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.HTTPRouter().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s body: %v", path, err)
		}
	}
	return rr, body
}

func TestHealthAndReady(t *testing.T) {
	testlog.Start(t)
	s := New(Config{ID: "relay-a", Addr: ":0"}, stubSource{running: true}, nil)

	rr, body := get(t, s, "/health")
	if rr.Code != http.StatusOK || body["status"] != "ok" || body["service"] != "relay-a" {
		t.Fatalf("unexpected health: %d %#v", rr.Code, body)
	}
	rr, body = get(t, s, "/ready")
	if rr.Code != http.StatusOK || body["ready"] != true {
		t.Fatalf("unexpected ready: %d %#v", rr.Code, body)
	}

	stopped := New(Config{ID: "relay-b", Addr: ":0"}, stubSource{}, nil)
	rr, body = get(t, stopped, "/ready")
	if rr.Code != http.StatusServiceUnavailable || body["ready"] != false {
		t.Fatalf("expected 503 when pipeline stopped, got %d %#v", rr.Code, body)
	}
}

func TestStatsAndConfig(t *testing.T) {
	src := stubSource{running: true, stats: pipeline.Stats{
		RunID:         "run-1",
		FramesDecoded: 12,
		QueueDepth:    3,
		Relay:         relay.SenderStats{Sent: 9, Connected: true},
	}}
	s := New(Config{ID: "relay-a", Addr: ":0"}, src, map[string]float64{"maxRange": 2.7})

	rr, body := get(t, s, "/stats")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	if body["run_id"] != "run-1" || body["frames_decoded"] != float64(12) || body["queue_depth"] != float64(3) {
		t.Fatalf("unexpected stats body: %#v", body)
	}
	relayBody, _ := body["relay"].(map[string]any)
	if relayBody["sent"] != float64(9) || relayBody["connected"] != true {
		t.Fatalf("unexpected relay stats: %#v", body["relay"])
	}

	_, body = get(t, s, "/config")
	sensor, _ := body["sensor"].(map[string]any)
	if sensor["maxRange"] != 2.7 {
		t.Fatalf("unexpected config body: %#v", body)
	}
}

func TestTokenGuardsStatsAndConfig(t *testing.T) {
	s := New(Config{ID: "relay-a", Addr: ":0", Token: "s3cret"}, stubSource{running: true}, nil)
	for _, path := range []string{"/stats", "/config"} {
		rr, _ := get(t, s, path)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rr.Code)
		}
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer s3cret")
		rec := httptest.NewRecorder()
		s.HTTPRouter().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 with token, got %d", path, rec.Code)
		}
	}
	if rr, _ := get(t, s, "/health"); rr.Code != http.StatusOK {
		t.Fatalf("health must stay open, got %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := New(Config{ID: "relay-a", Addr: ":0"}, stubSource{running: true}, nil)
	_, _ = get(t, s, "/health")
	rr, _ := get(t, s, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected metrics status: %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "vitalrelay_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(Config{ID: "relay-a", Addr: "127.0.0.1:0"}, stubSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
