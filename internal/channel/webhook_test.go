package channel

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"relaybot/internal/metrics"
)

func testRoutes(t *testing.T, m *metrics.Collector) http.Handler {
	t.Helper()
	f := newFixture(t, false)
	return Routes(WebhookConfig{Events: f.handler, Metrics: m, MetricsPath: "/metrics"})
}

func TestRoutes_Health(t *testing.T) {
	h := testRoutes(t, nil)
	for _, path := range []string{"/health", "/_health"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
		var body map[string]string
		json.Unmarshal(rr.Body.Bytes(), &body)
		if body["status"] != "OK" {
			t.Fatalf("%s: got %v", path, body)
		}
	}
}

func TestRoutes_UnknownPath(t *testing.T) {
	rr := httptest.NewRecorder()
	testRoutes(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/nope", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestRoutes_Metrics(t *testing.T) {
	m := metrics.New()
	h := testRoutes(t, m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `relaybot_http_requests_total{handler="events",status="403"} 1`) {
		t.Fatalf("unsigned request not counted:\n%s", rr.Body.String())
	}
}

func TestRoutes_MetricsDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	testRoutes(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics, got %d", rr.Code)
	}
}

func TestWebhook_ServeAndShutdown(t *testing.T) {
	f := newFixture(t, false)
	w := NewWebhook(WebhookConfig{Events: f.handler, ShutdownTimeout: time.Second, Logger: testLogger()})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
