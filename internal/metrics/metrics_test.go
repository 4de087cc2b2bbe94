package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/render", "POST", "200", 1.2)
	m.RecordHTTPRequest("/render", "POST", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()
	m.RecordError("handler", "/render", "POST")
	m.RecordRender("ok")
	m.RecordEncode(2*time.Second, nil)
	m.RecordEncode(time.Second, errors.New("exit 1"))
	m.RecordExpiryScheduled()
	m.RecordExpiryDeleted("deleted")
	m.SetExpiryPending(3)
	m.RecordTokenExchange("refresh_token", "ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, name := range []string{
		"test_request_latency_seconds",
		"test_render_requests_total",
		"test_encode_duration_seconds",
		"test_expiry_pending",
		"test_token_exchanges_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected metrics output to contain %s", name)
		}
	}

	if got := gaugeValue(t, m.ExpiryPending); got != 3 {
		t.Fatalf("expected 3 pending expiries, got %v", got)
	}
	if got := counterValue(t, m.RenderTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected one ok render, got %v", got)
	}

	if _, err := m.Gatherer().Gather(); err != nil {
		t.Fatalf("expected gather to succeed: %v", err)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return pb.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return pb.GetGauge().GetValue()
}
