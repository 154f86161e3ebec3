package readiness

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotReadyUntilAllRequiredGatesSet(t *testing.T) {
	g := New()
	_, status, retryAfter := Decide(g)
	if status != 503 || retryAfter != 5 {
		t.Fatalf("expected 503 with Retry-After 5, got status=%d retryAfter=%d", status, retryAfter)
	}

	g.SetListenersBound(true)
	g.SetCfgLoaded(true)
	g.SetDepsOk(true)
	_, status, _ = Decide(g)
	if status != 503 {
		t.Fatalf("expected still 503 missing gateway_bound, got %d", status)
	}

	g.SetGatewayBound(true)
	report, status, _ := Decide(g)
	if status != 200 || !report.Ready {
		t.Fatalf("expected ready once all required gates set, got status=%d report=%+v", status, report)
	}
}

func TestMetricsBoundIsNotRequired(t *testing.T) {
	g := New()
	g.SetListenersBound(true)
	g.SetCfgLoaded(true)
	g.SetDepsOk(true)
	g.SetGatewayBound(true)
	// metrics_bound left false
	_, status, _ := Decide(g)
	if status != 200 {
		t.Fatalf("expected metrics_bound to be optional, got status=%d", status)
	}
}

func TestDevOverrideForcesReadyButReportsTruth(t *testing.T) {
	t.Setenv(DevOverrideEnv, "1")
	g := New() // everything false
	report, status, _ := Decide(g)
	if status != 200 || !report.Ready {
		t.Fatalf("expected dev override to force 200, got status=%d", status)
	}
	if report.Mode != "dev-forced" {
		t.Fatalf("expected mode dev-forced, got %q", report.Mode)
	}
	if report.Probes.ListenersBound {
		t.Fatalf("expected the snapshot to still report the true (false) gate state")
	}
}

func TestHandlerServesReadyzJSON(t *testing.T) {
	g := New()
	g.SetListenersBound(true)
	g.SetCfgLoaded(true)
	g.SetDepsOk(true)
	g.SetGatewayBound(true)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	Handler(g).ServeHTTP(rw, req)

	if rw.Code != 200 {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	var report Report
	if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !report.Ready {
		t.Fatalf("expected ready=true in body")
	}
}

func TestHandlerSetsRetryAfterWhenNotReady(t *testing.T) {
	g := New()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	Handler(g).ServeHTTP(rw, req)

	if rw.Code != 503 {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	if rw.Header().Get("Retry-After") != "5" {
		t.Fatalf("expected Retry-After: 5, got %q", rw.Header().Get("Retry-After"))
	}
}
