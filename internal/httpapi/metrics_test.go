package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestMetricsMiddleware_EmitsRequestCounters verifies that wrapping a handler
// with MetricsMiddleware results in request metrics being exposed via the
// Prometheus /metrics handler.
func TestMetricsMiddleware_EmitsRequestCounters(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	MetricsMiddleware(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	// Scrape the default registry and ensure our metric name is present
	mrr := httptest.NewRecorder()
	mreq := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(mrr, mreq)
	if mrr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", mrr.Code)
	}
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte("modelhub_http_requests_total")) {
		previewLen := len(body)
		if previewLen > 200 {
			previewLen = 200
		}
		t.Fatalf("expected to find modelhub_http_requests_total in metrics; got: %q", string(body[:previewLen]))
	}
}

func TestObserveServe_EmitsOutcomeCounter(t *testing.T) {
	observeServe("model_not_found")
	observeServe("")

	mrr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := mrr.Body.Bytes()
	if !bytes.Contains(body, []byte(`modelhub_serve_requests_total{outcome="model_not_found"}`)) {
		t.Fatalf("missing outcome counter in metrics output")
	}
	if !bytes.Contains(body, []byte(`outcome="unspecified"`)) {
		t.Fatalf("empty outcome was not normalized")
	}
}

func TestRoutePatternOrPath_FallsBackToURLPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/no/chi/context", nil)
	if got := routePatternOrPath(req); got != "/no/chi/context" {
		t.Fatalf("got %q", got)
	}
}

func TestItoa(t *testing.T) {
	cases := map[int]string{0: "0", 200: "200", 404: "404", 1234: "1234"}
	for n, want := range cases {
		if got := itoa(n); got != want {
			t.Fatalf("itoa(%d)=%q want %q", n, got, want)
		}
	}
}
