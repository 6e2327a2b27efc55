package server

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"assetd/internal/blobstore"
	"assetd/internal/store"
)

func TestRequestMetricsUseRoutePattern(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	srv, err := New("127.0.0.1:0", st, Options{
		Gateway:    blobstore.NewMemoryGateway(testBucket, "/storage", "/storage"),
		Registerer: registry,
	}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	h := srv.Handler()

	var sent int
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		sent += w.Body.Len()
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	requests := srv.httpMetrics.requests.WithLabelValues("GET /v1/auth/me", http.MethodGet, "200")
	if got := testutil.ToFloat64(requests); got != 2 {
		t.Fatalf("expected 2 requests on the route, got %v", got)
	}
	if got := testutil.ToFloat64(srv.httpMetrics.sent.WithLabelValues("GET /v1/auth/me")); got != float64(sent) {
		t.Fatalf("expected %d response bytes, got %v", sent, got)
	}
	if got := testutil.CollectAndCount(srv.httpMetrics.requests); got != 1 {
		t.Fatalf("health checks must not be counted, got %d series", got)
	}

	// A second server on the same registry reuses the collectors.
	again, err := New("127.0.0.1:0", st, Options{
		Gateway:    blobstore.NewMemoryGateway(testBucket, "/storage", "/storage"),
		Registerer: registry,
	}, nil)
	if err != nil {
		t.Fatalf("second server on shared registry: %v", err)
	}
	if again.httpMetrics.requests != srv.httpMetrics.requests {
		t.Fatal("expected the registered counter to be reused")
	}
}
