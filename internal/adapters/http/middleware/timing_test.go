package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"academy/internal/adapters/metrics"
)

const requestHistogram = "academy_http_request_duration_seconds"

func scrape(t *testing.T, rec *metrics.Recorder) string {
	t.Helper()
	rr := httptest.NewRecorder()
	rec.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

// TestTiming_RecordsRoutePattern verifies the series is labelled by pattern, not raw path.
func TestTiming_RecordsRoutePattern(t *testing.T) {
	rec := metrics.New()
	r := chi.NewRouter()
	r.Use(Timing(rec, time.Hour))
	r.Get("/api/batches/{batchID}/schedule", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"b-1", "b-2"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/batches/"+id+"/schedule", nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rr.Code)
		}
	}

	if got := testutil.CollectAndCount(rec.Registry(), requestHistogram); got != 1 {
		t.Errorf("series = %d, want 1 (both ids share a pattern)", got)
	}
	body := scrape(t, rec)
	want := `academy_http_request_duration_seconds_count{code="404",method="GET",route="/api/batches/{batchID}/schedule"} 2`
	if !strings.Contains(body, want) {
		t.Errorf("metrics missing %q", want)
	}
}

// TestTiming_WithoutRouter verifies requests outside chi are labelled unmatched.
func TestTiming_WithoutRouter(t *testing.T) {
	rec := metrics.New()
	handler := Timing(rec, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(scrape(t, rec), `route="unmatched"`) {
		t.Error("expected unmatched route label")
	}
}

// TestTiming_NilRecorder verifies middleware works without a recorder.
func TestTiming_NilRecorder(t *testing.T) {
	handler := Timing(nil, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/test", nil))

	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rr.Code)
	}
}

// TestStatusWriter_Unwrap verifies the wrapped writer is reachable.
func TestStatusWriter_Unwrap(t *testing.T) {
	rr := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rr, status: http.StatusOK}
	sw.WriteHeader(http.StatusTeapot)
	if sw.status != http.StatusTeapot || rr.Code != http.StatusTeapot {
		t.Errorf("status = %d / %d, want 418", sw.status, rr.Code)
	}
	if sw.Unwrap() != rr {
		t.Error("Unwrap did not return the underlying writer")
	}
}
