package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"academy/internal/adapters/metrics"
)

// TestRecorder_Counters verifies counters accumulate per label set.
func TestRecorder_Counters(t *testing.T) {
	r := metrics.New()

	r.AddImportRows(metrics.OutcomeCreated, 3)
	r.AddImportRows(metrics.OutcomeCreated, 2)
	r.AddImportRows(metrics.OutcomeFailed, 1)
	r.AddImportRows(metrics.OutcomeSkipped, 0)
	r.CountRejection("missing_cancellation_reason")

	want := `
# HELP academy_schedule_import_rows_total Total number of imported sheet rows by outcome.
# TYPE academy_schedule_import_rows_total counter
academy_schedule_import_rows_total{outcome="created"} 5
academy_schedule_import_rows_total{outcome="failed"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(want), "academy_schedule_import_rows_total"); err != nil {
		t.Error(err)
	}

	want = `
# HELP academy_slot_save_rejections_total Total number of slot saves rejected before reaching the store.
# TYPE academy_slot_save_rejections_total counter
academy_slot_save_rejections_total{code="missing_cancellation_reason"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(want), "academy_slot_save_rejections_total"); err != nil {
		t.Error(err)
	}
}

// TestRecorder_ObserveQuery verifies the slow counter only moves for slow calls.
func TestRecorder_ObserveQuery(t *testing.T) {
	r := metrics.New()

	r.ObserveQuery("QueryContext", time.Millisecond, false)
	r.ObserveQuery("ExecContext", 80*time.Millisecond, true)

	if got := testutil.CollectAndCount(r.Registry(), "academy_db_query_duration_seconds"); got != 2 {
		t.Errorf("query series = %d, want 2", got)
	}
	want := `
# HELP academy_db_slow_queries_total Total number of database calls above the slow query threshold.
# TYPE academy_db_slow_queries_total counter
academy_db_slow_queries_total 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(want), "academy_db_slow_queries_total"); err != nil {
		t.Error(err)
	}
}

// TestRecorder_NilIsNoop verifies a nil recorder can be passed anywhere.
func TestRecorder_NilIsNoop(t *testing.T) {
	var r *metrics.Recorder
	r.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
	r.ObserveQuery("ExecContext", time.Millisecond, true)
	r.AddImportRows(metrics.OutcomeCreated, 1)
	r.CountRejection("x")
	r.CountStoreCall("create", metrics.ResultOK)
	r.CountNotice(metrics.ResultOK)
}

// TestRecorder_Handler verifies the exposition endpoint serves recorded series.
func TestRecorder_Handler(t *testing.T) {
	r := metrics.New()
	r.ObserveRequest("GET", "/api/batches/{batchID}/schedule", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(body), `route="/api/batches/{batchID}/schedule"`) {
		t.Error("expected route label in exposition output")
	}
}
