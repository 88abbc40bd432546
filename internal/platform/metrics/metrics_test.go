package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveEditBatch(t *testing.T) {
	okBefore := testutil.ToFloat64(editBatches.WithLabelValues(OutcomeOK))
	errBefore := testutil.ToFloat64(editBatches.WithLabelValues(OutcomeError))

	ObserveEditBatch(nil)
	ObserveEditBatch(errors.New("stale"))

	if got := testutil.ToFloat64(editBatches.WithLabelValues(OutcomeOK)) - okBefore; got != 1 {
		t.Errorf("expected 1 ok batch, got %v", got)
	}
	if got := testutil.ToFloat64(editBatches.WithLabelValues(OutcomeError)) - errBefore; got != 1 {
		t.Errorf("expected 1 failed batch, got %v", got)
	}
}

func TestObserveCache(t *testing.T) {
	hits := testutil.ToFloat64(cacheLookups.WithLabelValues("patients", "hit"))
	misses := testutil.ToFloat64(cacheLookups.WithLabelValues("patients", "miss"))

	ObserveCache("patients", true)
	ObserveCache("patients", false)
	ObserveCache("patients", false)

	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("patients", "hit")) - hits; got != 1 {
		t.Errorf("expected 1 hit, got %v", got)
	}
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("patients", "miss")) - misses; got != 2 {
		t.Errorf("expected 2 misses, got %v", got)
	}
}

func TestSetActiveSessions(t *testing.T) {
	SetActiveSessions(4)
	if got := testutil.ToFloat64(activeSessions); got != 4 {
		t.Errorf("expected 4, got %v", got)
	}
	SetActiveSessions(0)
	if got := testutil.ToFloat64(activeSessions); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestHandler_ExposesCollectors(t *testing.T) {
	ObserveSave(120*time.Millisecond, nil)
	ObserveLockToggle(nil)
	ObserveAnnotationWrite("highlight", nil)
	IncRejectedEdit("locked")
	AddUnmatchedRows(1)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	if err := Handler()(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	body := rec.Body.String()
	for _, name := range []string{
		"clinicops_sheet_saves_total",
		"clinicops_sheet_save_duration_seconds",
		"clinicops_lock_toggles_total",
		"clinicops_annotation_writes_total",
		"clinicops_sheet_rejected_edits_total",
		"clinicops_sheet_unmatched_rows_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected %s in exposition", name)
		}
	}
}
