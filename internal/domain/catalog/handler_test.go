package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinicops/internal/platform/db"
)

func catalogContext(e *echo.Echo, method, body string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}
	req = req.WithContext(db.WithClinic(req.Context(), "c1"))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_GetCatalog(t *testing.T) {
	svc, _ := newTestService(t)
	h := NewHandler(svc)
	c, rec := catalogContext(echo.New(), http.MethodGet, "")

	if err := h.GetCatalog(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var tb Tables
	if err := json.Unmarshal(rec.Body.Bytes(), &tb); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(tb.StatusColors) == 0 || len(tb.BillingCodes) == 0 {
		t.Errorf("expected defaults, got %+v", tb)
	}
}

func TestHandler_PutStatusColor(t *testing.T) {
	svc, repo := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()

	c, rec := catalogContext(e, http.MethodPut, `{"status":"Paid","type":"claim","background_color":"#00ff00"}`)
	if err := h.PutStatusColor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent || len(repo.colors["c1"]) != 1 {
		t.Errorf("expected stored color, got %d %v", rec.Code, repo.colors)
	}

	c, _ = catalogContext(e, http.MethodPut, `{"status":"Paid","type":"nope","background_color":"#00ff00"}`)
	if code := httpCode(t, h.PutStatusColor(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}

	c, rec = catalogContext(e, http.MethodDelete, "")
	c.SetParamNames("type", "status")
	c.SetParamValues("claim", "Paid")
	if err := h.DeleteStatusColor(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %v %d", err, rec.Code)
	}
	if len(repo.colors["c1"]) != 0 {
		t.Error("expected color deleted")
	}
}

func TestHandler_BillingCodeAndSeed(t *testing.T) {
	svc, repo := newTestService(t)
	h := NewHandler(svc)
	e := echo.New()

	c, rec := catalogContext(e, http.MethodPut, `{"code":"90837","color":"#123456"}`)
	if err := h.PutBillingCode(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %v %d", err, rec.Code)
	}

	c, rec = catalogContext(e, http.MethodPost, "")
	if err := h.Seed(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := repo.codes["c1"]["90837"]; got.Color == nil || *got.Color != "#123456" {
		t.Errorf("seed must not overwrite clinic entries, got %+v", got)
	}
	if !strings.Contains(rec.Body.String(), `"written"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
