package sheet

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/clinicops/internal/platform/auth"
	"github.com/clinicops/clinicops/internal/platform/db"
)

func newTestHandler() (*Handler, testDeps, *echo.Echo) {
	svc, d := newTestService(quietConfig(), nil)
	return NewHandler(svc), d, echo.New()
}

func sheetContext(e *echo.Echo, method, target, body string, v auth.Viewer, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := db.WithClinic(req.Context(), testKey.ClinicID)
	ctx = auth.WithViewer(ctx, v)
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	names := []string{"owner", "year", "month"}
	values := []string{testKey.OwnerID, "2026", "3"}
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return c, rec
}

var staffViewer = auth.Viewer{UserID: "u1", ClinicID: testKey.ClinicID, Roles: []string{auth.RoleClinicStaff}}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %v", err)
	}
	return he.Code
}

func TestHandler_GetSheet(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := sheetContext(e, http.MethodGet, "/?mode=condensed", "", staffViewer)

	if err := h.GetSheet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var g Grid
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(g.Columns) != 12 || len(g.RowIDs) != 20 {
		t.Errorf("expected condensed 12 columns x 20 rows, got %d x %d", len(g.Columns), len(g.RowIDs))
	}
}

func TestHandler_GetSheet_BadParams(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := sheetContext(e, http.MethodGet, "/?mode=wide", "", staffViewer)
	if code := httpCode(t, h.GetSheet(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad mode, got %d", code)
	}

	c, _ = sheetContext(e, http.MethodGet, "/", "", staffViewer)
	c.SetParamValues(testKey.OwnerID, "2026", "13")
	if code := httpCode(t, h.GetSheet(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad month, got %d", code)
	}
}

func TestHandler_ProviderScope(t *testing.T) {
	h, _, e := newTestHandler()
	other := auth.Viewer{UserID: "u2", ClinicID: testKey.ClinicID, Roles: []string{auth.RoleProviderL2}, ProviderID: "someone-else"}
	c, _ := sheetContext(e, http.MethodGet, "/", "", other)
	if code := httpCode(t, h.GetSheet(c)); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}

	own := other
	own.ProviderID = testKey.OwnerID
	c, rec := sheetContext(e, http.MethodGet, "/", "", own)
	if err := h.GetSheet(c); err != nil || rec.Code != http.StatusOK {
		t.Errorf("provider must see own sheet: %v %d", err, rec.Code)
	}
}

func TestHandler_ApplyEdits(t *testing.T) {
	h, d, e := newTestHandler()
	col := staffView().IndexOf(FieldCollectedFromPatient)
	body := `{"changes":[{"row":0,"col":` + itoa(col) + `,"old":null,"new":"25"}]}`
	c, rec := sheetContext(e, http.MethodPost, "/", body, staffViewer)

	if err := h.ApplyEdits(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var res struct {
		Mutations []Mutation `json:"mutations"`
		Grid      Grid       `json:"grid"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(res.Mutations) != 2 || res.Grid.State != StateDirty {
		t.Errorf("unexpected response %+v", res.Mutations)
	}
	if d.rows.saveCount() != 0 {
		t.Error("edits are saved on the debounce, not inline")
	}
}

func itoa(i int) string {
	b, _ := json.Marshal(i)
	return string(b)
}

func TestHandler_ApplyEdits_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := sheetContext(e, http.MethodPost, "/", `{"changes":[]}`, staffViewer)
	if code := httpCode(t, h.ApplyEdits(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_PatchCell(t *testing.T) {
	h, d, e := newTestHandler()
	seed(d, SheetRow{ID: "a"})

	c, rec := sheetContext(e, http.MethodPatch, "/", `{"row_id":"a","field":"claim_status","value":"Paid"}`, staffViewer)
	if err := h.PatchCell(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = sheetContext(e, http.MethodPatch, "/", `{"row_id":"a","field":"nope","value":"x"}`, staffViewer)
	if code := httpCode(t, h.PatchCell(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", code)
	}

	c, _ = sheetContext(e, http.MethodPatch, "/", `{"row_id":"missing","field":"notes","value":"x"}`, staffViewer)
	if code := httpCode(t, h.PatchCell(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown row, got %d", code)
	}
}

func TestHandler_MoveRows(t *testing.T) {
	h, d, e := newTestHandler()
	seed(d, SheetRow{ID: "a"}, SheetRow{ID: "b"})

	c, rec := sheetContext(e, http.MethodPost, "/", `{"rows":[0],"target":1,"base_revision":0}`, staffViewer)
	if err := h.MoveRows(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res MoveResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if !res.Applied || res.Grid.RowIDs[0] != "b" {
		t.Errorf("unexpected move result applied=%v first=%s", res.Applied, res.Grid.RowIDs[0])
	}

	c, _ = sheetContext(e, http.MethodPost, "/", `{"rows":[0,2],"target":1,"base_revision":1}`, staffViewer)
	if code := httpCode(t, h.MoveRows(c)); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", code)
	}
}

func TestHandler_DeleteRow(t *testing.T) {
	h, d, e := newTestHandler()
	seed(d, SheetRow{ID: "a", Notes: strPtr("x")})

	c, rec := sheetContext(e, http.MethodDelete, "/", "", staffViewer, "index", "0")
	if err := h.DeleteRow(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || d.rows.saveCount() != 1 {
		t.Errorf("expected 200 and an immediate save, got %d/%d", rec.Code, d.rows.saveCount())
	}

	c, _ = sheetContext(e, http.MethodDelete, "/", "", staffViewer, "index", "3")
	if code := httpCode(t, h.DeleteRow(c)); code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for placeholder, got %d", code)
	}

	c, _ = sheetContext(e, http.MethodDelete, "/", "", staffViewer, "index", "x")
	if code := httpCode(t, h.DeleteRow(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_FlushAndClose(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := sheetContext(e, http.MethodPost, "/", "", staffViewer)
	if code := httpCode(t, h.Flush(c)); code != http.StatusNotFound {
		t.Errorf("expected 404 without a session, got %d", code)
	}

	c, _ = sheetContext(e, http.MethodGet, "/", "", staffViewer)
	if err := h.GetSheet(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c, rec := sheetContext(e, http.MethodPost, "/", "", staffViewer)
	if err := h.Flush(c); err != nil || rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %v %d", err, rec.Code)
	}
	c, rec = sheetContext(e, http.MethodDelete, "/", "", staffViewer)
	if err := h.CloseSheet(c); err != nil || rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %v %d", err, rec.Code)
	}
}

func TestHandler_ContextMenu(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := sheetContext(e, http.MethodGet, "/?row=0&col=1", "", staffViewer)
	if err := h.GetContextMenu(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), ActionToggleLock) {
		t.Errorf("expected lock toggle for staff, got %s", rec.Body.String())
	}

	c, _ = sheetContext(e, http.MethodGet, "/?row=a&col=1", "", staffViewer)
	if code := httpCode(t, h.GetContextMenu(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestActorFor(t *testing.T) {
	tests := []struct {
		roles []string
		want  Role
	}{
		{[]string{auth.RoleAdmin}, RoleClinicStaff},
		{[]string{auth.RoleScheduler}, RoleScheduler},
		{[]string{auth.RoleProviderL1}, RoleProviderL1},
		{[]string{auth.RoleProviderL1, auth.RoleProviderL2}, RoleProviderL2},
		{[]string{auth.RoleIntake}, RoleIntake},
	}
	for _, tt := range tests {
		a := ActorFor(auth.Viewer{Roles: tt.roles}, ModeExpanded)
		if a.View.Role != tt.want {
			t.Errorf("%v: expected %s, got %s", tt.roles, tt.want, a.View.Role)
		}
	}
	if ActorFor(auth.Viewer{Roles: []string{auth.RoleClinicStaff}, ReadOnly: true}, ModeExpanded).View.CanEdit {
		t.Error("read-only viewers cannot edit")
	}
}
