package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		roles   []string
		wantErr bool
	}{
		{"matching role", []string{RoleScheduler}, false},
		{"admin passes", []string{RoleAdmin}, false},
		{"other role", []string{RoleIntake}, true},
		{"no roles", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(RoleClinicStaff, RoleScheduler)(okHandler)(c)
			if tt.wantErr {
				expectHTTPError(t, err, http.StatusForbidden)
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if rec.Code != http.StatusOK {
				t.Errorf("expected 200, got %d", rec.Code)
			}
		})
	}
}

func TestRequireWrite(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithViewer(req.Context(), Viewer{ClinicID: "c1", ReadOnly: true}))
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPError(t, RequireWrite()(okHandler)(c), http.StatusForbidden)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(WithViewer(req.Context(), Viewer{ClinicID: "c1"}))
	c = e.NewContext(req, httptest.NewRecorder())
	if err := RequireWrite()(okHandler)(c); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
