package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicops/clinicops/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                   "0",
		Env:                    "development",
		DefaultClinic:          "default",
		CORSOrigins:            []string{"http://localhost:3000"},
		SaveDebounce:           800 * time.Millisecond,
		SaveTimeout:            15 * time.Second,
		SheetMinRows:           200,
		SessionIdleTTL:         30 * time.Minute,
		PatientCacheTTL:        time.Minute,
		CatalogCacheTTL:        time.Minute,
		DefaultHighlightColor:  "#fff59d",
		ReservedHighlightColor: "#ff0000",
		BodyLimit:              "1M",
		RequestTimeout:         30 * time.Second,
	}
}

func TestNewServer_RegistersRoutes(t *testing.T) {
	srv, err := newServer(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	routes := []string{
		"GET /health",
		"GET /metrics",
		"GET /api/v1/sheets/:owner/:year/:month",
		"PATCH /api/v1/sheets/:owner/:year/:month/cells",
		"POST /api/v1/sheets/:owner/:year/:month/edits",
		"GET /api/v1/patients/search",
		"GET /api/v1/catalog",
		"POST /api/v1/locks/toggle",
		"PUT /api/v1/annotations/comment",
		"GET /api/v1/ws",
	}
	want := make(map[string]bool, len(routes))
	for _, r := range routes {
		want[r] = false
	}
	for _, r := range srv.echo.Routes() {
		key := r.Method + " " + r.Path
		if _, ok := want[key]; ok {
			want[key] = true
		}
	}
	for route, found := range want {
		if !found {
			t.Errorf("expected route %s", route)
		}
	}
}

func TestNewServer_Health(t *testing.T) {
	srv, err := newServer(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), version) {
		t.Errorf("expected version in body, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestNewServer_ProductionRequiresToken(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthJWTSecret = "0123456789abcdef0123456789abcdef"
	srv, err := newServer(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestNewServer_BadLookupDefaultsFile(t *testing.T) {
	cfg := testConfig()
	cfg.LookupDefaultsFile = "/nonexistent/lookups.yaml"
	if _, err := newServer(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for missing defaults file")
	}
}

func TestClinicSeedLookups_RequiresClinic(t *testing.T) {
	cmd := clinicCmd()
	cmd.SetArgs([]string{"seed-lookups"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--clinic") {
		t.Fatalf("expected --clinic error, got %v", err)
	}
}
