package catalog

import (
	"context"
	"testing"

	"github.com/clinicops/clinicops/internal/domain/sheet"
	"github.com/clinicops/clinicops/internal/platform/db/dbtest"
)

func TestMain(m *testing.M) {
	dbtest.Main(m, 15443)
}

func TestRepoPG_SeedAndLoad(t *testing.T) {
	repo := NewRepoPG(dbtest.Pool(t))
	ctx := context.Background()
	clinic := dbtest.ClinicID(t)

	defaults, err := LoadDefaults("")
	if err != nil {
		t.Fatal(err)
	}
	n, err := repo.Seed(ctx, clinic, defaults)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if n != len(defaults.StatusColors)+len(defaults.BillingCodes) {
		t.Errorf("expected all defaults written, got %d", n)
	}
	if n, _ := repo.Seed(ctx, clinic, defaults); n != 0 {
		t.Errorf("expected reseed to be a no-op, got %d", n)
	}

	err = repo.UpsertStatusColor(ctx, clinic, sheet.StatusColor{Status: "Paid", Type: sheet.StatusClaim, ColorPair: sheet.ColorPair{Background: "#010101", Text: "#ffffff"}})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := repo.DeleteBillingCode(ctx, clinic, "90791"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	tb, err := repo.Load(ctx, clinic)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c, _ := tb.ColorTable().Lookup("Paid", sheet.StatusClaim); c.Background != "#010101" || c.Text != "#ffffff" {
		t.Errorf("expected updated color, got %+v", c)
	}
	if len(tb.BillingCodes) != len(defaults.BillingCodes)-1 {
		t.Errorf("expected one code deleted, got %d", len(tb.BillingCodes))
	}

	other, err := repo.Load(ctx, clinic+"x")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !other.Empty() {
		t.Errorf("expected no tables for another clinic, got %+v", other)
	}
}
