package catalog

import (
	"context"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

type Repository interface {
	Load(ctx context.Context, clinicID string) (Tables, error)
	UpsertStatusColor(ctx context.Context, clinicID string, c sheet.StatusColor) error
	DeleteStatusColor(ctx context.Context, clinicID string, typ sheet.StatusType, status string) error
	UpsertBillingCode(ctx context.Context, clinicID string, c BillingCode) error
	DeleteBillingCode(ctx context.Context, clinicID, code string) error
	// Seed writes t for a clinic, leaving existing entries untouched.
	Seed(ctx context.Context, clinicID string, t Tables) (int, error)
}
