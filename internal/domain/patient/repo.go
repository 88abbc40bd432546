package patient

import (
	"context"
)

type Repository interface {
	ListByClinic(ctx context.Context, clinicID string, limit, offset int) ([]*Patient, int, error)
	All(ctx context.Context, clinicID string) ([]*Patient, error)
	GetByCode(ctx context.Context, clinicID, code string) (*Patient, error)
	// Upsert inserts p or updates the record with the same code,
	// case-insensitively.
	Upsert(ctx context.Context, p *Patient) error
}
