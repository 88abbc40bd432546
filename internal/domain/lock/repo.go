package lock

import (
	"context"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

type Repository interface {
	// Get returns ErrNotFound when the scope has no record yet.
	Get(ctx context.Context, scope Scope) (*Record, error)
	// SetField creates the record if needed and writes one field.
	SetField(ctx context.Context, scope Scope, field sheet.Field, l FieldLock, actor string) error
	// Replace creates or overwrites the whole record.
	Replace(ctx context.Context, scope Scope, fields map[sheet.Field]FieldLock, actor string) error
}
