package annotation

import (
	"context"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

type Repository interface {
	List(ctx context.Context, clinicID string, kind sheet.SheetKind) ([]*Annotation, error)
	Get(ctx context.Context, ref Ref) (*Annotation, error)
	// SetHighlight writes the highlight of a cell; nil clears it.
	SetHighlight(ctx context.Context, ref Ref, color *string, actor string) error
	// SetComment writes the comment of a cell and reopens it; nil clears both.
	SetComment(ctx context.Context, ref Ref, comment *string, actor string) error
	// SetResolved returns ErrNotFound when the cell has no comment.
	SetResolved(ctx context.Context, ref Ref, resolved bool) error
	Delete(ctx context.Context, ref Ref) error
	Rekey(ctx context.Context, clinicID string, kind sheet.SheetKind, ids map[sheet.RowID]sheet.RowID) error
}
