package sheet

import (
	"context"
)

// RowRepository is the row persistence boundary. Writes replace an owner's
// whole month at once.
type RowRepository interface {
	ListRows(ctx context.Context, key SheetKey) ([]StoredRow, error)
	// ReplaceRows makes rows the complete content of key. Rows with a local
	// id are inserted under a new server id; the returned map translates
	// every such local id.
	ReplaceRows(ctx context.Context, key SheetKey, rows []StoredRow) (map[RowID]RowID, error)
}

// PatientSource supplies the patient index used for auto-fill.
type PatientSource interface {
	PatientIndex(ctx context.Context, clinicID string) (PatientIndex, error)
}

// CatalogSource supplies the status color and billing code tables.
type CatalogSource interface {
	Tables(ctx context.Context, clinicID string) (ColorTable, CodeTable, error)
}

// LockSource supplies the column locks of a sheet.
type LockSource interface {
	Flags(ctx context.Context, clinicID string, kind SheetKind, ownerID string) (LockFlags, error)
}

// CellKey addresses one cell of a sheet.
type CellKey struct {
	RowID RowID
	Field Field
}

// CellDecoration is the annotation state rendered on a cell.
type CellDecoration struct {
	Highlight *string `json:"highlight,omitempty"`
	Comment   *string `json:"comment,omitempty"`
	Resolved  *bool   `json:"resolved,omitempty"`
}

// AnnotationStore is the slice of the annotation subsystem the sheet engine
// drives: decorations for rendering, derivation side effects and carrying
// annotations across id changes.
type AnnotationStore interface {
	Decorations(ctx context.Context, clinicID string, kind SheetKind) (map[CellKey]CellDecoration, error)
	ApplyEffects(ctx context.Context, clinicID string, kind SheetKind, actor string, effects []AnnotationEffect) error
	Rekey(ctx context.Context, clinicID string, kind SheetKind, ids map[RowID]RowID) error
}
