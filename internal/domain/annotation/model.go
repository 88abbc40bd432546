package annotation

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

var (
	ErrNotFound = errors.New("annotation not found")
	ErrInvalid  = errors.New("invalid annotation")
)

// Ref addresses one annotated cell.
type Ref struct {
	ClinicID string          `json:"-"`
	Kind     sheet.SheetKind `json:"sheet_kind"`
	RowID    sheet.RowID     `json:"row_id"`
	Field    sheet.Field     `json:"field"`
}

func (r Ref) Validate() error {
	if r.RowID == "" {
		return fmt.Errorf("%w: row_id is required", ErrInvalid)
	}
	if r.RowID.IsPlaceholder() {
		return fmt.Errorf("%w: row %s has no data", ErrInvalid, r.RowID)
	}
	if !sheet.IsStoredField(r.Field) {
		return fmt.Errorf("%w: unknown field %s", ErrInvalid, r.Field)
	}
	return nil
}

// Annotation is the highlight and comment state of one cell. Resolved is nil
// while the comment is open or absent.
type Annotation struct {
	ID uuid.UUID `json:"id"`
	Ref
	Highlight *string   `json:"highlight_color,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	Resolved  *bool     `json:"resolved,omitempty"`
	CreatedBy *string   `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CommentState is the tri-state of a cell comment.
type CommentState string

const (
	CommentAbsent   CommentState = "absent"
	CommentOpen     CommentState = "open"
	CommentResolved CommentState = "resolved"
)

func (a *Annotation) CommentState() CommentState {
	switch {
	case a.Comment == nil:
		return CommentAbsent
	case a.Resolved != nil && *a.Resolved:
		return CommentResolved
	default:
		return CommentOpen
	}
}

// Decoration is the rendered form of the annotation.
func (a *Annotation) Decoration() sheet.CellDecoration {
	d := sheet.CellDecoration{Highlight: a.Highlight, Comment: a.Comment}
	if a.Comment != nil {
		resolved := a.CommentState() == CommentResolved
		d.Resolved = &resolved
	}
	return d
}
