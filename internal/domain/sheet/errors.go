package sheet

import "errors"

var (
	ErrSessionNotFound   = errors.New("sheet session not found")
	ErrStaleRevision     = errors.New("stale sheet revision")
	ErrPlaceholderDelete = errors.New("placeholder rows cannot be deleted")
	ErrRowIndex          = errors.New("row index out of range")
	ErrInvalidMove       = errors.New("invalid row move")
	ErrRowNotFound       = errors.New("row not found")
	ErrReadOnlyField     = errors.New("field is not editable")
)
