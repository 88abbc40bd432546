package lock

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicops/clinicops/internal/domain/sheet"
)

var (
	ErrUnknownField = errors.New("field cannot be locked")
	ErrNotFound     = errors.New("lock record not found")
)

// Scope identifies one lock record. OwnerID is empty for clinic-wide sheets.
type Scope struct {
	ClinicID string          `json:"clinic_id"`
	Kind     sheet.SheetKind `json:"sheet_kind"`
	OwnerID  string          `json:"owner_id,omitempty"`
}

func (s Scope) Topic() string {
	return fmt.Sprintf("sheet:%s:locks:%s", s.ClinicID, s.Kind)
}

// FieldLock is the state of one column.
type FieldLock struct {
	Locked  bool    `json:"locked"`
	Comment *string `json:"comment,omitempty"`
}

// Record is the lock state of every lockable field of a scope.
type Record struct {
	ID        uuid.UUID                 `json:"id"`
	Scope     Scope                     `json:"scope"`
	Fields    map[sheet.Field]FieldLock `json:"fields"`
	UpdatedBy *string                   `json:"updated_by,omitempty"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// Default is the record implied when a scope has none: every field unlocked.
func Default(scope Scope) *Record {
	r := &Record{Scope: scope, Fields: make(map[sheet.Field]FieldLock, len(sheet.AllFields))}
	for _, f := range sheet.AllFields {
		if Lockable(f) {
			r.Fields[f] = FieldLock{}
		}
	}
	return r
}

// Flags returns the locked fields.
func (r *Record) Flags() sheet.LockFlags {
	flags := make(sheet.LockFlags)
	for f, l := range r.Fields {
		if l.Locked {
			flags[f] = true
		}
	}
	return flags
}

// Lockable reports whether f is a grid column a lock applies to.
func Lockable(f sheet.Field) bool {
	return sheet.IsGridField(f) && !f.IsDerived()
}

func ParseField(s string) (sheet.Field, error) {
	f := sheet.Field(s)
	if !Lockable(f) {
		return "", fmt.Errorf("%w: %s", ErrUnknownField, s)
	}
	return f, nil
}
