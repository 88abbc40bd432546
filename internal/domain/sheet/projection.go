package sheet

import "fmt"

// Role is the viewer's access tier on provider sheets.
type Role string

const (
	RoleClinicStaff Role = "clinic_staff"
	RoleProviderL1  Role = "provider_l1"
	RoleProviderL2  Role = "provider_l2"
	RoleScheduler   Role = "scheduler"
	RoleIntake      Role = "intake"
)

// Mode selects a column subset. Only clinic staff have more than one.
type Mode string

const (
	ModeExpanded    Mode = "expanded"
	ModeCondensed   Mode = "condensed"
	ModeOfficeStaff Mode = "office_staff"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleClinicStaff, RoleProviderL1, RoleProviderL2, RoleScheduler, RoleIntake:
		return r, nil
	}
	return "", fmt.Errorf("invalid role: %s", s)
}

// ParseMode validates a mode name. Empty means expanded.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeExpanded, nil
	case ModeExpanded, ModeCondensed, ModeOfficeStaff:
		return m, nil
	}
	return "", fmt.Errorf("invalid view mode: %s", s)
}

// ViewContext is resolved once per request from the viewer's claims and the
// requested view mode.
type ViewContext struct {
	Role    Role `json:"role"`
	Mode    Mode `json:"mode"`
	CanEdit bool `json:"can_edit"`
}

// LockFlags is the set of locked fields for the sheet being viewed.
type LockFlags map[Field]bool

// Column is one visible grid column.
type Column struct {
	Field    Field  `json:"field"`
	Title    string `json:"title"`
	Editable bool   `json:"editable"`
}

// Projection is the ordered column list for a viewer.
type Projection []Column

var (
	patientLinkage = []Field{
		FieldPatientID, FieldPatientFirstName, FieldPatientLastInitial,
		FieldPatientInsurance, FieldPatientCopay, FieldPatientCoinsurance,
	}

	condensedFields = []Field{
		FieldPatientID, FieldPatientFirstName, FieldPatientLastInitial, FieldPatientInsurance,
		FieldAppointmentDate, FieldCPTCode, FieldAppointmentStatus, FieldClaimStatus,
		FieldInsurancePayment, FieldCollectedFromPatient, FieldPatientPayStatus, FieldTotal,
	}

	officeStaffFields = append(append([]Field{}, patientLinkage...),
		FieldAppointmentDate, FieldCPTCode, FieldAppointmentStatus,
		FieldCollectedFromPatient, FieldPatientPayStatus,
	)
)

func visibleFields(v ViewContext) []Field {
	switch v.Role {
	case RoleClinicStaff:
		switch v.Mode {
		case ModeCondensed:
			return condensedFields
		case ModeOfficeStaff:
			return officeStaffFields
		}
		return AllFields
	case RoleProviderL1:
		return AllFields[:9]
	case RoleIntake:
		return AllFields[:7]
	case RoleProviderL2, RoleScheduler:
		return AllFields
	}
	return nil
}

func rolePermits(r Role, f Field) bool {
	switch r {
	case RoleClinicStaff:
		return true
	case RoleScheduler:
		for _, sf := range AllFields[:7] {
			if sf == f {
				return true
			}
		}
	case RoleProviderL1:
		return f == FieldAppointmentStatus
	case RoleIntake:
		for _, pf := range patientLinkage {
			if pf == f {
				return true
			}
		}
	}
	return false
}

// ProjectColumns maps a viewer and the current lock state to the visible
// columns. A column is editable only if the viewer may edit at all, the field
// is not locked, the role allows it and the field is not derived.
func ProjectColumns(view ViewContext, locks LockFlags) Projection {
	fields := visibleFields(view)
	out := make(Projection, len(fields))
	for i, f := range fields {
		out[i] = Column{
			Field:    f,
			Title:    f.Title(),
			Editable: view.CanEdit && !locks[f] && rolePermits(view.Role, f) && !f.IsDerived(),
		}
	}
	return out
}

// FieldAt resolves a column index to its field.
func (p Projection) FieldAt(col int) (Field, bool) {
	if col < 0 || col >= len(p) {
		return "", false
	}
	return p[col].Field, true
}

// Editable reports whether column col accepts edits.
func (p Projection) Editable(col int) bool {
	if col < 0 || col >= len(p) {
		return false
	}
	return p[col].Editable
}

// IndexOf returns the column index of f, or -1.
func (p Projection) IndexOf(f Field) int {
	for i, c := range p {
		if c.Field == f {
			return i
		}
	}
	return -1
}

// Fields returns the visible fields in column order.
func (p Projection) Fields() []Field {
	out := make([]Field, len(p))
	for i, c := range p {
		out[i] = c.Field
	}
	return out
}
