package sheet

import "fmt"

// Field is the logical name of a row attribute, shared by the grid, the
// mutation stream, locks and annotations.
type Field string

const (
	FieldPatientID            Field = "patient_id"
	FieldPatientFirstName     Field = "patient_first_name"
	FieldPatientLastInitial   Field = "patient_last_initial"
	FieldPatientInsurance     Field = "patient_insurance"
	FieldPatientCopay         Field = "patient_copay"
	FieldPatientCoinsurance   Field = "patient_coinsurance"
	FieldAppointmentDate      Field = "appointment_date"
	FieldCPTCode              Field = "cpt_code"
	FieldAppointmentStatus    Field = "appointment_status"
	FieldClaimStatus          Field = "claim_status"
	FieldSubmitDate           Field = "submit_date"
	FieldInsurancePayment     Field = "insurance_payment"
	FieldPaymentDate          Field = "payment_date"
	FieldInsuranceAdjustment  Field = "insurance_adjustment"
	FieldCollectedFromPatient Field = "collected_from_patient"
	FieldPatientPayStatus     Field = "patient_pay_status"
	FieldARDate               Field = "ar_date"
	FieldTotal                Field = "total"
	FieldNotes                Field = "notes"

	// Color shadows. Denormalized caches, never shown as columns.
	FieldCPTCodeColor           Field = "cpt_code_color"
	FieldAppointmentStatusColor Field = "appointment_status_color"
	FieldClaimStatusColor       Field = "claim_status_color"
	FieldPatientPayStatusColor  Field = "patient_pay_status_color"
	FieldARDateColor            Field = "ar_date_color"
)

// StatusType partitions the status→color table.
type StatusType string

const (
	StatusAppointment StatusType = "appointment"
	StatusClaim       StatusType = "claim"
	StatusPatientPay  StatusType = "patient_pay"
	StatusMonth       StatusType = "month"
)

type fieldKind int

const (
	kindText fieldKind = iota
	kindFreeText
	kindNumeric
	kindDate
	kindMonth
	kindCodes
	kindStatus
	kindPatientRef
	kindDerived
)

type fieldSpec struct {
	field  Field
	title  string
	kind   fieldKind
	status StatusType
	shadow Field
}

// fieldCatalog is the full grid field list in column order.
var fieldCatalog = []fieldSpec{
	{field: FieldPatientID, title: "Patient ID", kind: kindPatientRef},
	{field: FieldPatientFirstName, title: "First Name", kind: kindText},
	{field: FieldPatientLastInitial, title: "Last Initial", kind: kindText},
	{field: FieldPatientInsurance, title: "Insurance", kind: kindText},
	{field: FieldPatientCopay, title: "Copay", kind: kindFreeText},
	{field: FieldPatientCoinsurance, title: "Coinsurance", kind: kindFreeText},
	{field: FieldAppointmentDate, title: "Date of Service", kind: kindDate},
	{field: FieldCPTCode, title: "CPT Code", kind: kindCodes, shadow: FieldCPTCodeColor},
	{field: FieldAppointmentStatus, title: "Appt/Note Status", kind: kindStatus, status: StatusAppointment, shadow: FieldAppointmentStatusColor},
	{field: FieldClaimStatus, title: "Claim Status", kind: kindStatus, status: StatusClaim, shadow: FieldClaimStatusColor},
	{field: FieldSubmitDate, title: "Date Submitted", kind: kindDate},
	{field: FieldInsurancePayment, title: "Insurance Payment", kind: kindNumeric},
	{field: FieldPaymentDate, title: "Payment Date", kind: kindDate},
	{field: FieldInsuranceAdjustment, title: "Insurance Adjustment", kind: kindNumeric},
	{field: FieldCollectedFromPatient, title: "Collected from Patient", kind: kindNumeric},
	{field: FieldPatientPayStatus, title: "Patient Pay Status", kind: kindStatus, status: StatusPatientPay, shadow: FieldPatientPayStatusColor},
	{field: FieldARDate, title: "AR Month", kind: kindMonth, status: StatusMonth, shadow: FieldARDateColor},
	{field: FieldTotal, title: "Total", kind: kindDerived},
	{field: FieldNotes, title: "Notes", kind: kindFreeText},
}

var (
	specByField = func() map[Field]fieldSpec {
		m := make(map[Field]fieldSpec, len(fieldCatalog))
		for _, s := range fieldCatalog {
			m[s.field] = s
		}
		return m
	}()

	// AllFields lists the grid fields in full-projection order.
	AllFields = func() []Field {
		out := make([]Field, len(fieldCatalog))
		for i, s := range fieldCatalog {
			out[i] = s.field
		}
		return out
	}()

	shadowFields = []Field{
		FieldCPTCodeColor,
		FieldAppointmentStatusColor,
		FieldClaimStatusColor,
		FieldPatientPayStatusColor,
		FieldARDateColor,
	}

	// allStoredFields is every field a mutation may target, in a stable order.
	allStoredFields = append(append([]Field{}, AllFields...), shadowFields...)
)

// IsGridField reports whether f is one of the visible grid fields.
func IsGridField(f Field) bool {
	_, ok := specByField[f]
	return ok
}

// IsStoredField reports whether f can be the target of a Mutation.
func IsStoredField(f Field) bool {
	for _, s := range allStoredFields {
		if s == f {
			return true
		}
	}
	return false
}

// ParseField validates a field name from a request.
func ParseField(s string) (Field, error) {
	f := Field(s)
	if !IsStoredField(f) {
		return "", fmt.Errorf("unknown field: %s", s)
	}
	return f, nil
}

// Title returns the column header of a grid field.
func (f Field) Title() string {
	if s, ok := specByField[f]; ok {
		return s.title
	}
	return string(f)
}

// IsDerived reports whether a field is computed and never edited directly.
func (f Field) IsDerived() bool {
	return specByField[f].kind == kindDerived
}
